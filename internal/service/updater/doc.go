// Package updater contains the firmware update workflow: a per-device
// orchestrator running the check/compare/upgrade/restart-wait state
// machine, and a batch runner applying it sequentially across the fleet
// with one shared release fetch and an aggregate summary.
package updater

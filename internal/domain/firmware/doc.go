// Package firmware holds the value types of the update workflow: the
// firmware descriptor a device reports, the upstream release descriptor,
// per-device update results and batch summaries, plus the version
// comparison deciding whether a device is stale.
package firmware

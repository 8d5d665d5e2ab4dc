// Package config defines runtime settings and the device inventory, with
// helpers to load, validate and save them in YAML format.
//
// Settings carry defaults for cache age, device timeouts and the restart
// window; the inventory is validated once at load time so the update
// workflow can treat devices as trusted value objects.
package config

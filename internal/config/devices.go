package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/tasmota-updater/internal/domain/firmware"
	"github.com/oshokin/tasmota-updater/internal/logger"
)

// Device describes one Tasmota device from the inventory file.
// The core never mutates a loaded device; orchestration works on clones.
type Device struct {
	// Address is the device network address. Identity of the device.
	Address string `yaml:"ip"`
	// Username authenticates device requests when set together with Password.
	Username string `yaml:"username,omitempty"`
	// Password authenticates device requests. Never logged.
	Password string `yaml:"password,omitempty"`
	// DNSName is an optional pre-configured name, used for simulated devices
	// that cannot be resolved.
	DNSName string `yaml:"dns_name,omitempty"`
	// TimeoutSeconds overrides the post-upgrade restart window for this device.
	TimeoutSeconds int `yaml:"timeout,omitempty"`
	// Simulated marks a stand-in device that never receives network calls.
	Simulated bool `yaml:"simulated,omitempty"`
	// Firmware is the pre-baked descriptor a simulated device reports.
	Firmware *firmware.Info `yaml:"firmware_info,omitempty"`
}

// Clone returns a deep copy of the device.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}

	cloned := *d
	cloned.Firmware = d.Firmware.Clone()

	return &cloned
}

// RestartWindow returns the per-device restart window, falling back to the
// provided default when no override is configured.
func (d *Device) RestartWindow(fallback time.Duration) time.Duration {
	if d.TimeoutSeconds > 0 {
		return time.Duration(d.TimeoutSeconds) * time.Second
	}

	return fallback
}

// HasCredentials reports whether both username and password are configured.
func (d *Device) HasCredentials() bool {
	return d.Username != "" && d.Password != ""
}

// inventory is the on-disk shape of the device list.
type inventory struct {
	Devices []Device `yaml:"devices"`
}

// LoadDevices reads the device inventory from a YAML file.
// Entries without an address are skipped with a warning instead of failing
// the whole inventory; validation happens here once, not at every call site.
func LoadDevices(ctx context.Context, path string) ([]Device, error) {
	if path == "" {
		path = DefaultDevicesFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read device inventory: %w", err)
	}

	var inv inventory
	if err = yaml.Unmarshal(contents, &inv); err != nil {
		return nil, fmt.Errorf("unmarshal device inventory: %w", err)
	}

	devices := make([]Device, 0, len(inv.Devices))

	for i, device := range inv.Devices {
		if device.Address == "" {
			logger.Warnf(ctx, "Device #%d has no address, skipping", i+1)
			continue
		}

		devices = append(devices, device)
	}

	logger.InfoKV(ctx, "Loaded device inventory", "path", path, "devices", len(devices))

	return devices, nil
}

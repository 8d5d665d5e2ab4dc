package updater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/tasmota-updater/internal/config"
	"github.com/oshokin/tasmota-updater/internal/device"
	"github.com/oshokin/tasmota-updater/internal/domain/firmware"
	"github.com/oshokin/tasmota-updater/internal/logger"
)

const (
	// DefaultSettleDelay is the pause after sending an upgrade command
	// before the first liveness probe, giving the device time to start
	// flashing.
	DefaultSettleDelay = 5 * time.Second

	// DefaultPollInterval is the pause between liveness probes while
	// waiting for a device to come back online.
	DefaultPollInterval = 5 * time.Second
)

// Orchestrator decides, executes and reports on a single device update.
// It consumes devices through the capability interface only; the real and
// simulated variants are selected once per device.
type Orchestrator struct {
	// real talks to hardware over HTTP.
	real device.Client
	// simulated is the stand-in for configuration-flagged demo devices.
	simulated device.Client
	// settleDelay is the post-upgrade pause before probing.
	settleDelay time.Duration
	// pollInterval is the pause between liveness probes.
	pollInterval time.Duration
	// restartWindow is the default maximum restart wait.
	restartWindow time.Duration
	// now is the clock, swappable in tests.
	now func() time.Time
	// sleep waits, swappable in tests to avoid wall-clock delays.
	sleep func(ctx context.Context, d time.Duration)
	// resolve looks up the device DNS name, swappable in tests to keep
	// them off the network.
	resolve func(ctx context.Context, dev *config.Device) string
}

// NewOrchestrator creates an orchestrator over the provided device clients.
func NewOrchestrator(real, simulated device.Client, restartWindow time.Duration) *Orchestrator {
	if restartWindow <= 0 {
		restartWindow = config.DefaultRestartWindow
	}

	return &Orchestrator{
		real:          real,
		simulated:     simulated,
		settleDelay:   DefaultSettleDelay,
		pollInterval:  DefaultPollInterval,
		restartWindow: restartWindow,
		now:           time.Now,
		sleep:         sleepContext,
		resolve:       device.ResolveName,
	}
}

// UpdateDevice runs the per-device workflow: query the firmware version,
// compare against the shared release descriptor, and unless checkOnly is
// set, trigger the upgrade and wait for the device to come back online.
//
// The result is always a value, never an error: every failure mode ends
// as an unsuccessful result with a human-readable message, so one bad
// device cannot abort a batch. The release descriptor is fetched once per
// batch by the caller; nil means the feed was unavailable.
func (o *Orchestrator) UpdateDevice(
	ctx context.Context,
	dev *config.Device,
	rel *firmware.Release,
	checkOnly bool,
) firmware.UpdateResult {
	result := firmware.UpdateResult{
		Address:        dev.Address,
		CurrentVersion: firmware.UnknownVersion,
		LatestVersion:  firmware.UnknownVersion,
	}

	if dev.Address == "" {
		result.Address = "unknown"
		result.Message = "Invalid device configuration: missing device address"

		return result
	}

	// Work on a copy so the shared inventory is never mutated.
	dev = dev.Clone()
	result.DNSName = o.resolve(ctx, dev)

	client := o.clientFor(dev)

	info, err := client.FirmwareInfo(ctx, dev)
	if err != nil {
		logger.WarnKV(ctx, "Firmware query failed", "address", dev.Address, "error", err)

		result.Message = "Failed to get current firmware version"

		return result
	}

	result.CurrentVersion = info.Version

	if rel == nil {
		result.Message = "Failed to get latest release information"
		return result
	}

	result.LatestVersion = rel.Version
	result.NeedsUpdate = firmware.NeedsUpdate(info.Version, rel.Version)

	if !result.NeedsUpdate {
		result.Success = true
		result.Message = "Device is already running the latest version"

		return result
	}

	if checkOnly {
		result.Success = true
		result.Message = "Update available"

		return result
	}

	if dev.Simulated {
		return o.simulateUpgrade(ctx, client, dev, result)
	}

	return o.performUpgrade(ctx, client, dev, result)
}

// clientFor selects the capability implementation for a device.
func (o *Orchestrator) clientFor(dev *config.Device) device.Client {
	if dev.Simulated {
		return o.simulated
	}

	return o.real
}

// simulateUpgrade runs the no-network upgrade of a simulated device.
// The client sleeps its randomized delay; no restart wait applies since
// there is no hardware to reboot.
func (o *Orchestrator) simulateUpgrade(
	ctx context.Context,
	client device.Client,
	dev *config.Device,
	result firmware.UpdateResult,
) firmware.UpdateResult {
	started := o.now()

	if err := client.SendUpgrade(ctx, dev); err != nil {
		result.Message = fmt.Sprintf("Simulated update failed: %v", err)
		return result
	}

	elapsed := o.now().Sub(started)

	result.Success = true
	result.Message = fmt.Sprintf("Simulated device updated successfully (took %.1f seconds)", elapsed.Seconds())

	return result
}

// performUpgrade sends the upgrade command and waits for the device to
// restart within its window.
func (o *Orchestrator) performUpgrade(
	ctx context.Context,
	client device.Client,
	dev *config.Device,
	result firmware.UpdateResult,
) firmware.UpdateResult {
	logger.Infof(ctx, "%s: Upgrading to latest official release", dev.Address)

	if err := client.SendUpgrade(ctx, dev); err != nil {
		if errors.Is(err, device.ErrUpgradeRejected) {
			result.Message = fmt.Sprintf("Failed to send upgrade command: %v", err)
		} else {
			result.Message = fmt.Sprintf("Error connecting to device: %v", err)
		}

		return result
	}

	window := dev.RestartWindow(o.restartWindow)
	result.TimeoutSeconds = int(window / time.Second)

	logger.Infof(ctx, "%s: Waiting for device to restart and come back online", dev.Address)
	o.sleep(ctx, o.settleDelay)

	// Each failed probe is swallowed and retried until the window elapses.
	for range int(window / o.pollInterval) {
		if client.ProbeReachable(ctx, dev, "/") {
			result.Success = true
			result.Message = "Update successful"

			if refreshed, err := client.FirmwareInfo(ctx, dev); err == nil {
				result.CurrentVersion = refreshed.Version
			}

			return result
		}

		o.sleep(ctx, o.pollInterval)
	}

	result.Message = fmt.Sprintf(
		"Update initiated but device did not come back online within %d seconds", result.TimeoutSeconds)

	return result
}

// sleepContext waits for the duration or until the context ends.
func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

package device

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/oshokin/tasmota-updater/internal/config"
	"github.com/oshokin/tasmota-updater/internal/domain/firmware"
	"github.com/oshokin/tasmota-updater/internal/logger"
)

const (
	// simulatedDelayMin is the lower bound of the simulated upgrade duration.
	simulatedDelayMin = 2 * time.Second
	// simulatedDelayMax is the upper bound of the simulated upgrade duration.
	simulatedDelayMax = 5 * time.Second
)

// defaultSimulatedInfo is reported by simulated devices without a
// pre-baked firmware descriptor.
var defaultSimulatedInfo = firmware.Info{
	Version:     "12.0.0",
	CoreVersion: "2.7.4.9",
	SDKVersion:  "3.0.2",
}

// SimulatedClient implements Client for configuration-flagged stand-in
// devices used in test and demo environments. It never issues network
// calls: firmware queries answer from the inventory and upgrades sleep a
// short randomized delay before reporting success.
type SimulatedClient struct {
	// sleep waits for the simulated upgrade duration. Swappable in tests.
	sleep func(ctx context.Context, d time.Duration)
	// delay produces the randomized upgrade duration. Swappable in tests.
	delay func() time.Duration
}

// NewSimulatedClient creates a simulated device client.
func NewSimulatedClient() *SimulatedClient {
	return &SimulatedClient{
		sleep: sleepContext,
		delay: func() time.Duration {
			return simulatedDelayMin + rand.N(simulatedDelayMax-simulatedDelayMin) //nolint:gosec // Demo jitter, not crypto.
		},
	}
}

// FirmwareInfo answers with the pre-baked descriptor, or a default one
// when the inventory entry carries none.
func (c *SimulatedClient) FirmwareInfo(ctx context.Context, dev *config.Device) (*firmware.Info, error) {
	if dev.Firmware != nil {
		logger.Debugf(ctx, "%s: Using pre-configured firmware info for simulated device", dev.Address)
		return dev.Firmware.Clone(), nil
	}

	logger.Warnf(ctx, "%s: Simulated device has no firmware info configured", dev.Address)

	info := defaultSimulatedInfo

	return &info, nil
}

// SendUpgrade pretends to upgrade by sleeping a randomized delay.
func (c *SimulatedClient) SendUpgrade(ctx context.Context, dev *config.Device) error {
	delay := c.delay()

	logger.Infof(ctx, "%s: Simulating update with %.1f second delay", dev.Address, delay.Seconds())
	c.sleep(ctx, delay)

	return nil
}

// ProbeReachable always succeeds; there is no hardware to wait for.
func (c *SimulatedClient) ProbeReachable(context.Context, *config.Device, string) bool {
	return true
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

package updater

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/tasmota-updater/internal/config"
	"github.com/oshokin/tasmota-updater/internal/device"
	"github.com/oshokin/tasmota-updater/internal/domain/firmware"
)

// fakeClient is an in-memory device.Client keyed by device address.
type fakeClient struct {
	// infos maps addresses to the firmware reports to answer with.
	infos map[string]*firmware.Info
	// infoErr fails every firmware query when set.
	infoErr error
	// upgradeErr fails every upgrade command when set.
	upgradeErr error
	// upgraded records addresses an upgrade was sent to.
	upgraded []string
	// onlineAfter is the probe call number (1-based) from which probes
	// succeed; 0 means the device never comes back.
	onlineAfter int
	// probeCalls counts liveness probes.
	probeCalls int
	// beforeInfo, when set, observes each firmware query.
	beforeInfo func(address string)
}

func (f *fakeClient) FirmwareInfo(_ context.Context, dev *config.Device) (*firmware.Info, error) {
	if f.beforeInfo != nil {
		f.beforeInfo(dev.Address)
	}

	if f.infoErr != nil {
		return nil, f.infoErr
	}

	if info, ok := f.infos[dev.Address]; ok {
		return info.Clone(), nil
	}

	return &firmware.Info{Version: firmware.UnknownVersion}, nil
}

func (f *fakeClient) SendUpgrade(_ context.Context, dev *config.Device) error {
	if f.upgradeErr != nil {
		return f.upgradeErr
	}

	f.upgraded = append(f.upgraded, dev.Address)

	return nil
}

func (f *fakeClient) ProbeReachable(context.Context, *config.Device, string) bool {
	f.probeCalls++

	return f.onlineAfter > 0 && f.probeCalls >= f.onlineAfter
}

// newTestOrchestrator builds an orchestrator with instant sleeps, a fixed
// clock and a no-op name resolver, so tests never touch DNS.
func newTestOrchestrator(real, simulated device.Client) (*Orchestrator, *[]time.Duration) {
	o := NewOrchestrator(real, simulated, 60*time.Second)

	sleeps := new([]time.Duration)
	o.sleep = func(_ context.Context, d time.Duration) { *sleeps = append(*sleeps, d) }
	o.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	o.resolve = func(context.Context, *config.Device) string { return "" }

	return o, sleeps
}

// latestRelease is the shared upstream descriptor used across tests.
var latestRelease = &firmware.Release{Version: "9.5.0", ReleaseURL: "https://example.com/releases/"}

// TestUpdateDevice_CheckOnlyReportsWithoutMutation covers the stale device
// check-only path: update availability is reported with zero write calls.
func TestUpdateDevice_CheckOnlyReportsWithoutMutation(t *testing.T) {
	t.Parallel()

	client := &fakeClient{infos: map[string]*firmware.Info{
		"192.168.1.10": {Version: "9.1.0"},
	}}
	o, _ := newTestOrchestrator(client, nil)

	result := o.UpdateDevice(context.Background(), &config.Device{Address: "192.168.1.10"}, latestRelease, true)

	require.True(t, result.Success)
	require.True(t, result.NeedsUpdate)
	require.Equal(t, "Update available", result.Message)
	require.Equal(t, "9.1.0", result.CurrentVersion)
	require.Equal(t, "9.5.0", result.LatestVersion)
	require.Empty(t, client.upgraded)
	require.Zero(t, client.probeCalls)
}

// TestUpdateDevice_UpToDate ends successfully without an upgrade command.
func TestUpdateDevice_UpToDate(t *testing.T) {
	t.Parallel()

	client := &fakeClient{infos: map[string]*firmware.Info{
		"192.168.1.10": {Version: "9.5.0"},
	}}
	o, sleeps := newTestOrchestrator(client, nil)

	result := o.UpdateDevice(context.Background(), &config.Device{Address: "192.168.1.10"}, latestRelease, false)

	require.True(t, result.Success)
	require.False(t, result.NeedsUpdate)
	require.Equal(t, "Device is already running the latest version", result.Message)
	require.Empty(t, client.upgraded)
	require.Empty(t, *sleeps)
}

// TestUpdateDevice_FirmwareQueryFailure reports a terminal failure.
func TestUpdateDevice_FirmwareQueryFailure(t *testing.T) {
	t.Parallel()

	client := &fakeClient{infoErr: device.ErrUnreachable}
	o, _ := newTestOrchestrator(client, nil)

	result := o.UpdateDevice(context.Background(), &config.Device{Address: "192.168.1.10"}, latestRelease, false)

	require.False(t, result.Success)
	require.Equal(t, "Failed to get current firmware version", result.Message)
	require.Equal(t, firmware.UnknownVersion, result.CurrentVersion)
}

// TestUpdateDevice_MissingRelease reports failure when no descriptor exists.
func TestUpdateDevice_MissingRelease(t *testing.T) {
	t.Parallel()

	client := &fakeClient{infos: map[string]*firmware.Info{
		"192.168.1.10": {Version: "9.1.0"},
	}}
	o, _ := newTestOrchestrator(client, nil)

	result := o.UpdateDevice(context.Background(), &config.Device{Address: "192.168.1.10"}, nil, false)

	require.False(t, result.Success)
	require.Equal(t, "Failed to get latest release information", result.Message)
	require.Equal(t, "9.1.0", result.CurrentVersion)
	require.Empty(t, client.upgraded)
}

// TestUpdateDevice_MissingAddress rejects the device before any network call.
func TestUpdateDevice_MissingAddress(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(&fakeClient{}, nil)

	result := o.UpdateDevice(context.Background(), &config.Device{}, latestRelease, false)

	require.False(t, result.Success)
	require.Equal(t, "unknown", result.Address)
	require.Contains(t, result.Message, "missing device address")
}

// TestUpdateDevice_ReportsResolvedName carries the resolver's answer in
// the result.
func TestUpdateDevice_ReportsResolvedName(t *testing.T) {
	t.Parallel()

	client := &fakeClient{infos: map[string]*firmware.Info{
		"192.168.1.10": {Version: "9.5.0"},
	}}
	o, _ := newTestOrchestrator(client, nil)
	o.resolve = func(_ context.Context, dev *config.Device) string {
		require.Equal(t, "192.168.1.10", dev.Address)
		return "garage-plug.lan"
	}

	result := o.UpdateDevice(context.Background(), &config.Device{Address: "192.168.1.10"}, latestRelease, true)

	require.Equal(t, "garage-plug.lan", result.DNSName)
}

// TestUpdateDevice_UpgradeRejected embeds the HTTP status and skips the
// restart wait.
func TestUpdateDevice_UpgradeRejected(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		infos: map[string]*firmware.Info{
			"192.168.1.10": {Version: "9.1.0"},
		},
		upgradeErr: fmt.Errorf("%w: status code 500", device.ErrUpgradeRejected),
	}
	o, sleeps := newTestOrchestrator(client, nil)

	result := o.UpdateDevice(context.Background(), &config.Device{Address: "192.168.1.10"}, latestRelease, false)

	require.False(t, result.Success)
	require.Contains(t, result.Message, "Failed to send upgrade command")
	require.Contains(t, result.Message, "500")
	require.Zero(t, client.probeCalls)
	require.Empty(t, *sleeps)
}

// TestUpdateDevice_UpgradeConnectionError is reported distinctly from a
// rejected command and from a restart timeout.
func TestUpdateDevice_UpgradeConnectionError(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		infos: map[string]*firmware.Info{
			"192.168.1.10": {Version: "9.1.0"},
		},
		upgradeErr: fmt.Errorf("%w: connection refused", device.ErrUnreachable),
	}
	o, _ := newTestOrchestrator(client, nil)

	result := o.UpdateDevice(context.Background(), &config.Device{Address: "192.168.1.10"}, latestRelease, false)

	require.False(t, result.Success)
	require.Contains(t, result.Message, "Error connecting to device")
	require.NotContains(t, result.Message, "come back online")
}

// TestUpdateDevice_SuccessfulUpgrade waits out the settle delay, probes
// until the device answers and re-queries the firmware version.
func TestUpdateDevice_SuccessfulUpgrade(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		infos: map[string]*firmware.Info{
			"192.168.1.10": {Version: "9.1.0"},
		},
		onlineAfter: 2,
	}
	o, sleeps := newTestOrchestrator(client, nil)

	dev := &config.Device{Address: "192.168.1.10"}
	result := o.UpdateDevice(context.Background(), dev, latestRelease, false)

	require.True(t, result.Success)
	require.Equal(t, "Update successful", result.Message)
	require.Equal(t, []string{"192.168.1.10"}, client.upgraded)
	require.Equal(t, 2, client.probeCalls)
	require.Equal(t, 60, result.TimeoutSeconds)

	// Settle delay plus one poll interval before the second probe.
	require.Equal(t, []time.Duration{DefaultSettleDelay, DefaultPollInterval}, *sleeps)
}

// TestUpdateDevice_RestartTimeout reports the window-exceeded message after
// exhausting the poll budget.
func TestUpdateDevice_RestartTimeout(t *testing.T) {
	t.Parallel()

	client := &fakeClient{infos: map[string]*firmware.Info{
		"192.168.1.10": {Version: "9.1.0"},
	}}
	o, sleeps := newTestOrchestrator(client, nil)

	// Per-device override shrinks the window to three polls.
	dev := &config.Device{Address: "192.168.1.10", TimeoutSeconds: 15}
	result := o.UpdateDevice(context.Background(), dev, latestRelease, false)

	require.False(t, result.Success)
	require.Equal(t, "Update initiated but device did not come back online within 15 seconds", result.Message)
	require.Equal(t, 15, result.TimeoutSeconds)
	require.Equal(t, 3, client.probeCalls)

	// Settle delay plus one sleep per failed probe.
	require.Len(t, *sleeps, 4)
}

// TestUpdateDevice_SimulatedUpgrade succeeds through the simulated client
// with no restart wait and no real-client involvement.
func TestUpdateDevice_SimulatedUpgrade(t *testing.T) {
	t.Parallel()

	real := &fakeClient{}
	simulated := &fakeClient{infos: map[string]*firmware.Info{
		"192.168.1.60": {Version: "9.1.0"},
	}}
	o, sleeps := newTestOrchestrator(real, simulated)

	dev := &config.Device{
		Address:   "192.168.1.60",
		Simulated: true,
		Firmware:  &firmware.Info{Version: "9.1.0"},
	}

	result := o.UpdateDevice(context.Background(), dev, latestRelease, false)

	require.True(t, result.Success)
	require.True(t, result.NeedsUpdate)
	require.Contains(t, result.Message, "Simulated device updated successfully")
	require.Equal(t, []string{"192.168.1.60"}, simulated.upgraded)
	require.Empty(t, real.upgraded)
	require.Zero(t, real.probeCalls)
	require.Zero(t, simulated.probeCalls)
	require.Empty(t, *sleeps)
}

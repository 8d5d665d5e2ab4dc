package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/oshokin/tasmota-updater/internal/config"
	"github.com/oshokin/tasmota-updater/internal/device"
	"github.com/oshokin/tasmota-updater/internal/domain/firmware"
	"github.com/oshokin/tasmota-updater/internal/logger"
	"github.com/oshokin/tasmota-updater/internal/release"
	"github.com/oshokin/tasmota-updater/internal/repository/cache"
	"github.com/oshokin/tasmota-updater/internal/repository/history"
	"github.com/oshokin/tasmota-updater/internal/service/updater"
)

// loadSettings reads the settings file named by the --config flag.
func loadSettings() (*config.Config, error) {
	return config.Load(configPath)
}

// newReleaseClient builds the feed client over the configured cache.
func newReleaseClient(cfg *config.Config) *release.Client {
	return release.NewClient(cache.NewFileStore(cfg.CacheDir),
		release.WithFeedURL(cfg.ReleaseFeedURL),
		release.WithMaxAge(cfg.CacheMaxAge))
}

// newRunner wires the batch runner with its device clients, release feed
// and run history. The returned closer releases the history database.
func newRunner(ctx context.Context, cfg *config.Config) (*updater.Runner, func()) {
	orchestrator := updater.NewOrchestrator(
		device.NewHTTPClient(device.WithCallTimeout(cfg.Timeout)),
		device.NewSimulatedClient(),
		cfg.RestartWindow)

	var opts []updater.RunnerOption

	repo, err := history.Open(cfg.HistoryFile)
	if err != nil {
		// History is a convenience; a locked or unwritable database must
		// not block updates.
		logger.WarnKV(ctx, "Run history unavailable", "error", err)
	} else {
		opts = append(opts, updater.WithHistory(repo))
	}

	runner := updater.NewRunner(orchestrator, newReleaseClient(cfg), opts...)

	return runner, func() { _ = repo.Close() }
}

// selectDevices loads the inventory, optionally narrowed to one address.
func selectDevices(ctx context.Context, cfg *config.Config, address string) ([]config.Device, error) {
	devices, err := config.LoadDevices(ctx, cfg.DevicesFile)
	if err != nil {
		return nil, err
	}

	if address == "" {
		return devices, nil
	}

	for i := range devices {
		if devices[i].Address == address {
			return devices[i : i+1], nil
		}
	}

	return nil, fmt.Errorf("device %s is not in the inventory", address)
}

// printBatch renders per-device results and the aggregate summary.
func printBatch(w io.Writer, batch *firmware.BatchResult) {
	for i := range batch.Results {
		printResult(w, &batch.Results[i])
	}

	s := batch.Summary
	fmt.Fprintf(w, "\n%d device(s) processed: %d succeeded, %d need an update, %d updated\n",
		s.Total, s.Succeeded, s.NeedsUpdate, s.Updated)
}

// printResult renders one device outcome as a single line.
func printResult(w io.Writer, result *firmware.UpdateResult) {
	status := "FAIL"
	if result.Success {
		status = "OK"
	}

	name := result.Address
	if result.DNSName != "" {
		name = fmt.Sprintf("%s (%s)", result.Address, result.DNSName)
	}

	fmt.Fprintf(w, "[%s] %s: %s (current: %s, latest: %s)\n",
		status, name, result.Message, result.CurrentVersion, result.LatestVersion)
}

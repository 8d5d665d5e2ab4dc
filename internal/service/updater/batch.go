package updater

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/oshokin/tasmota-updater/internal/config"
	"github.com/oshokin/tasmota-updater/internal/domain/firmware"
	"github.com/oshokin/tasmota-updater/internal/logger"
	"github.com/oshokin/tasmota-updater/internal/repository/history"
)

// ReleaseSource provides the latest upstream release descriptor.
type ReleaseSource interface {
	Latest(ctx context.Context) (*firmware.Release, error)
}

// Runner applies the orchestrator across a device list, strictly
// sequentially, and aggregates a summary. Total runtime is bounded by
// devices x (settle delay + restart window).
type Runner struct {
	// orchestrator performs the per-device workflow.
	orchestrator *Orchestrator
	// releases supplies the shared release descriptor, one fetch per batch.
	releases ReleaseSource
	// history records finished batches; nil disables recording.
	history history.Repository
	// now is the clock, swappable in tests.
	now func() time.Time
}

// RunnerOption configures the batch runner.
type RunnerOption func(*Runner)

// WithHistory records finished batches in the provided repository.
func WithHistory(repo history.Repository) RunnerOption {
	return func(r *Runner) {
		r.history = repo
	}
}

// NewRunner creates a batch runner.
func NewRunner(orchestrator *Orchestrator, releases ReleaseSource, opts ...RunnerOption) *Runner {
	runner := &Runner{
		orchestrator: orchestrator,
		releases:     releases,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(runner)
	}

	return runner
}

// Run processes all devices and returns per-device results plus the
// aggregate. With onlyNeeded set (and not checkOnly), a check pass runs
// first and the mutating pass is restricted to devices that reported
// needing an update.
//
// The release descriptor is fetched once for the whole batch. When the
// feed is unavailable, a check-only run fails as a whole since comparison
// is its entire purpose; a mutating run proceeds and reports each device
// unsuccessful instead, so partial inventory information still surfaces.
func (r *Runner) Run(
	ctx context.Context,
	devices []config.Device,
	checkOnly, onlyNeeded bool,
) (*firmware.BatchResult, error) {
	if !checkOnly {
		if IsUpdaterRunningNow(ctx) {
			return nil, errUpdaterAlreadyRunning
		}

		marker, err := os.Create(MarkerFilename)
		if err != nil {
			return nil, fmt.Errorf("create run marker: %w", err)
		}

		if err = marker.Close(); err != nil {
			return nil, fmt.Errorf("close run marker: %w", err)
		}

		defer func() {
			_ = os.Remove(MarkerFilename)
		}()
	}

	rel, err := r.releases.Latest(ctx)
	if err != nil {
		if checkOnly {
			return nil, fmt.Errorf("fetch latest release: %w", err)
		}

		logger.ErrorKV(ctx, "Release feed unavailable, devices will report failure", "error", err)

		rel = nil
	}

	started := r.now()
	results := r.processDevices(ctx, devices, rel, checkOnly, onlyNeeded)

	batch := &firmware.BatchResult{
		StartedAt: started,
		Results:   results,
		Summary:   firmware.Summarize(results, checkOnly),
	}

	logger.InfoKV(ctx, "Batch finished",
		"total", batch.Summary.Total,
		"succeeded", batch.Summary.Succeeded,
		"needs_update", batch.Summary.NeedsUpdate,
		"updated", batch.Summary.Updated)

	if r.history != nil {
		if err = r.history.Append(ctx, batch); err != nil {
			// Recording is best-effort; the run itself succeeded.
			logger.ErrorKV(ctx, "Unable to record batch history", "error", err)
		}
	}

	return batch, nil
}

// processDevices runs the per-device workflow over the list, one device
// at a time, each restart wait completing before the next device starts.
func (r *Runner) processDevices(
	ctx context.Context,
	devices []config.Device,
	rel *firmware.Release,
	checkOnly, onlyNeeded bool,
) []firmware.UpdateResult {
	results := make([]firmware.UpdateResult, 0, len(devices))

	if !onlyNeeded || checkOnly {
		for i := range devices {
			results = append(results, r.orchestrator.UpdateDevice(ctx, &devices[i], rel, checkOnly))

			if !checkOnly {
				refreshRunMarker(ctx)
			}
		}

		return results
	}

	// Check pass first, then mutate only what reported stale.
	checked := make([]firmware.UpdateResult, 0, len(devices))
	for i := range devices {
		checked = append(checked, r.orchestrator.UpdateDevice(ctx, &devices[i], rel, true))
		refreshRunMarker(ctx)
	}

	for i := range devices {
		if checked[i].NeedsUpdate {
			results = append(results, r.orchestrator.UpdateDevice(ctx, &devices[i], rel, false))
			refreshRunMarker(ctx)

			continue
		}

		results = append(results, checked[i])
	}

	return results
}

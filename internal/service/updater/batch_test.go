package updater

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/tasmota-updater/internal/config"
	"github.com/oshokin/tasmota-updater/internal/domain/firmware"
)

// fakeReleaseSource answers Latest from memory and counts fetches.
type fakeReleaseSource struct {
	rel   *firmware.Release
	err   error
	calls int
}

func (f *fakeReleaseSource) Latest(context.Context) (*firmware.Release, error) {
	f.calls++

	return f.rel, f.err
}

// fakeHistory records appended batches in memory.
type fakeHistory struct {
	appended []*firmware.BatchResult
	err      error
}

func (f *fakeHistory) Append(_ context.Context, batch *firmware.BatchResult) error {
	if f.err != nil {
		return f.err
	}

	f.appended = append(f.appended, batch)

	return nil
}

func (f *fakeHistory) List(context.Context, int) ([]firmware.BatchResult, error) {
	return nil, nil
}

// newTestRunner wires a runner over fake clients with instant sleeps.
func newTestRunner(client *fakeClient, releases *fakeReleaseSource, opts ...RunnerOption) *Runner {
	o, _ := newTestOrchestrator(client, client)
	runner := NewRunner(o, releases, opts...)
	runner.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	return runner
}

// TestRun_CheckOnlySummarizesFleet runs a read-only pass over a mixed fleet.
func TestRun_CheckOnlySummarizesFleet(t *testing.T) {
	t.Parallel()

	client := &fakeClient{infos: map[string]*firmware.Info{
		"192.168.1.10": {Version: "9.1.0"},
		"192.168.1.11": {Version: "9.5.0"},
	}}
	releases := &fakeReleaseSource{rel: latestRelease}
	runner := newTestRunner(client, releases)

	devices := []config.Device{
		{Address: "192.168.1.10"},
		{Address: "192.168.1.11"},
	}

	batch, err := runner.Run(context.Background(), devices, true, false)
	require.NoError(t, err)

	require.Len(t, batch.Results, 2)
	require.Equal(t, 2, batch.Summary.Total)
	require.Equal(t, 2, batch.Summary.Succeeded)
	require.Equal(t, 1, batch.Summary.NeedsUpdate)
	require.Zero(t, batch.Summary.Updated)

	// One shared fetch, no mutations.
	require.Equal(t, 1, releases.calls)
	require.Empty(t, client.upgraded)
}

// TestRun_CheckOnlyFeedFailure fails the whole batch: a comparison run
// without an upstream version has nothing to report.
func TestRun_CheckOnlyFeedFailure(t *testing.T) {
	t.Parallel()

	releases := &fakeReleaseSource{err: errors.New("feed down")}
	runner := newTestRunner(&fakeClient{}, releases)

	batch, err := runner.Run(context.Background(), []config.Device{{Address: "192.168.1.10"}}, true, false)

	require.Error(t, err)
	require.Nil(t, batch)
}

// TestRun_MutatingFeedFailure proceeds per device and reports each one
// unsuccessful rather than upgrading blind.
func TestRun_MutatingFeedFailure(t *testing.T) {
	t.Chdir(t.TempDir())

	client := &fakeClient{infos: map[string]*firmware.Info{
		"192.168.1.10": {Version: "9.1.0"},
	}}
	releases := &fakeReleaseSource{err: errors.New("feed down")}
	runner := newTestRunner(client, releases)

	batch, err := runner.Run(context.Background(), []config.Device{{Address: "192.168.1.10"}}, false, false)
	require.NoError(t, err)

	require.Len(t, batch.Results, 1)
	require.False(t, batch.Results[0].Success)
	require.Equal(t, "Failed to get latest release information", batch.Results[0].Message)
	require.Empty(t, client.upgraded)
}

// TestRun_OnlyNeededSkipsFreshDevices checks first, then mutates the stale
// devices only.
func TestRun_OnlyNeededSkipsFreshDevices(t *testing.T) {
	t.Chdir(t.TempDir())

	client := &fakeClient{
		infos: map[string]*firmware.Info{
			"192.168.1.10": {Version: "9.5.0"},
			"192.168.1.11": {Version: "9.1.0"},
		},
		onlineAfter: 1,
	}
	releases := &fakeReleaseSource{rel: latestRelease}
	runner := newTestRunner(client, releases)

	devices := []config.Device{
		{Address: "192.168.1.10"},
		{Address: "192.168.1.11"},
	}

	batch, err := runner.Run(context.Background(), devices, false, true)
	require.NoError(t, err)

	// Only the stale device received an upgrade command.
	require.Equal(t, []string{"192.168.1.11"}, client.upgraded)

	require.Len(t, batch.Results, 2)
	require.Equal(t, "Device is already running the latest version", batch.Results[0].Message)
	require.Equal(t, "Update successful", batch.Results[1].Message)
	require.Equal(t, 1, batch.Summary.Updated)
}

// TestRun_RecordsHistory appends the finished batch to the repository.
func TestRun_RecordsHistory(t *testing.T) {
	t.Parallel()

	client := &fakeClient{infos: map[string]*firmware.Info{
		"192.168.1.10": {Version: "9.5.0"},
	}}
	releases := &fakeReleaseSource{rel: latestRelease}
	repo := &fakeHistory{}
	runner := newTestRunner(client, releases, WithHistory(repo))

	batch, err := runner.Run(context.Background(), []config.Device{{Address: "192.168.1.10"}}, true, false)
	require.NoError(t, err)

	require.Len(t, repo.appended, 1)
	require.Equal(t, batch, repo.appended[0])
}

// TestRun_HistoryFailureDoesNotFailBatch treats recording as best-effort.
func TestRun_HistoryFailureDoesNotFailBatch(t *testing.T) {
	t.Parallel()

	client := &fakeClient{infos: map[string]*firmware.Info{
		"192.168.1.10": {Version: "9.5.0"},
	}}
	releases := &fakeReleaseSource{rel: latestRelease}
	runner := newTestRunner(client, releases, WithHistory(&fakeHistory{err: errors.New("disk full")}))

	batch, err := runner.Run(context.Background(), []config.Device{{Address: "192.168.1.10"}}, true, false)

	require.NoError(t, err)
	require.NotNil(t, batch)
}

// TestRun_RefreshesMarkerBetweenDevices proves a mutating run keeps its
// marker fresh: even when the marker has aged past the stale threshold
// mid-run, it is touched again after each processed device, so a second
// invocation sees a live run instead of a stale leftover to kill.
func TestRun_RefreshesMarkerBetweenDevices(t *testing.T) {
	t.Chdir(t.TempDir())

	client := &fakeClient{
		infos: map[string]*firmware.Info{
			"192.168.1.10": {Version: "9.1.0"},
			"192.168.1.11": {Version: "9.1.0"},
		},
		onlineAfter: 1,
	}

	// Simulate a long-running batch: age the marker right after creation,
	// then observe it again when the second device comes up.
	releases := &fakeReleaseSource{rel: latestRelease}
	ageMarker := func() {
		old := time.Now().Add(-markerLifetime - time.Minute)
		require.NoError(t, os.Chtimes(MarkerFilename, old, old))
	}

	aged := false
	client.beforeInfo = func(address string) {
		if !aged {
			ageMarker()
			aged = true

			return
		}

		if address == "192.168.1.11" {
			info, err := os.Stat(MarkerFilename)
			require.NoError(t, err)
			require.WithinDuration(t, time.Now(), info.ModTime(), time.Minute)
		}
	}

	runner := newTestRunner(client, releases)

	batch, err := runner.Run(context.Background(), []config.Device{
		{Address: "192.168.1.10"},
		{Address: "192.168.1.11"},
	}, false, false)

	require.NoError(t, err)
	require.Equal(t, 2, batch.Summary.Updated)

	// The marker is removed once the run finishes.
	_, err = os.Stat(MarkerFilename)
	require.True(t, os.IsNotExist(err))
}

// TestRun_RefusesParallelMutatingRuns returns an error while another run
// holds a fresh marker.
func TestRun_RefusesParallelMutatingRuns(t *testing.T) {
	t.Chdir(t.TempDir())

	releases := &fakeReleaseSource{rel: latestRelease}
	runner := newTestRunner(&fakeClient{}, releases)

	marker, err := os.Create(MarkerFilename)
	require.NoError(t, err)
	require.NoError(t, marker.Close())

	_, err = runner.Run(context.Background(), nil, false, false)
	require.ErrorIs(t, err, errUpdaterAlreadyRunning)
}

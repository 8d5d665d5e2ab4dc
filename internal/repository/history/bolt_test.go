package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/tasmota-updater/internal/domain/firmware"
)

// newTestRepository opens a repository in a temporary directory.
func newTestRepository(t *testing.T) *BoltRepository {
	t.Helper()

	repo, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, repo.Close())
	})

	return repo
}

// TestBoltRepository_EmptyList verifies listing before any run is recorded.
func TestBoltRepository_EmptyList(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)

	runs, err := repo.List(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, runs)
}

// TestBoltRepository_AppendListOrder ensures newest-first ordering and limits.
func TestBoltRepository_AppendListOrder(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0).UTC()
	for i := range 3 {
		batch := &firmware.BatchResult{
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Results: []firmware.UpdateResult{
				{Address: "192.168.1.10", Success: true, NeedsUpdate: i > 0},
			},
		}
		batch.Summary = firmware.Summarize(batch.Results, false)

		require.NoError(t, repo.Append(ctx, batch))
	}

	runs, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.True(t, runs[0].StartedAt.After(runs[2].StartedAt))
	require.Len(t, runs[0].Results, 1)
	require.Equal(t, "192.168.1.10", runs[0].Results[0].Address)

	limited, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	require.Equal(t, runs[0].StartedAt.Unix(), limited[0].StartedAt.Unix())
}

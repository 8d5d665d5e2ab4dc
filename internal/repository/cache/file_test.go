package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestFileStore_MissOnAbsentRecord verifies Get on an empty store.
func TestFileStore_MissOnAbsentRecord(t *testing.T) {
	t.Parallel()

	store := NewFileStore(t.TempDir())

	_, valid := store.Get(context.Background(), "latest_release", time.Hour)
	require.False(t, valid)
}

// TestFileStore_PutGetRoundtrip ensures a stored payload is served back while fresh.
func TestFileStore_PutGetRoundtrip(t *testing.T) {
	t.Parallel()

	store := NewFileStore(filepath.Join(t.TempDir(), "cache"))
	want := map[string]string{"version": "12.5.0"}

	require.True(t, store.Put(context.Background(), "latest_release", want))

	payload, valid := store.Get(context.Background(), "latest_release", time.Hour)
	require.True(t, valid)

	var got map[string]string
	require.NoError(t, json.Unmarshal(payload, &got))
	require.Equal(t, want, got)
}

// TestFileStore_ExpiredRecordIsMiss advances an injected clock past max age.
func TestFileStore_ExpiredRecordIsMiss(t *testing.T) {
	t.Parallel()

	store := NewFileStore(t.TempDir())

	current := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return current }

	require.True(t, store.Put(context.Background(), "latest_release", "payload"))

	_, valid := store.Get(context.Background(), "latest_release", 24*time.Hour)
	require.True(t, valid)

	// One second short of expiry is still a hit.
	current = current.Add(24*time.Hour - time.Second)
	_, valid = store.Get(context.Background(), "latest_release", 24*time.Hour)
	require.True(t, valid)

	// Exactly max age is a miss.
	current = current.Add(time.Second)
	_, valid = store.Get(context.Background(), "latest_release", 24*time.Hour)
	require.False(t, valid)
}

// TestFileStore_CorruptRecordIsMiss ensures parse failures degrade to a miss.
func TestFileStore_CorruptRecordIsMiss(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewFileStore(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "latest_release.json"), []byte("{broken"), 0o600))

	_, valid := store.Get(context.Background(), "latest_release", time.Hour)
	require.False(t, valid)
}

// TestFileStore_PutOverwrites verifies unconditional replacement of a record.
func TestFileStore_PutOverwrites(t *testing.T) {
	t.Parallel()

	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	require.True(t, store.Put(ctx, "latest_release", "old"))
	require.True(t, store.Put(ctx, "latest_release", "new"))

	payload, valid := store.Get(ctx, "latest_release", time.Hour)
	require.True(t, valid)

	var got string
	require.NoError(t, json.Unmarshal(payload, &got))
	require.Equal(t, "new", got)
}

// TestFileStore_PutFailureIsNonFatal ensures Put reports false instead of failing.
func TestFileStore_PutFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	// A file where the cache directory should be makes MkdirAll fail.
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o600))

	store := NewFileStore(blocked)
	require.False(t, store.Put(context.Background(), "latest_release", "payload"))
}

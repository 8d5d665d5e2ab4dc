package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oshokin/tasmota-updater/internal/config"
	"github.com/oshokin/tasmota-updater/internal/logger"
)

// Store persists one timestamped record per key and serves it back while
// it is younger than the caller's max age.
type Store interface {
	Get(ctx context.Context, key string, maxAge time.Duration) (json.RawMessage, bool)
	Put(ctx context.Context, key string, value any) bool
}

// FileStore keeps each record as a small JSON file in a directory.
//
// There is deliberately no inter-process locking: records are idempotent
// whole-file replacements and staleness is bounded by the max-age check,
// so concurrent writers racing is harmless (last write wins).
type FileStore struct {
	// dir is the directory holding one JSON file per cache key.
	dir string
	// mu serializes access within this process.
	mu sync.Mutex
	// now is the clock, swappable in tests.
	now func() time.Time
}

// record is the on-disk shape of a cache entry.
type record struct {
	// Timestamp is when the payload was stored.
	Timestamp time.Time `json:"cache_timestamp"`
	// Data is the opaque cached payload.
	Data json.RawMessage `json:"data"`
}

// NewFileStore creates a store writing records under the provided directory.
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		dir: filepath.Clean(dir),
		now: time.Now,
	}
}

// Get returns the payload stored for key if a record exists, parses, and is
// younger than maxAge. Any read or parse failure degrades to a cache miss
// rather than an error; expired records are never served.
func (s *FileStore) Get(ctx context.Context, key string, maxAge time.Duration) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := os.ReadFile(s.recordPath(key))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf(ctx, "Unable to read cache record %s: %v", key, err)
		}

		return nil, false
	}

	var rec record
	if err = json.Unmarshal(contents, &rec); err != nil {
		logger.Warnf(ctx, "Unable to parse cache record %s: %v", key, err)
		return nil, false
	}

	if s.now().Sub(rec.Timestamp) >= maxAge {
		logger.DebugKV(ctx, "Cache record expired", "key", key, "cached_at", rec.Timestamp)
		return nil, false
	}

	logger.DebugKV(ctx, "Cache hit", "key", key, "cached_at", rec.Timestamp)

	return rec.Data, true
}

// Put overwrites the record for key unconditionally, stamping it with the
// current time. A persistence failure is reported as false and logged;
// callers treat failed caching as non-fatal since the value itself is
// still usable.
func (s *FileStore) Put(ctx context.Context, key string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(value)
	if err != nil {
		logger.Warnf(ctx, "Unable to encode cache payload %s: %v", key, err)
		return false
	}

	data, err := json.MarshalIndent(record{
		Timestamp: s.now(),
		Data:      payload,
	}, "", "  ")
	if err != nil {
		logger.Warnf(ctx, "Unable to encode cache record %s: %v", key, err)
		return false
	}

	if err = os.MkdirAll(s.dir, 0o755); err != nil {
		logger.Warnf(ctx, "Unable to create cache directory %s: %v", s.dir, err)
		return false
	}

	if err = os.WriteFile(s.recordPath(key), data, config.DefaultFilePermissions); err != nil {
		logger.Warnf(ctx, "Unable to write cache record %s: %v", key, err)
		return false
	}

	return true
}

// recordPath returns the file path backing a cache key.
func (s *FileStore) recordPath(key string) string {
	return filepath.Join(s.dir, key+".json")
}

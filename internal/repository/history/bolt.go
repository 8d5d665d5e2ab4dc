package history

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/oshokin/tasmota-updater/internal/domain/firmware"
)

// Repository records update runs for later inspection.
type Repository interface {
	Append(ctx context.Context, batch *firmware.BatchResult) error
	List(ctx context.Context, limit int) ([]firmware.BatchResult, error)
}

// BoltRepository persists batch results in a bbolt database, one JSON
// record per run keyed by an increasing sequence number.
type BoltRepository struct {
	// db is the underlying bbolt handle.
	db *bolt.DB
}

// runsBucket holds all recorded batch runs.
var runsBucket = []byte("runs")

// openTimeout bounds the wait for the database file lock.
const openTimeout = 2 * time.Second

// Open opens (creating if needed) the history database at the provided path.
func Open(path string) (*BoltRepository, error) {
	db, err := bolt.Open(filepath.Clean(path), 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, bucketErr := tx.CreateBucketIfNotExists(runsBucket)
		return bucketErr
	})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("prepare history bucket: %w", err)
	}

	return &BoltRepository{db: db}, nil
}

// Close releases the database file.
func (r *BoltRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}

	return r.db.Close()
}

// Append stores one batch run.
func (r *BoltRepository) Append(_ context.Context, batch *firmware.BatchResult) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode history record: %w", err)
	}

	err = r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(runsBucket)

		sequence, seqErr := bucket.NextSequence()
		if seqErr != nil {
			return seqErr
		}

		var key [8]byte

		binary.BigEndian.PutUint64(key[:], sequence)

		return bucket.Put(key[:], data)
	})
	if err != nil {
		return fmt.Errorf("write history record: %w", err)
	}

	return nil
}

// List returns up to limit most recent runs, newest first.
// A non-positive limit returns all recorded runs.
func (r *BoltRepository) List(_ context.Context, limit int) ([]firmware.BatchResult, error) {
	var results []firmware.BatchResult

	err := r.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(runsBucket).Cursor()

		for key, value := cursor.Last(); key != nil; key, value = cursor.Prev() {
			if limit > 0 && len(results) >= limit {
				break
			}

			var batch firmware.BatchResult
			if err := json.Unmarshal(value, &batch); err != nil {
				return fmt.Errorf("decode history record: %w", err)
			}

			results = append(results, batch)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	return results, nil
}

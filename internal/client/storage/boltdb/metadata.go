package boltdb

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

var keyLastResync = []byte("last_resync")

// SaveLastResync saves the time of the last successful full resync
func (s *Storage) SaveLastResync(ctx context.Context, at time.Time) error {
	data, err := msgpack.Marshal(at.UTC())
	if err != nil {
		return fmt.Errorf("failed to marshal last resync: %w", err)
	}

	return s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		if err := bucket.Put(keyLastResync, data); err != nil {
			return fmt.Errorf("failed to save last resync: %w", err)
		}

		return nil
	})
}

// GetLastResync retrieves the time of the last successful full resync
// Returns zero time if no resync has been performed yet
func (s *Storage) GetLastResync(ctx context.Context) (time.Time, error) {
	var at time.Time

	err := s.view(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		data := bucket.Get(keyLastResync)
		if data == nil {
			// Ресинка еще не было
			return nil
		}

		return msgpack.Unmarshal(data, &at)
	})

	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last resync: %w", err)
	}

	return at.UTC(), nil
}

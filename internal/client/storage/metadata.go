package storage

import (
	"context"
	"time"
)

// MetadataStorage defines interface for storing client metadata
type MetadataStorage interface {
	// SaveLastResync saves the time of the last successful full resync
	SaveLastResync(ctx context.Context, at time.Time) error

	// GetLastResync retrieves the time of the last successful full resync
	// Returns zero time if no resync has been performed yet
	GetLastResync(ctx context.Context) (time.Time, error)
}

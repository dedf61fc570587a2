package storage

import (
	"context"
	"time"

	"github.com/iudanet/adminsync/internal/models"
)

// EntityStorage defines interface for entity records persistence
type EntityStorage interface {
	// ListEntities returns all records of type t ordered by creation time
	ListEntities(ctx context.Context, t models.EntityType) ([]*models.EntityRecord, error)

	// GetEntity retrieves a record
	// Returns ErrEntityNotFound if record doesn't exist
	GetEntity(ctx context.Context, t models.EntityType, id string) (*models.EntityRecord, error)

	// CreateEntity stores a new record
	// Returns ErrEntityExists if record with the same type and id exists
	CreateEntity(ctx context.Context, rec *models.EntityRecord) error

	// UpdateEntity merges patch into record attributes (nil value removes a key)
	// and returns the stored version. UpdatedAt of the result is strictly after the previous one.
	// Returns ErrEntityNotFound if record doesn't exist
	UpdateEntity(ctx context.Context, t models.EntityType, id string, patch map[string]any, updatedAt time.Time) (*models.EntityRecord, error)

	// DeleteEntity removes a record
	// Returns ErrEntityNotFound if record doesn't exist
	DeleteEntity(ctx context.Context, t models.EntityType, id string) error
}

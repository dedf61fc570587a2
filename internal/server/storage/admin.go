package storage

import (
	"context"

	"github.com/iudanet/adminsync/internal/models"
)

// AdminStorage defines interface for admin accounts persistence
type AdminStorage interface {
	// CreateAdmin creates a new admin
	// Returns ErrAdminExists if username already exists
	CreateAdmin(ctx context.Context, admin *models.Admin) error

	// GetAdminByUsername retrieves admin by username
	// Returns ErrAdminNotFound if admin doesn't exist
	GetAdminByUsername(ctx context.Context, username string) (*models.Admin, error)
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/adminsync/internal/models"
	"github.com/iudanet/adminsync/internal/server/storage"
)

// CreateAdmin creates a new admin in the storage
func (s *Storage) CreateAdmin(ctx context.Context, admin *models.Admin) error {
	query := `
		INSERT INTO admins (id, username, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		admin.ID,
		admin.Username,
		admin.PasswordHash,
		admin.CreatedAt.UTC().UnixMicro(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAdminExists
		}
		return fmt.Errorf("failed to insert admin: %w", err)
	}

	return nil
}

// GetAdminByUsername retrieves admin by username
func (s *Storage) GetAdminByUsername(ctx context.Context, username string) (*models.Admin, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM admins
		WHERE username = ?
	`

	admin := &models.Admin{}
	var createdAt int64

	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&admin.ID,
		&admin.Username,
		&admin.PasswordHash,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}

	admin.CreatedAt = time.UnixMicro(createdAt).UTC()
	return admin, nil
}

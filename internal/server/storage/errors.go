package storage

import "errors"

// Common storage errors
var (
	// ErrEntityNotFound indicates that entity record was not found in storage
	ErrEntityNotFound = errors.New("entity not found")

	// ErrEntityExists indicates that record with this type and id already exists
	ErrEntityExists = errors.New("entity already exists")

	// ErrAdminNotFound indicates that admin was not found in storage
	ErrAdminNotFound = errors.New("admin not found")

	// ErrAdminExists indicates that admin with this username already exists
	ErrAdminExists = errors.New("admin already exists")
)

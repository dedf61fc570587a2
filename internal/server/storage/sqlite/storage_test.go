package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStorage(t *testing.T) (*Storage, func()) {
	t.Helper()

	s, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	return s, func() {
		require.NoError(t, s.Close())
	}
}

func TestNew_RunsMigrations(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	for _, table := range []string{"admins", "entities"} {
		var name string
		err := s.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s must exist", table)
		assert.Equal(t, table, name)
	}
}

func TestNew_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	s, err := New(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.CreateEntity(ctx, newRecord("products", "p1", testTime)))
	require.NoError(t, s.Close())

	// Повторные миграции на существующей БД ничего не ломают
	s, err = New(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.GetEntity(ctx, "products", "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", rec.ID)
}

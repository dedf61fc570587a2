package boltdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_LastResync(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	// Первый запуск: ресинка не было
	at, err := store.GetLastResync(ctx)
	require.NoError(t, err)
	assert.True(t, at.IsZero())

	want := time.Date(2026, 5, 1, 9, 30, 15, 123456789, time.UTC)
	require.NoError(t, store.SaveLastResync(ctx, want))

	got, err := store.GetLastResync(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	later := want.Add(time.Hour)
	require.NoError(t, store.SaveLastResync(ctx, later))
	got, err = store.GetLastResync(ctx)
	require.NoError(t, err)
	assert.Equal(t, later, got)
}

package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/adminsync/internal/models"
)

var errNotUsed = errors.New("not used")

// blockingRemote держит снимки до закрытия release
type blockingRemote struct {
	release chan struct{}
	fetches atomic.Int32
}

func (r *blockingRemote) Fetch(ctx context.Context, _ models.EntityType) ([]*models.EntityRecord, error) {
	r.fetches.Add(1)
	select {
	case <-r.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *blockingRemote) Create(context.Context, models.EntityType, models.Payload) (*models.EntityRecord, error) {
	return nil, errNotUsed
}

func (r *blockingRemote) Update(context.Context, models.EntityType, string, map[string]any) (*models.EntityRecord, error) {
	return nil, errNotUsed
}

func (r *blockingRemote) Delete(context.Context, models.EntityType, string) error {
	return errNotUsed
}

func TestSession_JoinResyncsAreCoalesced(t *testing.T) {
	remote := &blockingRemote{release: make(chan struct{})}
	s, err := New(Config{HubURL: "ws://127.0.0.1:1", Room: "admin"}, Deps{
		Remote: remote,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.startResyncWorker(ctx)

	types := int32(len(s.Types()))
	require.Positive(t, types)

	// первый ресинк висит в Fetch
	s.requestResync()
	require.Eventually(t, func() bool { return remote.fetches.Load() > 0 }, time.Second, 5*time.Millisecond)

	// серия входов в комнату во время ресинка
	for range 100 {
		s.requestResync()
	}
	close(remote.release)

	require.Eventually(t, func() bool { return remote.fetches.Load() == 2*types }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2*types, remote.fetches.Load(), "queued requests collapse into one resync")

	cancel()
	s.wg.Wait()
}

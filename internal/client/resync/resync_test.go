package resync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/adminsync/internal/client/collection"
	"github.com/iudanet/adminsync/internal/client/reconcile"
	"github.com/iudanet/adminsync/internal/models"
	"github.com/iudanet/adminsync/internal/registry"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEngine() *reconcile.Engine {
	return reconcile.NewEngine(collection.New(registry.Default()), setupTestLogger())
}

func rec(id string, updated time.Time) *models.EntityRecord {
	return &models.EntityRecord{ID: id, Attributes: map[string]any{"v": id}, CreatedAt: t0, UpdatedAt: updated}
}

// snapshotFetcher отдает заданные снимки; отсутствующий тип - пустой снимок
func snapshotFetcher(snapshots map[models.EntityType][]*models.EntityRecord, failing ...models.EntityType) *FetcherMock {
	fail := make(map[models.EntityType]bool)
	for _, t := range failing {
		fail[t] = true
	}
	return &FetcherMock{
		FetchFunc: func(ctx context.Context, t models.EntityType) ([]*models.EntityRecord, error) {
			if fail[t] {
				return nil, errors.New("server error (500): database locked")
			}
			out := make([]*models.EntityRecord, 0, len(snapshots[t]))
			for _, r := range snapshots[t] {
				out = append(out, r.Clone())
			}
			return out, nil
		},
	}
}

func TestTrigger_ResyncAll_PopulatesEveryType(t *testing.T) {
	engine := newTestEngine()
	fetcher := snapshotFetcher(map[models.EntityType][]*models.EntityRecord{
		models.EntityProducts: {rec("p1", t0), rec("p2", t0)},
		models.EntityOrders:   {rec("o1", t0)},
	})

	result, err := New(fetcher, engine, setupTestLogger()).ResyncAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 3, result.Inserted)
	assert.Empty(t, result.Failed)
	assert.Len(t, fetcher.FetchCalls(), len(registry.Default().Types()), "every known type is fetched")
	assert.Equal(t, 2, engine.Store().Len(models.EntityProducts))
	assert.Equal(t, 1, engine.Store().Len(models.EntityOrders))
}

func TestTrigger_ResyncAll_FailureDoesNotBlockOthers(t *testing.T) {
	engine := newTestEngine()
	fetcher := snapshotFetcher(map[models.EntityType][]*models.EntityRecord{
		models.EntityProducts: {rec("p1", t0)},
		models.EntityJobs:     {rec("j1", t0)},
	}, models.EntityOrders, models.EntityUsers)

	result, err := New(fetcher, engine, setupTestLogger()).ResyncAll(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch orders")
	assert.Contains(t, err.Error(), "fetch users")
	assert.ElementsMatch(t, []models.EntityType{models.EntityOrders, models.EntityUsers}, result.Failed)

	assert.Equal(t, 1, engine.Store().Len(models.EntityProducts))
	assert.Equal(t, 1, engine.Store().Len(models.EntityJobs))
}

func TestTrigger_ResyncAll_Idempotent(t *testing.T) {
	engine := newTestEngine()
	fetcher := snapshotFetcher(map[models.EntityType][]*models.EntityRecord{
		models.EntityContacts: {rec("c1", t0), rec("c2", t0.Add(time.Second)), rec("c3", t0.Add(2*time.Second))},
	})
	tr := New(fetcher, engine, setupTestLogger())

	_, err := tr.ResyncAll(context.Background())
	require.NoError(t, err)
	first := engine.Store().Snapshot(models.EntityContacts)

	result, err := tr.ResyncAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 3, result.Skipped)
	assert.Equal(t, first, engine.Store().Snapshot(models.EntityContacts), "refetch of unchanged data is a no-op")
}

func TestTrigger_ResyncAll_PreservesNewerLocalState(t *testing.T) {
	engine := newTestEngine()

	// Оптимистичная правка новее снимка и еще не подтверждена
	local := rec("p1", t0.Add(time.Minute))
	local.Attributes["name"] = "edited"
	engine.Apply(models.SyncEvent{EntityType: models.EntityProducts, Action: models.ActionUpdate, Record: local}, reconcile.SourceOptimistic)

	// Оптимистичный Create, которого еще нет на сервере
	engine.Apply(models.SyncEvent{EntityType: models.EntityProducts, Action: models.ActionCreate, Record: rec("p-new", t0.Add(time.Minute))}, reconcile.SourceOptimistic)

	fetcher := snapshotFetcher(map[models.EntityType][]*models.EntityRecord{
		models.EntityProducts: {rec("p1", t0)},
	})

	_, err := New(fetcher, engine, setupTestLogger()).ResyncAll(context.Background())
	require.NoError(t, err)

	got, ok := engine.Store().Get(models.EntityProducts, "p1")
	require.True(t, ok)
	assert.Equal(t, "edited", got.Attributes["name"])

	_, ok = engine.Store().Get(models.EntityProducts, "p-new")
	assert.True(t, ok, "pending record is not pruned")
}

func TestTrigger_ResyncAll_PrunesMissedDeletes(t *testing.T) {
	engine := newTestEngine()
	for _, id := range []string{"u1", "u2"} {
		engine.Apply(models.SyncEvent{EntityType: models.EntityUsers, Action: models.ActionCreate, Record: rec(id, t0)}, reconcile.SourceBroadcast)
	}

	// u2 удалили, пока клиент был отключен
	fetcher := snapshotFetcher(map[models.EntityType][]*models.EntityRecord{
		models.EntityUsers: {rec("u1", t0)},
	})

	result, err := New(fetcher, engine, setupTestLogger()).ResyncAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Pruned)
	assert.Equal(t, []string{"u1"}, engine.Store().IDs(models.EntityUsers))
}

func TestTrigger_ResyncAll_ConvergesWithoutDuplicates(t *testing.T) {
	engine := newTestEngine()

	// Одна из записей уже пришла событием до ресинка
	engine.Apply(models.SyncEvent{EntityType: models.EntityProducts, Action: models.ActionCreate, Record: rec("p1", t0)}, reconcile.SourceBroadcast)

	fetcher := snapshotFetcher(map[models.EntityType][]*models.EntityRecord{
		models.EntityProducts: {rec("p1", t0), rec("p2", t0), rec("p3", t0)},
	})

	_, err := New(fetcher, engine, setupTestLogger()).ResyncAll(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"p1", "p2", "p3"}, engine.Store().IDs(models.EntityProducts))
}

func TestTrigger_Run(t *testing.T) {
	engine := newTestEngine()
	fetcher := snapshotFetcher(nil)
	tr := New(fetcher, engine, setupTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	types := len(registry.Default().Types())
	require.Eventually(t, func() bool { return len(fetcher.FetchCalls()) >= 2*types }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestTrigger_Run_ZeroIntervalReturns(t *testing.T) {
	tr := New(snapshotFetcher(nil), newTestEngine(), setupTestLogger())

	done := make(chan struct{})
	go func() {
		tr.Run(context.Background(), 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with zero interval must return immediately")
	}
}

// Package resync перезагружает коллекции полными снимками сервера.
// Вызывается при старте сессии, при каждом входе в комнату и по таймеру.
package resync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iudanet/adminsync/internal/client/reconcile"
	"github.com/iudanet/adminsync/internal/models"
)

// maxConcurrentFetches ограничивает число одновременных запросов снимков
const maxConcurrentFetches = 8

//go:generate moq -out fetcher_mock.go . Fetcher

// Fetcher источник полных снимков по типу
type Fetcher interface {
	Fetch(ctx context.Context, t models.EntityType) ([]*models.EntityRecord, error)
}

// Result итог ресинка
type Result struct {
	Failed   []models.EntityType // типы, снимок которых получить не удалось
	Fetched  int                 // записей во всех снимках
	Inserted int                 // добавлено новых записей
	Updated  int                 // обновлено существующих
	Skipped  int                 // отброшено правилами слияния (stale, удаленные)
	Pruned   int                 // удалено записей, отсутствующих в снимке
}

type typeResult struct {
	err      error
	fetched  int
	inserted int
	updated  int
	skipped  int
	pruned   int
}

// Trigger выполняет ресинк всех известных типов
type Trigger struct {
	fetcher Fetcher
	engine  *reconcile.Engine
	logger  *slog.Logger
	types   []models.EntityType
	mu      sync.Mutex
}

// New создает триггер для всех типов коллекций движка
func New(fetcher Fetcher, engine *reconcile.Engine, logger *slog.Logger) *Trigger {
	return &Trigger{
		fetcher: fetcher,
		engine:  engine,
		logger:  logger,
		types:   engine.Store().Types(),
	}
}

// ResyncAll загружает снимок каждого типа и применяет записи через движок
// (никогда не заменяя коллекцию целиком). Типы загружаются параллельно;
// ошибка одного типа не мешает остальным. Ошибки собираются через errors.Join.
// Одновременно выполняется не больше одного ресинка.
func (tr *Trigger) ResyncAll(ctx context.Context) (*Result, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	started := time.Now()
	tr.logger.Info("Starting resync", "types", len(tr.types))

	results := make([]typeResult, len(tr.types))

	// без WithContext: сбой одного типа не отменяет остальные
	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)
	for i, t := range tr.types {
		g.Go(func() error {
			results[i] = tr.resyncType(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{}
	var errs []error
	for i, r := range results {
		result.Fetched += r.fetched
		result.Inserted += r.inserted
		result.Updated += r.updated
		result.Skipped += r.skipped
		result.Pruned += r.pruned
		if r.err != nil {
			result.Failed = append(result.Failed, tr.types[i])
			errs = append(errs, r.err)
		}
	}

	tr.logger.Info("Resync completed",
		"fetched", result.Fetched,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"pruned", result.Pruned,
		"failed", len(result.Failed),
		"duration", time.Since(started))

	return result, errors.Join(errs...)
}

func (tr *Trigger) resyncType(ctx context.Context, t models.EntityType) typeResult {
	// отметка до запроса: записи, измененные событиями во время запроса, не удаляются
	mark := tr.engine.Mark()

	records, err := tr.fetcher.Fetch(ctx, t)
	if err != nil {
		tr.logger.Warn("Failed to fetch snapshot", "entity_type", t, "error", err)
		return typeResult{err: fmt.Errorf("fetch %s: %w", t, err)}
	}

	r := typeResult{fetched: len(records)}
	present := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if rec == nil || rec.ID == "" {
			continue
		}
		present[rec.ID] = struct{}{}

		outcome := tr.engine.Apply(models.SyncEvent{
			EntityType: t,
			Action:     models.ActionUpdate,
			Record:     rec,
			EmittedAt:  rec.UpdatedAt,
		}, reconcile.SourceFetch)

		switch outcome {
		case reconcile.OutcomeInserted:
			r.inserted++
		case reconcile.OutcomeUpdated:
			r.updated++
		default:
			r.skipped++
		}
	}

	r.pruned = len(tr.engine.Prune(t, present, mark))
	return r
}

// Run выполняет ResyncAll каждые interval до отмены ctx
func (tr *Trigger) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := tr.ResyncAll(ctx); err != nil && ctx.Err() == nil {
				tr.logger.Warn("Periodic resync finished with errors", "error", err)
			}
		}
	}
}

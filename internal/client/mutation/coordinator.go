// Package mutation выполняет пользовательские изменения записей:
// оптимистичное применение, удаленная запись, подтверждение или откат, рассылка.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	apiclient "github.com/iudanet/adminsync/internal/client/api"
	"github.com/iudanet/adminsync/internal/client/conn"
	"github.com/iudanet/adminsync/internal/client/reconcile"
	"github.com/iudanet/adminsync/internal/clock"
	"github.com/iudanet/adminsync/internal/models"
	"github.com/iudanet/adminsync/internal/validation"
	"github.com/iudanet/adminsync/pkg/api"
)

//go:generate moq -out storage_mock.go . Storage

// Storage удаленное хранилище записей
type Storage interface {
	Create(ctx context.Context, t models.EntityType, payload models.Payload) (*models.EntityRecord, error)
	Update(ctx context.Context, t models.EntityType, id string, attributes map[string]any) (*models.EntityRecord, error)
	Delete(ctx context.Context, t models.EntityType, id string) error
}

//go:generate moq -out broadcaster_mock.go . Broadcaster

// Broadcaster рассылает подтвержденные изменения другим клиентам комнаты
type Broadcaster interface {
	Broadcast(env api.Envelope) error
}

var (
	// ErrUnknownEntityType тип не зарегистрирован в реестре
	ErrUnknownEntityType = errors.New("unknown entity type")
	// ErrMissingID для update/delete нужен id записи
	ErrMissingID = errors.New("record id is required")
)

// MutationError ошибка пользовательского изменения. Оптимистичное состояние
// к моменту возврата уже откатано.
type MutationError struct {
	Err        error
	EntityType models.EntityType
	Action     models.Action
	ID         string
}

func (e *MutationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s failed: %v", e.Action, e.EntityType, e.Err)
	}
	return fmt.Sprintf("%s %s/%s failed: %v", e.Action, e.EntityType, e.ID, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// Retryable true для транспортных сбоев, таймаутов и ошибок 5xx -
// повтор того же изменения имеет смысл.
func (e *MutationError) Retryable() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var r interface{ Retryable() bool }
	if errors.As(e.Err, &r) {
		return r.Retryable()
	}
	return false
}

// Options параметры координатора
type Options struct {
	ClientID       string
	RequestTimeout time.Duration // таймаут удаленной записи; 0 - без собственного таймаута
}

// Coordinator координатор мутаций. Изменения одного id с одного клиента
// выполняются строго по очереди.
type Coordinator struct {
	engine      *reconcile.Engine
	storage     Storage
	broadcaster Broadcaster
	clock       *clock.Clock
	logger      *slog.Logger
	locks       *idLocks
	pending     map[uint64]*models.PendingMutation
	resolved    chan struct{}
	newID       func() string
	opts        Options
	seq         uint64
	mu          sync.Mutex
}

// NewCoordinator создает координатор
func NewCoordinator(
	engine *reconcile.Engine,
	storage Storage,
	broadcaster Broadcaster,
	clk *clock.Clock,
	opts Options,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		engine:      engine,
		storage:     storage,
		broadcaster: broadcaster,
		clock:       clk,
		opts:        opts,
		logger:      logger,
		locks:       newIDLocks(),
		pending:     make(map[uint64]*models.PendingMutation),
		resolved:    make(chan struct{}),
		newID:       uuid.NewString,
	}
}

// Mutate выполняет изменение. Для Create/Update возвращает каноническую запись,
// для Delete - nil. При ошибке возвращает *MutationError, а коллекция уже
// возвращена к состоянию до изменения.
func (c *Coordinator) Mutate(ctx context.Context, t models.EntityType, action models.Action, payload models.Payload) (*models.EntityRecord, error) {
	id := payload.ID
	fail := func(err error) error {
		return &MutationError{EntityType: t, Action: action, ID: id, Err: err}
	}

	if !c.engine.Store().Has(t) {
		return nil, fail(ErrUnknownEntityType)
	}

	switch action {
	case models.ActionCreate:
		if id == "" {
			// id генерируется заранее: оптимистичная и каноническая записи совпадают по id
			id = c.newID()
		}
	case models.ActionUpdate, models.ActionDelete:
		if id == "" {
			return nil, fail(ErrMissingID)
		}
	default:
		return nil, fail(fmt.Errorf("unknown action %q", action))
	}

	if err := validation.ValidateEntityID(id); err != nil {
		return nil, fail(err)
	}

	unlock, err := c.locks.lock(ctx, string(t)+"/"+id)
	if err != nil {
		return nil, fail(err)
	}
	defer unlock()

	pm := c.optimistic(t, action, id, payload)
	token := c.track(pm)
	defer c.untrack(token)

	writeCtx := ctx
	if c.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}

	canonical, err := c.write(writeCtx, t, action, id, payload)
	if err != nil {
		c.rollback(pm)
		c.logger.Warn("Mutation failed, rolled back",
			"entity_type", t,
			"action", action,
			"id", id,
			"error", err)
		return nil, fail(err)
	}

	ev := c.confirm(pm, canonical)
	c.broadcast(ev)

	c.logger.Info("Mutation confirmed", "entity_type", t, "action", action, "id", id)

	if canonical == nil {
		return nil, nil
	}
	return canonical.Clone(), nil
}

// optimistic строит и применяет оптимистичное состояние
func (c *Coordinator) optimistic(t models.EntityType, action models.Action, id string, payload models.Payload) *models.PendingMutation {
	prior, exists := c.engine.Store().Get(t, id)
	if exists {
		// следующая метка строго новее текущей версии записи
		c.clock.Observe(prior.UpdatedAt)
	} else {
		prior = nil
	}
	at := c.clock.Now()

	pm := &models.PendingMutation{
		EntityType: t,
		Action:     action,
		RecordID:   id,
		Prior:      prior,
		IssuedAt:   at,
	}

	ev := models.SyncEvent{
		EntityType:     t,
		Action:         action,
		OriginClientID: c.opts.ClientID,
		EmittedAt:      at,
	}

	switch action {
	case models.ActionCreate, models.ActionUpdate:
		rec := &models.EntityRecord{
			ID:         id,
			Type:       t,
			Attributes: models.MergeAttributes(nil, payload.Attributes),
			CreatedAt:  at,
			UpdatedAt:  at,
			Pending:    true,
		}
		if prior != nil {
			if action == models.ActionUpdate {
				// Update - патч поверх текущей версии
				rec.Attributes = models.MergeAttributes(prior.Attributes, payload.Attributes)
			}
			rec.CreatedAt = prior.CreatedAt
		}
		pm.OptimisticRecord = rec
		ev.Record = rec
	case models.ActionDelete:
		ev.RecordID = id
	}

	c.engine.Apply(ev, reconcile.SourceOptimistic)
	return pm
}

func (c *Coordinator) write(ctx context.Context, t models.EntityType, action models.Action, id string, payload models.Payload) (*models.EntityRecord, error) {
	switch action {
	case models.ActionCreate:
		return c.storage.Create(ctx, t, models.Payload{ID: id, Attributes: payload.Attributes})
	case models.ActionUpdate:
		return c.storage.Update(ctx, t, id, payload.Attributes)
	default:
		err := c.storage.Delete(ctx, t, id)
		if errors.Is(err, apiclient.ErrNotFound) {
			// запись уже удалена кем-то еще - результат тот же
			return nil, nil
		}
		return nil, err
	}
}

// rollback возвращает коллекцию к состоянию до мутации
func (c *Coordinator) rollback(pm *models.PendingMutation) {
	switch pm.Action {
	case models.ActionCreate:
		if pm.Prior != nil {
			c.engine.RestorePrior(pm.Prior, pm.IssuedAt)
			return
		}
		c.engine.DiscardOptimistic(pm.EntityType, pm.RecordID, pm.IssuedAt)
	case models.ActionUpdate:
		if pm.Prior != nil {
			c.engine.RestorePrior(pm.Prior, pm.IssuedAt)
			return
		}
		c.engine.DiscardOptimistic(pm.EntityType, pm.RecordID, pm.IssuedAt)
	case models.ActionDelete:
		if pm.Prior != nil {
			c.engine.ReinstateDeleted(pm.Prior)
			return
		}
		c.engine.CancelDelete(pm.EntityType, pm.RecordID)
	}
}

// confirm применяет каноническую запись и возвращает событие для рассылки
func (c *Coordinator) confirm(pm *models.PendingMutation, canonical *models.EntityRecord) models.SyncEvent {
	ev := models.SyncEvent{
		EntityType:     pm.EntityType,
		Action:         pm.Action,
		OriginClientID: c.opts.ClientID,
	}

	if pm.Action == models.ActionDelete {
		ev.RecordID = pm.RecordID
		ev.EmittedAt = c.clock.Now()
		c.engine.Apply(ev, reconcile.SourceCanonical)
		return ev
	}

	if canonical == nil {
		// хранилище не вернуло запись - считаем каноничной оптимистичную
		canonical = pm.OptimisticRecord.Clone()
	}
	canonical.Type = pm.EntityType
	canonical.Pending = false
	c.clock.Observe(canonical.UpdatedAt)

	ev.Record = canonical
	ev.EmittedAt = canonical.UpdatedAt
	c.engine.Apply(ev, reconcile.SourceCanonical)
	return ev
}

func (c *Coordinator) broadcast(ev models.SyncEvent) {
	if c.broadcaster == nil {
		return
	}

	err := c.broadcaster.Broadcast(ev.ToEnvelope())
	switch {
	case err == nil:
	case errors.Is(err, conn.ErrNotJoined), errors.Is(err, conn.ErrNotConnected):
		// пиры догонят изменение на своем ресинке
		c.logger.Debug("Broadcast skipped, not joined", "entity_type", ev.EntityType, "id", ev.ID())
	default:
		c.logger.Warn("Broadcast failed", "entity_type", ev.EntityType, "id", ev.ID(), "error", err)
	}
}

func (c *Coordinator) track(pm *models.PendingMutation) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.pending[c.seq] = pm
	return c.seq
}

func (c *Coordinator) untrack(token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pending, token)
	close(c.resolved)
	c.resolved = make(chan struct{})
}

// Pending возвращает неразрешенные мутации в порядке выдачи
func (c *Coordinator) Pending() []models.PendingMutation {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.PendingMutation, 0, len(c.pending))
	for token := uint64(1); token <= c.seq && len(out) < len(c.pending); token++ {
		if pm, ok := c.pending[token]; ok {
			out = append(out, *pm)
		}
	}
	return out
}

// Wait блокируется, пока все мутации не будут подтверждены или откатаны
func (c *Coordinator) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			return nil
		}
		ch := c.resolved
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// idLocks мьютексы по ключу с поддержкой отмены ожидания
type idLocks struct {
	held map[string]chan struct{}
	mu   sync.Mutex
}

func newIDLocks() *idLocks {
	return &idLocks{held: make(map[string]chan struct{})}
}

func (l *idLocks) lock(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		ch, busy := l.held[key]
		if !busy {
			ch = make(chan struct{})
			l.held[key] = ch
			l.mu.Unlock()

			return func() {
				l.mu.Lock()
				delete(l.held, key)
				l.mu.Unlock()
				close(ch)
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

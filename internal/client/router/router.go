// Package router разбирает входящие кадры хаба и направляет их
// в движок слияния или в приемник уведомлений.
package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/iudanet/adminsync/internal/client/reconcile"
	"github.com/iudanet/adminsync/internal/models"
	"github.com/iudanet/adminsync/internal/registry"
	"github.com/iudanet/adminsync/pkg/api"
)

// MalformedMessageError кадр не удалось привести к известному варианту.
// Такие кадры логируются и отбрасываются, наружу ошибка не выходит.
type MalformedMessageError struct {
	Reason string
}

func (e *MalformedMessageError) Error() string {
	return "malformed message: " + e.Reason
}

func malformed(format string, args ...any) error {
	return &MalformedMessageError{Reason: fmt.Sprintf(format, args...)}
}

// Applier применяет событие к коллекциям
type Applier interface {
	Apply(ev models.SyncEvent, src reconcile.Source) reconcile.Outcome
}

// Notifier показывает уведомление пользователю
type Notifier interface {
	Notify(kind, summary string)
}

// Stats счетчики маршрутизатора
type Stats struct {
	Routed        uint64 // события, переданные в движок
	Notifications uint64 // уведомления, переданные в приемник
	Echoes        uint64 // собственные события, вернувшиеся от хаба
	Dropped       uint64 // некорректные кадры
}

// Router единственный потребитель кадров канала сессии
type Router struct {
	applier  Applier
	notifier Notifier
	registry *registry.Registry
	logger   *slog.Logger
	clientID string

	routed        atomic.Uint64
	notifications atomic.Uint64
	echoes        atomic.Uint64
	dropped       atomic.Uint64
}

// New создает маршрутизатор. clientID используется для отсева собственных событий.
func New(applier Applier, notifier Notifier, reg *registry.Registry, clientID string, logger *slog.Logger) *Router {
	return &Router{
		applier:  applier,
		notifier: notifier,
		registry: reg,
		clientID: clientID,
		logger:   logger,
	}
}

// Route обрабатывает один входящий кадр. Никогда не паникует и не возвращает ошибку:
// один плохой кадр не должен прерывать сессию.
func (r *Router) Route(raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.dropped.Add(1)
			r.logger.Error("Panic while routing message", "panic", rec)
		}
	}()

	if err := r.route(raw); err != nil {
		r.dropped.Add(1)
		r.logger.Warn("Dropped inbound message", "error", err, "size", len(raw))
	}
}

func (r *Router) route(raw []byte) error {
	var env api.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return malformed("invalid json: %v", err)
	}

	switch classify(env) {
	case api.KindEntity:
		ev, err := r.Decode(env)
		if err != nil {
			return err
		}
		if ev.OriginClientID != "" && ev.OriginClientID == r.clientID {
			r.echoes.Add(1)
			return nil
		}
		outcome := r.applier.Apply(*ev, reconcile.SourceBroadcast)
		r.routed.Add(1)
		r.logger.Debug("Routed entity event",
			"entity_type", ev.EntityType,
			"action", ev.Action,
			"id", ev.ID(),
			"origin", ev.OriginClientID,
			"outcome", outcome.String())
		return nil

	case api.KindNotification:
		if env.Summary == "" {
			return malformed("notification without summary")
		}
		kind := env.Topic
		if kind == "" {
			kind = api.KindNotification
		}
		r.notifier.Notify(kind, env.Summary)
		r.notifications.Add(1)
		return nil

	case api.KindJoin, api.KindJoined, api.KindError:
		// служебные кадры обрабатывает менеджер соединения
		return nil

	default:
		return malformed("unknown kind %q", env.Kind)
	}
}

func classify(env api.Envelope) string {
	if env.Kind == "" && env.EntityType != "" {
		return api.KindEntity
	}
	return env.Kind
}

// Decode проверяет кадр изменения записи и приводит его к SyncEvent
func (r *Router) Decode(env api.Envelope) (*models.SyncEvent, error) {
	t := models.EntityType(env.EntityType)
	if t == "" {
		return nil, malformed("missing entityType")
	}
	if !r.registry.Has(t) {
		return nil, malformed("unknown entityType %q", env.EntityType)
	}

	action, err := models.ParseAction(env.Action)
	if err != nil {
		return nil, malformed("%v", err)
	}

	ev := &models.SyncEvent{
		EntityType:     t,
		Action:         action,
		OriginClientID: env.OriginClientID,
		EmittedAt:      env.Timestamp.UTC(),
	}

	switch action {
	case models.ActionCreate, models.ActionUpdate:
		if env.Record == nil {
			return nil, malformed("%s without record", action)
		}
		rec := models.RecordFromWire(*env.Record)
		if rec.Type == "" {
			rec.Type = t
		}
		ev.Record = rec
		ev.RecordID = env.RecordID
	case models.ActionDelete:
		ev.RecordID = env.RecordID
		if ev.RecordID == "" && env.Record != nil {
			ev.RecordID = env.Record.ID
		}
	}

	if err := ev.Validate(); err != nil {
		return nil, malformed("%v", err)
	}

	return ev, nil
}

// Stats возвращает текущие значения счетчиков
func (r *Router) Stats() Stats {
	return Stats{
		Routed:        r.routed.Load(),
		Notifications: r.notifications.Load(),
		Echoes:        r.echoes.Load(),
		Dropped:       r.dropped.Load(),
	}
}

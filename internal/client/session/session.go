// Package session собирает клиентские компоненты синхронизации для одной
// сессии администратора: коллекции, движок согласования, маршрутизатор,
// канал к хабу, координатор мутаций и ресинк.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/adminsync/internal/client/collection"
	"github.com/iudanet/adminsync/internal/client/conn"
	"github.com/iudanet/adminsync/internal/client/mutation"
	"github.com/iudanet/adminsync/internal/client/notify"
	"github.com/iudanet/adminsync/internal/client/reconcile"
	"github.com/iudanet/adminsync/internal/client/resync"
	"github.com/iudanet/adminsync/internal/client/router"
	"github.com/iudanet/adminsync/internal/client/storage"
	"github.com/iudanet/adminsync/internal/clock"
	"github.com/iudanet/adminsync/internal/models"
	"github.com/iudanet/adminsync/internal/registry"
)

var (
	// ErrClosed сессия закрыта
	ErrClosed = errors.New("session closed")
	// ErrAlreadyStarted Start вызван повторно
	ErrAlreadyStarted = errors.New("session already started")
)

// Remote удаленное хранилище: запись и полные снимки коллекций
type Remote interface {
	mutation.Storage
	resync.Fetcher
}

// Config параметры сессии
type Config struct {
	HubURL         string // ws:// адрес хаба
	Room           string
	Token          string
	ClientID       string
	ResyncInterval time.Duration // 0 - без периодического ресинка
	RequestTimeout time.Duration
	JoinTimeout    time.Duration
	BackoffMin     time.Duration
	BackoffMax     time.Duration
	StableAfter    time.Duration // сколько продержаться в комнате, чтобы сбросить backoff
}

// Deps внешние зависимости сессии
type Deps struct {
	Registry *registry.Registry
	Remote   Remote
	Display  notify.Display          // nil - уведомления только в лог
	Metadata storage.MetadataStorage // nil - время ресинка не сохраняется
	Clock    *clock.Clock
	Dialer   *websocket.Dialer
	Logger   *slog.Logger
}

// Session одна сессия администратора: одно хранилище коллекций и один канал.
// Все изменения коллекций проходят через движок согласования.
type Session struct {
	store       *collection.Store
	engine      *reconcile.Engine
	router      *router.Router
	manager     *conn.Manager
	coordinator *mutation.Coordinator
	trigger     *resync.Trigger
	metadata    storage.MetadataStorage
	logger      *slog.Logger
	cancel      context.CancelFunc
	resyncReq   chan struct{}
	cfg         Config
	wg          sync.WaitGroup
	mu          sync.Mutex
	started     bool
	closed      bool
}

// New создает сессию. Сетевая активность начинается только в Start.
func New(cfg Config, deps Deps) (*Session, error) {
	if deps.Remote == nil {
		return nil, fmt.Errorf("remote storage is required")
	}
	if cfg.HubURL == "" {
		return nil, fmt.Errorf("hub url is required")
	}
	if cfg.Room == "" {
		return nil, fmt.Errorf("room is required")
	}
	if deps.Registry == nil {
		deps.Registry = registry.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := collection.New(deps.Registry)
	engine := reconcile.NewEngine(store, logger.With("component", "reconcile"))
	sink := notify.NewSink(deps.Display, logger.With("component", "notify"))

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}
	if cfg.ClientID != "" {
		header.Set("X-Client-ID", cfg.ClientID)
	}

	manager := conn.New(conn.Options{
		Dialer:      deps.Dialer,
		Header:      header,
		URL:         cfg.HubURL,
		Room:        cfg.Room,
		JoinTimeout: cfg.JoinTimeout,
		BackoffMin:  cfg.BackoffMin,
		BackoffMax:  cfg.BackoffMax,
		StableAfter: cfg.StableAfter,
	}, logger.With("component", "conn"))

	s := &Session{
		store:   store,
		engine:  engine,
		router:  router.New(engine, sink, deps.Registry, cfg.ClientID, logger.With("component", "router")),
		manager: manager,
		coordinator: mutation.NewCoordinator(engine, deps.Remote, manager, deps.Clock, mutation.Options{
			ClientID:       cfg.ClientID,
			RequestTimeout: cfg.RequestTimeout,
		}, logger.With("component", "mutation")),
		trigger:  resync.New(deps.Remote, engine, logger.With("component", "resync")),
		metadata:  deps.Metadata,
		logger:    logger,
		resyncReq: make(chan struct{}, 1),
		cfg:       cfg,
	}

	return s, nil
}

// Start выполняет первичный ресинк, открывает канал к хабу и запускает
// периодический ресинк. Ошибка первичного ресинка возвращается, но сессия
// продолжает работать и догонит данные при следующем ресинке.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	// Подписки до подключения: ни один кадр не теряется
	s.manager.OnMessage(s.router.Route)
	s.manager.OnStateChange(func(state models.ConnectionState) {
		if !state.IsJoined() {
			return
		}
		// Пропущенные за время разрыва события догоняются ресинком
		s.requestResync()
	})

	_, err := s.resync(ctx)

	s.startResyncWorker(runCtx)

	s.manager.Connect(runCtx)

	if s.cfg.ResyncInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.trigger.Run(runCtx, s.cfg.ResyncInterval)
		}()
	}

	if err != nil {
		return fmt.Errorf("initial resync: %w", err)
	}
	return nil
}

// startResyncWorker запускает единственный обработчик запросов ресинка.
// Запросы, пришедшие во время ресинка, схлопываются в один следующий.
func (s *Session) startResyncWorker(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.resyncReq:
				if _, err := s.resync(ctx); err != nil && ctx.Err() == nil {
					s.logger.Warn("Resync after join finished with errors", "error", err)
				}
			}
		}
	}()
}

// requestResync не блокируется
func (s *Session) requestResync() {
	select {
	case s.resyncReq <- struct{}{}:
	default:
		s.logger.Debug("Resync already queued")
	}
}

func (s *Session) resync(ctx context.Context) (*resync.Result, error) {
	result, err := s.trigger.ResyncAll(ctx)
	if err == nil && s.metadata != nil {
		if saveErr := s.metadata.SaveLastResync(ctx, time.Now()); saveErr != nil {
			s.logger.Debug("Failed to save last resync time", "error", saveErr)
		}
	}
	return result, err
}

// Resync выполняет полный ресинк всех типов
func (s *Session) Resync(ctx context.Context) (*resync.Result, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	return s.resync(ctx)
}

// Mutate выполняет изменение через координатор мутаций
func (s *Session) Mutate(ctx context.Context, t models.EntityType, action models.Action, payload models.Payload) (*models.EntityRecord, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	return s.coordinator.Mutate(ctx, t, action, payload)
}

// Snapshot упорядоченные копии записей коллекции
func (s *Session) Snapshot(t models.EntityType) []models.EntityRecord {
	return s.store.Snapshot(t)
}

// Types зарегистрированные типы коллекций
func (s *Session) Types() []models.EntityType {
	return s.store.Types()
}

// OnChange подписывает fn на изменения коллекций
func (s *Session) OnChange(fn func(reconcile.Change)) {
	s.engine.OnChange(fn)
}

// State текущее состояние канала
func (s *Session) State() models.ConnectionState {
	return s.manager.State()
}

// States поток состояний канала. Закрывается при Close.
func (s *Session) States() <-chan models.ConnectionState {
	return s.manager.Subscribe()
}

// Pending незавершенные мутации
func (s *Session) Pending() []models.PendingMutation {
	return s.coordinator.Pending()
}

// Stats счетчики маршрутизатора входящих событий
func (s *Session) Stats() router.Stats {
	return s.router.Stats()
}

// WaitJoined ждет входа в комнату
func (s *Session) WaitJoined(ctx context.Context) error {
	states := s.manager.Subscribe()
	defer s.manager.Unsubscribe(states)

	if s.manager.State().IsJoined() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case state, ok := <-states:
			if !ok {
				return ErrClosed
			}
			if state.IsJoined() {
				return nil
			}
		}
	}
}

// Close дожидается незавершенных мутаций (в пределах ctx), закрывает канал
// и останавливает фоновый ресинк. Повторный вызов ничего не делает.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	waitErr := s.coordinator.Wait(ctx)

	if cancel != nil {
		cancel()
	}
	s.manager.Disconnect()
	s.wg.Wait()

	if waitErr != nil {
		return fmt.Errorf("pending mutations not finished: %w", waitErr)
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Package conn управляет постоянным websocket-каналом к хабу:
// подключение, вход в комнату, обнаружение разрыва и переподключение с backoff.
package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/adminsync/internal/models"
	"github.com/iudanet/adminsync/pkg/api"
)

const (
	defaultWriteWait   = 10 * time.Second
	defaultPongWait    = 60 * time.Second
	defaultJoinTimeout = 10 * time.Second
	defaultBackoffMin  = 250 * time.Millisecond
	defaultBackoffMax  = 30 * time.Second
	defaultStableAfter = 10 * time.Second

	maxMessageSize = 1 << 20

	// jitter равномерно в [0, delay/jitterDivisor)
	jitterDivisor = 2
)

var (
	// ErrNotJoined исходящее сообщение отброшено: клиент не в комнате
	ErrNotJoined = errors.New("not joined to a room")
	// ErrNotConnected канал сейчас не открыт
	ErrNotConnected = errors.New("not connected")
)

// ConnectionError транспортная ошибка канала. Приводит к переподключению
// и никогда не возвращается пользователю как ошибка операции.
type ConnectionError struct {
	Err error
	Op  string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Options параметры менеджера соединения
type Options struct {
	Dialer      *websocket.Dialer
	Header      http.Header // заголовки рукопожатия (Authorization, X-Client-ID)
	URL         string      // ws:// или wss:// адрес хаба
	Room        string      // комната, в которую входим после подключения
	JoinTimeout time.Duration
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	// StableAfter сколько сессия должна пробыть в комнате, чтобы сбросить счетчик неудач
	StableAfter time.Duration
	PongWait    time.Duration
	PingPeriod  time.Duration
	WriteWait   time.Duration
}

func (o *Options) applyDefaults() {
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = defaultJoinTimeout
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = defaultBackoffMin
	}
	if o.BackoffMax < o.BackoffMin {
		o.BackoffMax = max(defaultBackoffMax, o.BackoffMin)
	}
	if o.StableAfter <= 0 {
		o.StableAfter = defaultStableAfter
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
}

// Manager владеет одним каналом сессии. Все записи в канал сериализованы.
type Manager struct {
	conn          *websocket.Conn
	logger        *slog.Logger
	cancel        context.CancelFunc
	done          chan struct{}
	state         models.ConnectionState
	stateHandlers []func(models.ConnectionState)
	msgHandlers   []func([]byte)
	subscribers   []chan models.ConnectionState
	opts          Options
	room          string
	mu            sync.RWMutex
	handlersMu    sync.RWMutex
	writeMu       sync.Mutex
	startOnce     sync.Once
	stopOnce      sync.Once
}

// New создает менеджер. Подключение начинается только в Connect.
func New(opts Options, logger *slog.Logger) *Manager {
	opts.applyDefaults()
	return &Manager{
		opts:   opts,
		room:   opts.Room,
		logger: logger,
		state:  models.Disconnected(),
		done:   make(chan struct{}),
	}
}

// OnStateChange регистрирует обработчик переходов состояния.
// Обработчики вызываются последовательно в горутине менеджера и не должны блокироваться.
func (m *Manager) OnStateChange(fn func(models.ConnectionState)) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()

	m.stateHandlers = append(m.stateHandlers, fn)
}

// OnMessage регистрирует обработчик входящих кадров.
// Вызывается только в состоянии Joined, служебные кадры входа не передаются.
func (m *Manager) OnMessage(fn func([]byte)) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()

	m.msgHandlers = append(m.msgHandlers, fn)
}

// Subscribe возвращает поток состояний. Канал закрывается после Disconnect.
// Медленный подписчик пропускает промежуточные состояния.
func (m *Manager) Subscribe() <-chan models.ConnectionState {
	ch := make(chan models.ConnectionState, 16)

	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()

	select {
	case <-m.done:
		close(ch)
	default:
		m.subscribers = append(m.subscribers, ch)
	}
	return ch
}

// Unsubscribe снимает подписку, полученную из Subscribe или Connect.
// Канал не закрывается, новые состояния в него больше не попадают.
func (m *Manager) Unsubscribe(ch <-chan models.ConnectionState) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()

	m.subscribers = slices.DeleteFunc(m.subscribers, func(sub chan models.ConnectionState) bool {
		return sub == ch
	})
}

// Connect запускает цикл подключения и возвращает поток состояний.
// Повторный вызов только добавляет подписчика.
func (m *Manager) Connect(ctx context.Context) <-chan models.ConnectionState {
	ch := m.Subscribe()

	m.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		m.mu.Lock()
		m.cancel = cancel
		m.mu.Unlock()

		go m.run(runCtx)
	})

	return ch
}

// Disconnect останавливает цикл, закрывает канал и отменяет таймер backoff.
// Блокируется до завершения цикла.
func (m *Manager) Disconnect() {
	m.stopOnce.Do(func() {
		m.mu.RLock()
		cancel := m.cancel
		m.mu.RUnlock()

		if cancel == nil {
			// Connect не вызывался
			m.startOnce.Do(func() {})
			m.finish()
			return
		}

		cancel()
		<-m.done
	})
}

// State текущее состояние
func (m *Manager) State() models.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state
}

// JoinRoom входит в комнату name. Имя запоминается для последующих переподключений;
// если канал открыт, кадр join отправляется сразу. Joined наступает по подтверждению хаба.
func (m *Manager) JoinRoom(name string) error {
	m.mu.Lock()
	m.room = name
	hasConn := m.conn != nil
	m.mu.Unlock()

	if !hasConn {
		return ErrNotConnected
	}

	return m.write(api.Envelope{Kind: api.KindJoin, Room: name})
}

// Broadcast отправляет кадр в текущую комнату. Вне состояния Joined сообщение
// отбрасывается (не ставится в очередь) и возвращается ErrNotJoined.
func (m *Manager) Broadcast(env api.Envelope) error {
	state := m.State()
	if !state.IsJoined() {
		return ErrNotJoined
	}

	env.Room = state.Room
	return m.write(env)
}

func (m *Manager) write(v any) error {
	m.mu.RLock()
	c := m.conn
	m.mu.RUnlock()

	if c == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	_ = c.SetWriteDeadline(time.Now().Add(m.opts.WriteWait))
	if err := c.WriteJSON(v); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

func (m *Manager) run(ctx context.Context) {
	defer m.finish()

	// первая попытка сразу, перед каждой следующей не меньше BackoffMin
	failures := 0
	for {
		joinedFor, err := m.session(ctx)
		if ctx.Err() != nil {
			return
		}

		failures = m.nextFailures(failures, joinedFor)
		delay := m.backoff(failures)

		m.logger.Warn("Connection lost, reconnecting",
			"error", err,
			"joined_for", joinedFor,
			"failures", failures,
			"backoff", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// nextFailures счетчик неудач после сессии, пробывшей в комнате joinedFor.
// Сбрасывается до единицы только после сессии не короче StableAfter.
func (m *Manager) nextFailures(failures int, joinedFor time.Duration) int {
	if joinedFor >= m.opts.StableAfter {
		return 1
	}
	return failures + 1
}

// backoff задержка перед попыткой после failures неудач подряд:
// 0 для первой попытки, затем min, удваиваясь до max, плюс jitter.
func (m *Manager) backoff(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}

	delay := m.opts.BackoffMin
	for i := 1; i < failures && delay < m.opts.BackoffMax; i++ {
		delay *= 2
	}
	delay = min(delay, m.opts.BackoffMax)

	if j := int64(delay) / jitterDivisor; j > 0 {
		delay += time.Duration(rand.Int64N(j)) //nolint:gosec // G404: jitter не влияет на безопасность
	}
	return delay
}

// session одна попытка: подключение, вход в комнату и чтение до разрыва.
// Возвращает время, проведенное в комнате (0, если вход не подтвержден).
func (m *Manager) session(ctx context.Context) (time.Duration, error) {
	m.setState(models.Connecting())

	c, resp, err := m.opts.Dialer.DialContext(ctx, m.opts.URL, m.opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		m.setState(models.Disconnected())
		return 0, &ConnectionError{Op: "dial", Err: err}
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	m.conn = c
	room := m.room
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		_ = c.Close()
		m.setState(models.Disconnected())
	}()

	// Закрытие канала прерывает ReadMessage при отмене контекста
	go func() {
		<-connCtx.Done()
		_ = c.Close()
	}()

	m.setState(models.Connected())

	c.SetReadLimit(maxMessageSize)
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(m.opts.PongWait))
	})

	if err := m.write(api.Envelope{Kind: api.KindJoin, Room: room}); err != nil {
		return 0, err
	}
	_ = c.SetReadDeadline(time.Now().Add(m.opts.JoinTimeout))

	go m.keepalive(connCtx, c)

	var joinedAt time.Time
	for {
		joined := !joinedAt.IsZero()
		_, data, err := c.ReadMessage()
		if err != nil {
			if !joined {
				return 0, &ConnectionError{Op: "join", Err: err}
			}
			return time.Since(joinedAt), &ConnectionError{Op: "read", Err: err}
		}

		var ctl api.Envelope
		if err := json.Unmarshal(data, &ctl); err == nil {
			switch ctl.Kind {
			case api.KindJoined:
				m.mu.RLock()
				want := m.room
				m.mu.RUnlock()
				if ctl.Room != want {
					continue
				}
				if !joined {
					joinedAt = time.Now()
				}
				_ = c.SetReadDeadline(time.Now().Add(m.opts.PongWait))
				m.setState(models.Joined(ctl.Room))
				continue
			case api.KindError:
				if !joined {
					return 0, &ConnectionError{Op: "join", Err: errors.New(ctl.Message)}
				}
				m.logger.Warn("Hub reported error", "message", ctl.Message)
				continue
			}
		}

		if !joined {
			continue
		}
		m.dispatch(data)
	}
}

func (m *Manager) keepalive(ctx context.Context, c *websocket.Conn) {
	ticker := time.NewTicker(m.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.writeMu.Lock()
			err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.opts.WriteWait))
			m.writeMu.Unlock()
			if err != nil {
				m.logger.Debug("Ping failed", "error", err)
				return
			}
		}
	}
}

func (m *Manager) dispatch(data []byte) {
	m.handlersMu.RLock()
	handlers := make([]func([]byte), len(m.msgHandlers))
	copy(handlers, m.msgHandlers)
	m.handlersMu.RUnlock()

	for _, fn := range handlers {
		fn(data)
	}
}

func (m *Manager) setState(s models.ConnectionState) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	m.logger.Debug("Connection state changed", "state", s.String())

	m.handlersMu.RLock()
	handlers := make([]func(models.ConnectionState), len(m.stateHandlers))
	copy(handlers, m.stateHandlers)
	subscribers := make([]chan models.ConnectionState, len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.handlersMu.RUnlock()

	for _, fn := range handlers {
		fn(s)
	}
	for _, ch := range subscribers {
		select {
		case ch <- s:
		default:
			m.logger.Debug("State subscriber is slow, dropping state", "state", s.String())
		}
	}
}

// finish переводит менеджер в Disconnected и закрывает потоки подписчиков
func (m *Manager) finish() {
	m.setState(models.Disconnected())

	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()

	select {
	case <-m.done:
		return
	default:
	}
	close(m.done)
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
}

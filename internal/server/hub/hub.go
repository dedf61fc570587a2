// Package hub рассылка изменений между клиентами по именованным комнатам.
//
// Клиент подключается по websocket, отправляет join{room} и получает joined{room}
// либо error. Кадры entity и notification от участника комнаты пересылаются
// остальным участникам той же комнаты с originClientId отправителя. Сервер
// публикует свои кадры через Publish. Клиент, не успевающий разбирать очередь,
// отключается.
package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/adminsync/internal/models"
	"github.com/iudanet/adminsync/internal/validation"
	"github.com/iudanet/adminsync/pkg/api"
)

// Hub набор комнат и подключенных клиентов
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time

	rooms   map[string]map[*Client]struct{}
	clients map[*Client]struct{}
	mu      sync.RWMutex
}

// New создает хаб с фиксированным набором комнат
func New(rooms []string, logger *slog.Logger) *Hub {
	h := &Hub{
		logger:  logger,
		now:     time.Now,
		rooms:   make(map[string]map[*Client]struct{}, len(rooms)),
		clients: make(map[*Client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, r := range rooms {
		h.rooms[r] = make(map[*Client]struct{})
	}
	return h
}

// Rooms отсортированный список комнат
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.rooms))
	for r := range h.rooms {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// HasRoom проверяет, что комната существует
func (h *Hub) HasRoom(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.rooms[name]
	return ok
}

// Members количество участников комнаты
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[room])
}

// Connections количество открытых подключений
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// ServeWS переводит запрос на websocket и запускает обслуживание клиента.
// clientID идентифицирует подключение в рассылках, user - аутентифицированный администратор.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, clientID, user string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		return fmt.Errorf("upgrade: %w", err)
	}

	c := &Client{
		conn: conn,
		hub:  h,
		send: make(chan []byte, sendBufferSize),
		id:   clientID,
		user: user,
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("Client connected", "client_id", clientID, "user", user)

	go c.writePump()
	go c.readPump()
	return nil
}

// Publish рассылает серверный кадр всем участникам комнаты.
// Возвращает число клиентов, которым кадр поставлен в очередь.
func (h *Hub) Publish(room string, env api.Envelope) (int, error) {
	if !h.HasRoom(room) {
		return 0, fmt.Errorf("unknown room %q", room)
	}
	env.Room = room
	if env.Timestamp.IsZero() {
		env.Timestamp = h.now().UTC()
	}

	data, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("encode frame: %w", err)
	}
	return h.broadcast(room, data, nil), nil
}

// Close отключает всех клиентов
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
		c.Close()
	}
}

// handle разбирает входящий кадр клиента
func (h *Hub) handle(c *Client, data []byte) {
	var env api.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.replyError("malformed frame")
		return
	}

	kind := env.Kind
	if kind == "" && env.EntityType != "" {
		kind = api.KindEntity
	}

	switch kind {
	case api.KindJoin:
		h.join(c, env.Room)
	case api.KindEntity:
		if err := validateEntityFrame(env); err != nil {
			c.replyError(err.Error())
			return
		}
		env.Kind = api.KindEntity
		h.relay(c, env)
	case api.KindNotification:
		h.relay(c, env)
	default:
		c.replyError(fmt.Sprintf("unsupported frame kind %q", env.Kind))
	}
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if ok {
		if c.room != "" && c.room != room {
			delete(h.rooms[c.room], c)
		}
		members[c] = struct{}{}
		c.room = room
	}
	h.mu.Unlock()

	if !ok {
		h.logger.Warn("Join to unknown room", "client_id", c.id, "room", room)
		c.replyError(fmt.Sprintf("unknown room %q", room))
		return
	}

	h.logger.Debug("Client joined room", "client_id", c.id, "room", room)
	c.reply(api.Envelope{Kind: api.KindJoined, Room: room})
}

// relay пересылает кадр остальным участникам комнаты отправителя
func (h *Hub) relay(c *Client, env api.Envelope) {
	h.mu.RLock()
	room := c.room
	h.mu.RUnlock()

	if room == "" {
		c.replyError("not joined to a room")
		return
	}

	env.Room = room
	env.OriginClientID = c.id
	if env.Timestamp.IsZero() {
		env.Timestamp = h.now().UTC()
	}

	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("Failed to encode frame", "error", err)
		return
	}
	n := h.broadcast(room, data, c)
	h.logger.Debug("Frame relayed", "kind", env.Kind, "room", room, "client_id", c.id, "recipients", n)
}

// broadcast ставит кадр в очереди участников комнаты, кроме except.
// Клиенты с переполненной очередью отключаются.
func (h *Hub) broadcast(room string, data []byte, except *Client) int {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for m := range h.rooms[room] {
		if m != except {
			members = append(members, m)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, m := range members {
		if m.SafeSend(data) {
			sent++
			continue
		}
		h.drop(m, "send queue full")
	}
	return sent
}

func (h *Hub) drop(c *Client, reason string) {
	h.logger.Warn("Dropping slow client", "client_id", c.id, "reason", reason)
	h.unregister(c)
	c.Close()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	if c.room != "" {
		delete(h.rooms[c.room], c)
	}
	h.logger.Info("Client disconnected", "client_id", c.id, "room", c.room)
}

func validateEntityFrame(env api.Envelope) error {
	if err := validation.ValidateEntityType(env.EntityType); err != nil {
		return err
	}
	action, err := models.ParseAction(env.Action)
	if err != nil {
		return err
	}
	if action == models.ActionDelete {
		if env.RecordID == "" {
			return fmt.Errorf("recordId is required for delete")
		}
		return nil
	}
	if env.Record == nil {
		return fmt.Errorf("record is required for %s", action)
	}
	return nil
}

package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/adminsync/pkg/api"
)

const (
	// writeWait время на запись одного кадра
	writeWait = 10 * time.Second

	// pongWait время ожидания следующего pong от клиента
	pongWait = 60 * time.Second

	// pingPeriod период ping, должен быть меньше pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize максимальный размер входящего кадра
	maxMessageSize = 1 << 20

	// sendBufferSize очередь исходящих кадров клиента; переполнение означает медленного клиента
	sendBufferSize = 256
)

// Client одно websocket подключение к хабу
type Client struct {
	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	id   string // X-Client-ID, ставится в originClientId рассылок
	user string
	room string // guarded by hub.mu

	closeOnce sync.Once
	closed    atomic.Bool
}

// ID идентификатор клиента
func (c *Client) ID() string {
	return c.id
}

// SafeSend ставит кадр в очередь без блокировки.
// Возвращает false, если клиент закрыт или его очередь переполнена.
func (c *Client) SafeSend(data []byte) (sent bool) {
	// Close может выполниться между проверкой closed и отправкой
	defer func() {
		if r := recover(); r != nil {
			sent = false
		}
	}()

	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close закрывает очередь ровно один раз; writePump после этого отправит close frame
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.send)
	})
}

func (c *Client) reply(env api.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.hub.logger.Error("Failed to encode frame", "error", err)
		return
	}
	if !c.SafeSend(data) {
		c.hub.drop(c, "reply queue full")
	}
}

func (c *Client) replyError(msg string) {
	c.reply(api.Envelope{Kind: api.KindError, Message: msg})
}

// readPump читает кадры клиента до разрыва соединения
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.Close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("Websocket read error", "client_id", c.id, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		c.hub.handle(c, data)
	}
}

// writePump единственный писатель в соединение: кадры из очереди и ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Package notify delivers upload progress events to observers.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/imrenagi/go-drive-upload/upload"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConnectedEvent is the first message of every socket. Its data carries the
// id the client passes as subscriber token when uploading.
const ConnectedEvent = "connected"

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

// Message is the envelope of every event sent to observers.
type Message struct {
	// Token is only set on shared channels where observers need to filter.
	Token string `json:"token,omitempty"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Connected is the payload of ConnectedEvent.
type Connected struct {
	ID string `json:"id"`
}

// Hub keeps one websocket per subscriber token.
type Hub struct {
	sync.RWMutex
	clients  map[string]*client
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// CORS is handled by the router; any page may follow its uploads.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan Message
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// ServeHTTP upgrades the request, assigns a fresh token and keeps the socket
// registered until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan Message, sendBufferSize),
		done: make(chan struct{}),
	}
	logger := log.Ctx(r.Context()).With().Str("token", c.id).Logger()

	h.register(c)
	logger.Info().Msg("someone connected")

	c.send <- Message{Event: ConnectedEvent, Data: Connected{ID: c.id}}
	go h.writeLoop(c, logger)
	h.readLoop(c, logger)

	h.unregister(c)
	logger.Info().Msg("someone disconnected")
}

// readLoop discards whatever the client sends and returns once the
// connection is gone.
func (h *Hub) readLoop(c *client, logger zerolog.Logger) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				logger.Error().Err(err).Msg("read error")
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *client, logger zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				logger.Error().Err(err).Msg("write error")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) register(c *client) {
	h.Lock()
	defer h.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) unregister(c *client) {
	h.Lock()
	defer h.Unlock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
	}
}

// Subscribed reports whether a socket is registered under token.
func (h *Hub) Subscribed(token string) bool {
	h.RLock()
	defer h.RUnlock()
	_, ok := h.clients[token]
	return ok
}

// Notify queues the event on the socket registered under token. It never
// waits on the network: when the socket falls behind the event is dropped.
func (h *Hub) Notify(ctx context.Context, token, event string, payload any) error {
	h.RLock()
	c, ok := h.clients[token]
	h.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no subscriber for %q", upload.ErrInvalidSession, token)
	}

	select {
	case c.send <- Message{Event: event, Data: payload}:
	case <-c.done:
		return fmt.Errorf("%w: subscriber %q disconnected", upload.ErrInvalidSession, token)
	default:
		zerolog.Ctx(ctx).Debug().Str("token", token).Str("event", event).Msg("subscriber is slow, event dropped")
	}
	return nil
}

// Close disconnects every subscriber.
func (h *Hub) Close() error {
	h.RLock()
	defer h.RUnlock()
	for _, c := range h.clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		c.close()
	}
	return nil
}

// Package hub is the server side of the notification channel: a websocket
// relay that fans named events out between browser sessions. It is a
// cache-invalidation pipe, not a source of truth; payloads are opaque.
package hub

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

type Frame []byte

// envelope is the wire format for every hub event.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type conn struct {
	ws   *websocket.Conn
	send chan Frame

	mu     sync.RWMutex
	closed bool
}

func (c *conn) trySend(f Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	// TODO: restrict origins once the deploy origin is known.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub tracks every connected notification client. An event received from one
// client is relayed to all the others, never echoed back to the sender.
type Hub struct {
	readLimit  int64
	pingPeriod time.Duration

	mu    sync.RWMutex
	conns map[string]*conn
}

func New(readLimit int64, pingPeriod time.Duration) *Hub {
	return &Hub{
		readLimit:  readLimit,
		pingPeriod: pingPeriod,
		conns:      make(map[string]*conn),
	}
}

// ClientCount reports the number of live notification connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// HandleWS upgrades the request and pumps the connection until it drops.
func (h *Hub) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Msg("ws upgrade")
		return
	}

	id := uuid.NewString()
	cn := &conn{ws: ws, send: make(chan Frame, 32)}

	h.mu.Lock()
	h.conns[id] = cn
	h.mu.Unlock()
	log.Info().Str("module", "hub").Str("conn", id).Msg("notification client connected")

	go h.writePump(id, cn)
	go h.readPump(id, cn)
}

// Broadcast pushes a server-originated event to every connected client.
func (h *Hub) Broadcast(event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Msg("broadcast marshal")
		return
	}
	data, err := json.Marshal(envelope{Event: event, Payload: raw})
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Msg("broadcast marshal")
		return
	}
	h.relay("", data)
}

// relay fans data out to every connection except from.
func (h *Hub) relay(from string, data Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for id, cn := range h.conns {
		if id == from {
			continue
		}
		if err := cn.trySend(data); err != nil {
			log.Warn().Str("module", "hub").Str("conn", id).Msg("dropping event on backpressure")
			continue
		}
		sent++
	}
	log.Debug().Str("module", "hub").Int("sent_to", sent).Msg("relayed event")
}

func (h *Hub) drop(id string, cn *conn) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
	cn.close()
	log.Info().Str("module", "hub").Str("conn", id).Msg("notification client dropped")
}

func (h *Hub) writePump(id string, c *conn) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "hub").Str("conn", id).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(id string, c *conn) {
	defer h.drop(id, c)

	if h.readLimit > 0 {
		c.ws.SetReadLimit(h.readLimit)
	}
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			log.Warn().Str("module", "hub").Str("conn", id).Msg("bad event envelope")
			continue
		}
		h.relay(id, data)
	}
}

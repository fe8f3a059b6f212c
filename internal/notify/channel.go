// Package notify maintains the persistent push connection that relays
// presence-changed events between separate browser sessions.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/teamcollab/huddle/internal/domain"
)

// EventRoomsUpdated is the one event name both sent and received by every
// session; its payload is the boolean change flag.
const EventRoomsUpdated = "RoomsUpdated"

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handler receives the raw payload of a named server-pushed event.
type Handler func(payload json.RawMessage)

type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Channel is a websocket client for the notification hub. Send and incoming
// events are only valid while Connected. Once an established connection
// drops, the channel reconnects on its own with capped exponential backoff;
// registered handlers survive the reconnect.
type Channel struct {
	url   string
	state atomic.Int32

	mu       sync.Mutex
	handlers map[string]Handler
	conn     *websocket.Conn

	writeMu sync.Mutex

	cancel context.CancelFunc

	baseDelay time.Duration
	maxDelay  time.Duration
}

func NewChannel(url string) *Channel {
	return &Channel{
		url:       url,
		handlers:  make(map[string]Handler),
		baseDelay: 500 * time.Millisecond,
		maxDelay:  30 * time.Second,
	}
}

func (c *Channel) State() State {
	return State(c.state.Load())
}

// On registers the handler for a named event. At most one handler per name;
// re-registration overwrites.
func (c *Channel) On(event string, h Handler) {
	c.mu.Lock()
	c.handlers[event] = h
	c.mu.Unlock()
}

// Start establishes the connection. It must complete before any Send. The
// initial dial failure is the caller's to handle; only drops after a
// successful Start trigger automatic reconnects.
func (c *Channel) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return fmt.Errorf("notification channel already started (%s)", c.State())
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return &domain.NetworkError{Op: "notification channel start", Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()
	c.state.Store(int32(StateConnected))
	log.Info().Str("module", "notify").Str("url", c.url).Msg("notification channel connected")

	go c.run(ctx, conn)
	return nil
}

// Send pushes a named event to the relay. The relay fans it out to all other
// connected clients; it is never echoed back to this one.
func (c *Channel) Send(event string, payload any) error {
	if c.State() != StateConnected {
		return domain.ErrConnectionNotReady
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope{Event: event, Payload: raw})
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return domain.ErrConnectionNotReady
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &domain.NetworkError{Op: "notification channel send", Err: err}
	}
	return nil
}

// Close tears the connection down and stops reconnecting.
func (c *Channel) Close() {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	c.state.Store(int32(StateDisconnected))
}

// run pumps incoming events and reconnects when the connection drops.
func (c *Channel) run(ctx context.Context, conn *websocket.Conn) {
	for {
		c.readLoop(ctx, conn)
		c.state.Store(int32(StateDisconnected))
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		var ok bool
		conn, ok = c.reconnect(ctx)
		if !ok {
			return
		}
	}
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Str("module", "notify").Msg("notification channel read error")
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Str("module", "notify").Msg("bad event envelope")
			continue
		}
		c.mu.Lock()
		h := c.handlers[env.Event]
		c.mu.Unlock()
		if h != nil {
			h(env.Payload)
		}
	}
}

func (c *Channel) reconnect(ctx context.Context) (*websocket.Conn, bool) {
	delay := c.baseDelay
	for {
		c.state.Store(int32(StateConnecting))
		log.Info().Str("module", "notify").Dur("delay", delay).Msg("reconnecting notification channel")

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
			c.state.Store(int32(StateConnected))
			log.Info().Str("module", "notify").Msg("notification channel reconnected")
			return conn, true
		}

		c.state.Store(int32(StateDisconnected))
		jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(delay + jitter):
		}
		if delay *= 2; delay > c.maxDelay {
			delay = c.maxDelay
		}
	}
}

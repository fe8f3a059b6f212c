package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/teamcollab/huddle/internal/auth"
	"github.com/teamcollab/huddle/internal/hub"
	"github.com/teamcollab/huddle/internal/rtc"
)

var ErrBackpressure = errors.New("backpressure")

// MediaController owns the media signaling websocket: join/leave, SDP
// exchange and ICE trickle for the hosted room service.
type MediaController struct {
	minter        *auth.Minter
	rooms         *rtc.Manager
	registry      *rtc.Registry
	relays        *rtc.RelaySet
	notifications *hub.Hub
	readLimit     int64
}

func NewMediaController(minter *auth.Minter, rooms *rtc.Manager, registry *rtc.Registry, relays *rtc.RelaySet, notifications *hub.Hub, readLimit int64) *MediaController {
	return &MediaController{
		minter:        minter,
		rooms:         rooms,
		registry:      registry,
		relays:        relays,
		notifications: notifications,
		readLimit:     readLimit,
	}
}

// wsConn adapts one gorilla connection to rtc.SignalSender.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleMedia authenticates the session token, upgrades the connection and
// pumps it until it drops.
func (ctl *MediaController) HandleMedia(ctx context.Context, c *gin.Context) {
	sid := rtc.SessionID(c.GetString("client_token"))

	identity, err := ctl.minter.Verify(c.Query("token"))
	if err != nil {
		log.Warn().Err(err).Str("module", "transport.media").Str("sid", string(sid)).Msg("rejected media ws")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "transport.media").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "transport.media").Str("sid", string(sid)).Str("identity", string(identity)).Msg("media ws connected")

	if ctl.readLimit > 0 {
		ws.SetReadLimit(ctl.readLimit)
	}
	conn := &wsConn{conn: ws, send: make(chan []byte, 32)}
	member := rtc.NewMember(sid, identity, conn)

	ctx, cancel := context.WithCancel(ctx)
	ctl.registry.Bind(sid, member, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)
}

func (ctl *MediaController) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "transport.media").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "transport.media").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *MediaController) readPump(ctx context.Context, sid rtc.SessionID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "transport.media").Str("sid", string(sid)).Msg("media ws dropped")
		ctl.teardown(sid)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			ctl.handleFrame(ctx, sid, c, data)
		}
	}
}

func (ctl *MediaController) handleFrame(ctx context.Context, sid rtc.SessionID, c *wsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "transport.media").Msg("bad json")
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(sid, c, data)
	case "leave":
		ctl.handleLeave(sid, c)
	case "ping":
		ctl.sendJSON(c, map[string]string{"type": "pong"})
	case "offer":
		ctl.handleOffer(ctx, sid, c, data)
	case "candidate":
		ctl.handleCandidate(sid, data)
	default:
		log.Warn().Str("module", "transport.media").Str("type", env.Type).Msg("unknown frame")
	}
}

func (ctl *MediaController) sendJSON(c rtc.SignalSender, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "transport.media").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

// teardown releases everything a dropped session held: its room seat, its
// relay and its peer connection.
func (ctl *MediaController) teardown(sid rtc.SessionID) {
	ctl.leaveRoom(sid)
	ctl.relays.Stop(sid)
	if member, ok := ctl.registry.Member(sid); ok {
		member.SetMedia(nil)
	}
	ctl.registry.Unbind(sid)
}

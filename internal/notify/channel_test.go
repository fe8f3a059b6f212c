package notify

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/teamcollab/huddle/internal/domain"
	"github.com/teamcollab/huddle/internal/hub"
)

func newHubServer(t *testing.T) (*hub.Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := hub.New(32768, time.Minute)
	r := gin.New()
	r.GET("/notificationHub", h.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http") + "/notificationHub"
}

func startedChannel(t *testing.T, url string) *Channel {
	t.Helper()
	c := NewChannel(url)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Close)
	return c
}

func TestSendBeforeStart(t *testing.T) {
	c := NewChannel("ws://127.0.0.1:0/notificationHub")
	err := c.Send(EventRoomsUpdated, true)
	require.ErrorIs(t, err, domain.ErrConnectionNotReady)
	require.Equal(t, StateDisconnected, c.State())
}

func TestStartFailureSurfacesToCaller(t *testing.T) {
	c := NewChannel("ws://127.0.0.1:1/notificationHub")
	err := c.Start(context.Background())
	var netErr *domain.NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Equal(t, StateDisconnected, c.State())
}

func TestRelayDoesNotEchoToSender(t *testing.T) {
	h, url := newHubServer(t)

	sender := startedChannel(t, url)
	receiver := startedChannel(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 },
		time.Second, 10*time.Millisecond)

	var senderGot, receiverGot atomic.Int32
	sender.On(EventRoomsUpdated, func(json.RawMessage) { senderGot.Add(1) })
	receiver.On(EventRoomsUpdated, func(payload json.RawMessage) {
		var updated bool
		require.NoError(t, json.Unmarshal(payload, &updated))
		require.True(t, updated)
		receiverGot.Add(1)
	})

	require.NoError(t, sender.Send(EventRoomsUpdated, true))

	require.Eventually(t, func() bool { return receiverGot.Load() == 1 },
		time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, senderGot.Load(), "sender must not receive its own event")
}

func TestServerBroadcastReachesEveryClient(t *testing.T) {
	h, url := newHubServer(t)

	a := startedChannel(t, url)
	b := startedChannel(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 },
		time.Second, 10*time.Millisecond)

	var got atomic.Int32
	a.On(EventRoomsUpdated, func(json.RawMessage) { got.Add(1) })
	b.On(EventRoomsUpdated, func(json.RawMessage) { got.Add(1) })

	h.Broadcast(EventRoomsUpdated, true)

	require.Eventually(t, func() bool { return got.Load() == 2 },
		time.Second, 10*time.Millisecond)
}

func TestHandlerReRegistrationOverwrites(t *testing.T) {
	h, url := newHubServer(t)

	c := startedChannel(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	var old, current atomic.Int32
	c.On(EventRoomsUpdated, func(json.RawMessage) { old.Add(1) })
	c.On(EventRoomsUpdated, func(json.RawMessage) { current.Add(1) })

	h.Broadcast(EventRoomsUpdated, true)

	require.Eventually(t, func() bool { return current.Load() == 1 },
		time.Second, 10*time.Millisecond)
	require.Zero(t, old.Load())
}

// An established connection that drops must heal on its own: the channel
// re-dials with backoff, handlers registered before the drop keep firing and
// Send works again.
func TestReconnectAfterConnectionDrop(t *testing.T) {
	h, url := newHubServer(t)

	c := NewChannel(url)
	c.baseDelay = 10 * time.Millisecond
	c.maxDelay = 100 * time.Millisecond
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Close)

	var got atomic.Int32
	c.On(EventRoomsUpdated, func(json.RawMessage) { got.Add(1) })
	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	// Sever the live connection at the TCP level, bypassing Close, so the
	// drop looks like a network failure.
	c.mu.Lock()
	dropped := c.conn
	c.mu.Unlock()
	require.NoError(t, dropped.UnderlyingConn().Close())

	require.Eventually(t, func() bool {
		if c.State() != StateConnected {
			return false
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.conn != dropped
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	h.Broadcast(EventRoomsUpdated, true)
	require.Eventually(t, func() bool { return got.Load() == 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, c.Send(EventRoomsUpdated, true))
}

func TestCloseDisconnects(t *testing.T) {
	h, url := newHubServer(t)

	c := startedChannel(t, url)
	require.Equal(t, StateConnected, c.State())

	c.Close()
	require.Equal(t, StateDisconnected, c.State())
	require.ErrorIs(t, c.Send(EventRoomsUpdated, true), domain.ErrConnectionNotReady)
	require.Eventually(t, func() bool { return h.ClientCount() == 0 },
		time.Second, 10*time.Millisecond)
}

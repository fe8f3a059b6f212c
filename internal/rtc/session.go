package rtc

import (
	"sync"

	"github.com/teamcollab/huddle/internal/domain"
)

type SessionID string

// SignalSender pushes signaling frames to one member. It is owned by the
// transport adapter, which must Close it; the room layer never does.
type SignalSender interface {
	TrySend([]byte) error
	Close()
}

// Member is one connected participant of a hosted room: identity meta plus
// its transport endpoints.
type Member struct {
	SID      SessionID
	Identity domain.Identity

	mu     sync.Mutex
	signal SignalSender
	media  *PeerConn
}

func NewMember(sid SessionID, identity domain.Identity, signal SignalSender) *Member {
	return &Member{SID: sid, Identity: identity, signal: signal}
}

func (m *Member) Signal() SignalSender {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signal
}

func (m *Member) Media() *PeerConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.media
}

func (m *Member) SetMedia(pc *PeerConn) {
	m.mu.Lock()
	old := m.media
	m.media = pc
	m.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

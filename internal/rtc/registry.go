package rtc

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/teamcollab/huddle/internal/domain"
)

type sessionEntry struct {
	RoomName domain.RoomName
	Member   *Member
	Cancel   context.CancelFunc
}

// Registry maps live sessions to their members and current room. The room
// association is cleared on leave while the session itself survives until
// its transport drops.
type Registry struct {
	mu       sync.RWMutex
	sessions map[SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[SessionID]*sessionEntry)}
}

func (r *Registry) Bind(sid SessionID, m *Member, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Member: m, Cancel: cancel}
	log.Info().Str("module", "rtc.registry").Str("sid", string(sid)).Msg("session bound")
}

func (r *Registry) Member(sid SessionID) (*Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Member, true
	}
	return nil, false
}

func (r *Registry) RoomOf(sid SessionID) (domain.RoomName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.RoomName == "" {
		return "", false
	}
	return e.RoomName, true
}

func (r *Registry) SetRoom(sid SessionID, name domain.RoomName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.RoomName = name
	return true
}

func (r *Registry) ClearRoom(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		e.RoomName = ""
	}
}

func (r *Registry) Unbind(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "rtc.registry").Str("sid", string(sid)).Msg("session unbound")
}

// MemberRef pairs a session id with its member for room-scoped walks.
type MemberRef struct {
	SID    SessionID
	Member *Member
}

// MembersOfRoom snapshots every session currently associated with name.
func (r *Registry) MembersOfRoom(name domain.RoomName) []MemberRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberRef, 0, len(r.sessions))
	for sid, e := range r.sessions {
		if e.RoomName == name {
			out = append(out, MemberRef{SID: sid, Member: e.Member})
		}
	}
	return out
}

func (r *Registry) Cancel(sid SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	return true
}

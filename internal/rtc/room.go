// Package rtc hosts the server-side room registry: thread-safe rooms, the
// session registry and the media fan-out for browser peers.
package rtc

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/teamcollab/huddle/internal/domain"
)

var ErrRoomFull = errors.New("room full")

// MemberInfo is a read-only member view for APIs (no transport fields).
type MemberInfo struct {
	SID      SessionID       `json:"sid"`
	Identity domain.Identity `json:"identity"`
}

// Room is a threadsafe in-memory room. It owns the membership set but never
// closes adapter-owned transport resources.
type Room struct {
	id              domain.RoomID
	name            domain.RoomName
	maxParticipants int

	mu      sync.RWMutex
	members map[SessionID]*Member
}

func newRoom(name domain.RoomName, maxParticipants int) *Room {
	return &Room{
		id:              domain.RoomID(uuid.NewString()),
		name:            name,
		maxParticipants: maxParticipants,
		members:         make(map[SessionID]*Member),
	}
}

func (r *Room) ID() domain.RoomID     { return r.id }
func (r *Room) Name() domain.RoomName { return r.name }

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Snapshot renders the registry view of this room.
func (r *Room) Snapshot() domain.NamedRoom {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.NamedRoom{
		ID:               r.id,
		Name:             r.name,
		MaxParticipants:  r.maxParticipants,
		ParticipantCount: len(r.members),
	}
}

func (r *Room) Add(m *Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.maxParticipants > 0 && len(r.members) >= r.maxParticipants {
		return ErrRoomFull
	}
	r.members[m.SID] = m
	log.Info().Str("module", "rtc.room").Str("room", string(r.name)).Str("sid", string(m.SID)).Msg("member added")
	return nil
}

func (r *Room) Remove(sid SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[sid]; !ok {
		return false
	}
	delete(r.members, sid)
	log.Info().Str("module", "rtc.room").Str("room", string(r.name)).Str("sid", string(sid)).Msg("member removed")
	return true
}

func (r *Room) Members() []*Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}

func (r *Room) MembersSnapshot() []MemberInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberInfo, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, MemberInfo{SID: m.SID, Identity: m.Identity})
	}
	return out
}

// BroadcastExcept pushes data to every member but from. Slow consumers are
// skipped; signaling events are droppable by contract.
func (r *Room) BroadcastExcept(from SessionID, data []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sent := 0
	for sid, m := range r.members {
		if sid == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			log.Warn().Str("module", "rtc.room").Str("sid", string(sid)).Msg("broadcast drop on backpressure")
			continue
		}
		sent++
	}
	return sent
}

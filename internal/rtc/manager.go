package rtc

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/teamcollab/huddle/internal/domain"
)

// Manager owns every hosted room. Rooms come into existence on first join
// and are reaped when the last member leaves, so the registry snapshot only
// ever lists rooms that exist.
type Manager struct {
	maxParticipants int

	mu    sync.RWMutex
	rooms map[domain.RoomName]*Room
}

func NewManager(maxParticipants int) *Manager {
	return &Manager{
		maxParticipants: maxParticipants,
		rooms:           make(map[domain.RoomName]*Room),
	}
}

func (m *Manager) GetOrCreate(name domain.RoomName) *Room {
	m.mu.RLock()
	room, ok := m.rooms[name]
	m.mu.RUnlock()
	if ok {
		return room
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[name]; ok {
		return room
	}
	room = newRoom(name, m.maxParticipants)
	m.rooms[name] = room
	log.Info().Str("module", "rtc.manager").Str("room", string(name)).Msg("room created")
	return room
}

func (m *Manager) Get(name domain.RoomName) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[name]
	return room, ok
}

// List returns the full registry snapshot in arrival order of the map walk;
// the order carries no meaning.
func (m *Manager) List() []domain.NamedRoom {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.NamedRoom, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.Snapshot())
	}
	return out
}

// RemoveMember drops sid from the named room and reaps the room when it
// empties. Reports whether a member was actually removed.
func (m *Manager) RemoveMember(name domain.RoomName, sid SessionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[name]
	if !ok {
		return false
	}
	removed := room.Remove(sid)
	if removed && room.MemberCount() == 0 {
		delete(m.rooms, name)
		log.Info().Str("module", "rtc.manager").Str("room", string(name)).Msg("empty room reaped")
	}
	return removed
}

func (m *Manager) StopRoom(name domain.RoomName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, name)
}

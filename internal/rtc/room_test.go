package rtc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teamcollab/huddle/internal/domain"
)

type stubSender struct {
	frames [][]byte
	err    error
}

func (s *stubSender) TrySend(data []byte) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, data)
	return nil
}

func (s *stubSender) Close() {}

func member(sid string) (*Member, *stubSender) {
	sender := &stubSender{}
	return NewMember(SessionID(sid), domain.Identity("user-"+sid), sender), sender
}

func TestRoomSnapshot(t *testing.T) {
	m := NewManager(5)
	room := m.GetOrCreate("general")

	m1, _ := member("s1")
	m2, _ := member("s2")
	require.NoError(t, room.Add(m1))
	require.NoError(t, room.Add(m2))

	snap := room.Snapshot()
	require.Equal(t, domain.RoomName("general"), snap.Name)
	require.Equal(t, 2, snap.ParticipantCount)
	require.Equal(t, 5, snap.MaxParticipants)
	require.NotEmpty(t, snap.ID)
}

func TestRoomFull(t *testing.T) {
	m := NewManager(1)
	room := m.GetOrCreate("tiny")

	m1, _ := member("s1")
	m2, _ := member("s2")
	require.NoError(t, room.Add(m1))
	require.ErrorIs(t, room.Add(m2), ErrRoomFull)
	require.Equal(t, 1, room.MemberCount())
}

func TestBroadcastExceptSkipsSenderAndSlowConsumers(t *testing.T) {
	m := NewManager(0)
	room := m.GetOrCreate("general")

	m1, s1 := member("s1")
	m2, s2 := member("s2")
	m3, s3 := member("s3")
	s3.err = errors.New("backpressure")
	require.NoError(t, room.Add(m1))
	require.NoError(t, room.Add(m2))
	require.NoError(t, room.Add(m3))

	sent := room.BroadcastExcept("s1", []byte("hello"))
	require.Equal(t, 1, sent)
	require.Empty(t, s1.frames, "sender must not receive its own broadcast")
	require.Len(t, s2.frames, 1)
	require.Empty(t, s3.frames)
}

func TestManagerGetOrCreateIsIdempotent(t *testing.T) {
	m := NewManager(0)
	require.Same(t, m.GetOrCreate("general"), m.GetOrCreate("general"))
	require.Len(t, m.List(), 1)
}

func TestManagerReapsEmptyRooms(t *testing.T) {
	m := NewManager(0)
	room := m.GetOrCreate("general")

	m1, _ := member("s1")
	require.NoError(t, room.Add(m1))
	require.Len(t, m.List(), 1)

	require.True(t, m.RemoveMember("general", "s1"))
	require.Empty(t, m.List(), "empty room must not linger in the registry")

	require.False(t, m.RemoveMember("general", "s1"))
}

func TestRegistryRoomAssociation(t *testing.T) {
	r := NewRegistry()
	m1, _ := member("s1")
	r.Bind("s1", m1, nil)

	_, ok := r.RoomOf("s1")
	require.False(t, ok)

	require.True(t, r.SetRoom("s1", "general"))
	name, ok := r.RoomOf("s1")
	require.True(t, ok)
	require.Equal(t, domain.RoomName("general"), name)

	require.Len(t, r.MembersOfRoom("general"), 1)

	r.ClearRoom("s1")
	_, ok = r.RoomOf("s1")
	require.False(t, ok)

	got, ok := r.Member("s1")
	require.True(t, ok)
	require.Same(t, m1, got)

	r.Unbind("s1")
	_, ok = r.Member("s1")
	require.False(t, ok)
}

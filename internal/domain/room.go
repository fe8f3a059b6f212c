// Package domain contains entity without logic, just meta-data
package domain

import "errors"

type (
	RoomName string
	RoomID   string
)

const MaxRoomNameLen = 36

var ErrRoomNameEmpty = errors.New("room name empty")

// ParseRoomName validates a caller-supplied room name, truncating overlong
// names rather than rejecting them.
func ParseRoomName(s string) (RoomName, error) {
	if s == "" {
		return "", ErrRoomNameEmpty
	}
	if len(s) > MaxRoomNameLen {
		s = s[:MaxRoomNameLen]
	}
	return RoomName(s), nil
}

// NamedRoom is the registry's view of a provider-hosted room.
// The client replaces it wholesale on every refresh and never mutates it;
// ParticipantCount is a snapshot and may be stale between refreshes.
type NamedRoom struct {
	ID               RoomID   `json:"id"`
	Name             RoomName `json:"name"`
	MaxParticipants  int      `json:"maxParticipants,omitempty"`
	ParticipantCount int      `json:"participantCount"`
}

// Package provider declares the external real-time SDK surface the client
// core consumes. Media transport, mixing and NAT traversal are owned by the
// provider; nothing here is reimplemented, only called.
package provider

import (
	"context"

	"github.com/teamcollab/huddle/internal/domain"
)

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// LocalTrack is a locally captured media stream. Owned by the caller until
// published; Stop releases the capture hardware, Detach removes any rendered
// elements.
type LocalTrack interface {
	ID() string
	Kind() TrackKind
	Enable()
	Disable()
	IsEnabled() bool
	Stop()
	Detach()
}

// ScreenTrack adds the platform's "stopped" signal, raised when the user
// revokes sharing via browser chrome rather than through the app.
type ScreenTrack interface {
	LocalTrack
	OnStopped(func())
}

// RemoteParticipant is a provider-backed reference. It is never constructed
// locally; the room hands it out on connect/disconnect events.
type RemoteParticipant interface {
	SID() string
	Identity() domain.Identity
}

// LocalParticipant manages this session's published tracks.
type LocalParticipant interface {
	Publish(LocalTrack) error
	Unpublish(LocalTrack) error
	Tracks() []LocalTrack
}

// RoomEvents are the room-level callbacks a session wires up after connect.
// A nil field means the event is ignored.
type RoomEvents struct {
	OnDisconnected            func(err error)
	OnParticipantConnected    func(RemoteParticipant)
	OnParticipantDisconnected func(RemoteParticipant)
	// The argument is nil when no participant is currently dominant.
	OnDominantSpeakerChanged func(RemoteParticipant)
}

// Room is the handle to an active provider-hosted media session.
type Room interface {
	SID() domain.RoomID
	Name() domain.RoomName
	LocalParticipant() LocalParticipant
	Participants() []RemoteParticipant
	Handle(RoomEvents)
	Disconnect()
}

type ConnectOptions struct {
	Name            domain.RoomName
	Tracks          []LocalTrack
	DominantSpeaker bool
}

// Video is the media SDK entry point: connect(token, options) -> Room.
type Video interface {
	Connect(ctx context.Context, token string, opts ConnectOptions) (Room, error)
}

// TrackSource acquires capture tracks from the platform. Acquisition fails
// with domain.ErrPermissionDenied when the user declines device access.
type TrackSource interface {
	AcquireCamera(ctx context.Context) (LocalTrack, error)
	AcquireMicrophone(ctx context.Context) (LocalTrack, error)
	AcquireScreen(ctx context.Context) (ScreenTrack, error)
}

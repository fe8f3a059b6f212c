// Package call owns the locally active room: join/leave lifecycle, local
// track publishing, the remote-participant roster and dominant-speaker
// tracking.
package call

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/teamcollab/huddle/internal/bus"
	"github.com/teamcollab/huddle/internal/domain"
	"github.com/teamcollab/huddle/internal/notify"
	"github.com/teamcollab/huddle/internal/provider"
)

// TokenSource issues the short-lived provider credential for a join.
type TokenSource interface {
	GetAuthToken(ctx context.Context, identity domain.Identity) (string, error)
}

// Notifier pushes presence events to the other sessions. Satisfied by
// *notify.Channel.
type Notifier interface {
	Send(event string, payload any) error
}

// Controller is the one call session of this client process. The active room
// and the remote roster are owned exclusively by it; nothing else mutates
// them. All operations are serialized on one mutex, so a JoinOrCreate issued
// while another is in flight waits for it instead of racing it.
type Controller struct {
	tokens   TokenSource
	video    provider.Video
	source   provider.TrackSource
	presence *bus.PresenceBus
	notifier Notifier

	mu           sync.Mutex
	room         provider.Room
	localTracks  []provider.LocalTrack
	screenTrack  provider.ScreenTrack
	remote       map[string]provider.RemoteParticipant
	dominant     provider.RemoteParticipant
	audioEnabled bool
	videoEnabled bool
}

func NewController(
	tokens TokenSource,
	video provider.Video,
	source provider.TrackSource,
	presence *bus.PresenceBus,
	notifier Notifier,
) *Controller {
	return &Controller{
		tokens:   tokens,
		video:    video,
		source:   source,
		presence: presence,
		notifier: notifier,
		remote:   make(map[string]provider.RemoteParticipant),
	}
}

// JoinOrCreate connects to the named room, disconnecting any prior active
// room first. On failure no room is left active and the error is returned;
// on success both the local presence bus and the remote sessions are nudged
// to re-fetch the registry.
func (c *Controller) JoinOrCreate(ctx context.Context, roomName domain.RoomName, tracks []provider.LocalTrack) (provider.Room, error) {
	c.mu.Lock()

	c.leaveLocked()

	token, err := c.tokens.GetAuthToken(ctx, "")
	if err != nil {
		c.mu.Unlock()
		log.Error().Err(err).Str("module", "call").Str("room", string(roomName)).Msg("token fetch failed")
		return nil, err
	}

	room, err := c.video.Connect(ctx, token, provider.ConnectOptions{
		Name:            roomName,
		Tracks:          tracks,
		DominantSpeaker: true,
	})
	if err != nil {
		c.mu.Unlock()
		connErr := &domain.ProviderConnectError{Room: roomName, Err: err}
		log.Error().Err(connErr).Str("module", "call").Msg("unable to connect to room")
		return nil, connErr
	}

	c.room = room
	c.localTracks = append([]provider.LocalTrack(nil), tracks...)
	c.audioEnabled = hasEnabledKind(tracks, provider.TrackKindAudio)
	c.videoEnabled = hasEnabledKind(tracks, provider.TrackKindVideo)
	c.remote = make(map[string]provider.RemoteParticipant)
	for _, p := range room.Participants() {
		c.remote[p.SID()] = p
	}
	c.dominant = nil
	c.registerRoomEvents(room)
	c.mu.Unlock()

	log.Info().Str("module", "call").Str("room", string(roomName)).Msg("joined room")
	c.publishPresence()
	return room, nil
}

// Leave disconnects the active room, detaches local track elements and
// clears the roster. Calling it with no active room is a no-op.
func (c *Controller) Leave() {
	c.mu.Lock()
	if c.room == nil {
		c.mu.Unlock()
		return
	}
	c.leaveLocked()
	c.mu.Unlock()
	c.publishPresence()
}

// leaveLocked requires c.mu held. Room event handlers are cleared before the
// disconnect so the provider's own disconnected callback never races the
// explicit teardown.
func (c *Controller) leaveLocked() {
	if c.room == nil {
		return
	}
	name := c.room.Name()
	c.room.Handle(provider.RoomEvents{})
	c.room.Disconnect()
	for _, t := range c.localTracks {
		t.Detach()
	}
	if c.screenTrack != nil {
		c.screenTrack.Stop()
		c.screenTrack.Detach()
		c.screenTrack = nil
	}
	c.room = nil
	c.localTracks = nil
	c.remote = make(map[string]provider.RemoteParticipant)
	c.dominant = nil
	log.Info().Str("module", "call").Str("room", string(name)).Msg("left room")
}

// SetLocalAudioEnabled soft-mutes: the audio track stays published, only its
// enabled flag flips.
func (c *Controller) SetLocalAudioEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.localTracks {
		if t.Kind() != provider.TrackKindAudio {
			continue
		}
		if enabled {
			t.Enable()
		} else {
			t.Disable()
		}
	}
	c.audioEnabled = enabled
}

// SetLocalVideoEnabled is deliberately asymmetric to audio: disabling stops
// and unpublishes the track so the camera hardware is released; re-enabling
// acquires and publishes a fresh one.
func (c *Controller) SetLocalVideoEnabled(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !enabled {
		kept := c.localTracks[:0]
		for _, t := range c.localTracks {
			if t.Kind() != provider.TrackKindVideo {
				kept = append(kept, t)
				continue
			}
			if c.room != nil {
				if err := c.room.LocalParticipant().Unpublish(t); err != nil {
					log.Warn().Err(err).Str("module", "call").Msg("unpublish video track")
				}
			}
			t.Stop()
			t.Detach()
		}
		c.localTracks = kept
		c.videoEnabled = false
		return nil
	}

	track, err := c.source.AcquireCamera(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "call").Msg("camera acquire failed")
		return err
	}
	if c.room != nil {
		if err := c.room.LocalParticipant().Publish(track); err != nil {
			track.Stop()
			return err
		}
	}
	c.localTracks = append(c.localTracks, track)
	c.videoEnabled = true
	return nil
}

// CaptureScreen acquires a screen-sharing track and publishes it to the
// active room. When the user revokes sharing via browser chrome the track is
// unpublished and stopped.
func (c *Controller) CaptureScreen(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return &domain.ProviderConnectError{Err: domain.ErrConnectionNotReady}
	}

	track, err := c.source.AcquireScreen(ctx)
	if err != nil {
		// Permission refusals are the direct result of a user action and
		// must surface for acknowledgment.
		log.Error().Err(err).Str("module", "call").Msg("screen capture failed")
		return err
	}
	if err := c.room.LocalParticipant().Publish(track); err != nil {
		track.Stop()
		return err
	}
	c.screenTrack = track
	track.OnStopped(c.handleScreenStopped)
	return nil
}

func (c *Controller) handleScreenStopped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.screenTrack == nil {
		return
	}
	if c.room != nil {
		if err := c.room.LocalParticipant().Unpublish(c.screenTrack); err != nil {
			log.Warn().Err(err).Str("module", "call").Msg("unpublish screen track")
		}
	}
	c.screenTrack.Stop()
	c.screenTrack.Detach()
	c.screenTrack = nil
	log.Info().Str("module", "call").Msg("screen sharing stopped")
}

func (c *Controller) ActiveRoom() provider.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Controller) RemoteParticipants() []provider.RemoteParticipant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]provider.RemoteParticipant, 0, len(c.remote))
	for _, p := range c.remote {
		out = append(out, p)
	}
	return out
}

func (c *Controller) DominantSpeaker() provider.RemoteParticipant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dominant
}

func (c *Controller) IsAudioEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioEnabled
}

func (c *Controller) IsVideoEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.videoEnabled
}

// registerRoomEvents requires c.mu held. Handlers capture the room handle
// and check it against the current one, so a stale callback arriving after
// the room changed is ignored.
func (c *Controller) registerRoomEvents(room provider.Room) {
	room.Handle(provider.RoomEvents{
		OnDisconnected: func(err error) {
			c.handleDisconnected(room, err)
		},
		OnParticipantConnected: func(p provider.RemoteParticipant) {
			c.handleParticipantConnected(room, p)
		},
		OnParticipantDisconnected: func(p provider.RemoteParticipant) {
			c.handleParticipantDisconnected(room, p)
		},
		OnDominantSpeakerChanged: func(p provider.RemoteParticipant) {
			c.handleDominantSpeakerChanged(room, p)
		},
	})
}

func (c *Controller) handleDisconnected(room provider.Room, err error) {
	c.mu.Lock()
	if c.room != room {
		c.mu.Unlock()
		return
	}
	log.Warn().Err(err).Str("module", "call").Str("room", string(room.Name())).Msg("room disconnected")
	for _, t := range c.localTracks {
		t.Detach()
	}
	c.room = nil
	c.localTracks = nil
	c.remote = make(map[string]provider.RemoteParticipant)
	c.dominant = nil
	c.mu.Unlock()

	c.presence.Publish()
}

func (c *Controller) handleParticipantConnected(room provider.Room, p provider.RemoteParticipant) {
	c.mu.Lock()
	if c.room != room {
		c.mu.Unlock()
		return
	}
	c.remote[p.SID()] = p
	c.mu.Unlock()

	c.presence.Publish()
}

func (c *Controller) handleParticipantDisconnected(room provider.Room, p provider.RemoteParticipant) {
	c.mu.Lock()
	if c.room != room {
		c.mu.Unlock()
		return
	}
	delete(c.remote, p.SID())
	if c.dominant != nil && c.dominant.SID() == p.SID() {
		c.dominant = nil
	}
	c.mu.Unlock()

	c.presence.Publish()
}

func (c *Controller) handleDominantSpeakerChanged(room provider.Room, p provider.RemoteParticipant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room != room {
		return
	}
	c.dominant = p
}

// publishPresence must be called without c.mu held: bus handlers run
// synchronously and may read controller state. The remote send is
// best-effort: a dropped nudge costs the other sessions a refresh, never
// correctness.
func (c *Controller) publishPresence() {
	c.presence.Publish()
	if err := c.notifier.Send(notify.EventRoomsUpdated, true); err != nil {
		log.Warn().Err(err).Str("module", "call").Msg("presence nudge not sent")
	}
}

func hasEnabledKind(tracks []provider.LocalTrack, kind provider.TrackKind) bool {
	for _, t := range tracks {
		if t.Kind() == kind && t.IsEnabled() {
			return true
		}
	}
	return false
}

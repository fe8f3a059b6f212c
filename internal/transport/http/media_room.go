package http

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/teamcollab/huddle/internal/domain"
	"github.com/teamcollab/huddle/internal/notify"
	"github.com/teamcollab/huddle/internal/rtc"
)

// handleJoin places the session in the named room, creating it on first
// join. A session already in a room is moved: the old seat is released
// before the new one is taken.
func (ctl *MediaController) handleJoin(sid rtc.SessionID, c *wsConn, data []byte) {
	type joinPayload struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "transport.media").Msg("bad join payload")
		ctl.sendJSON(c, map[string]any{"type": "error", "error": "bad_payload"})
		return
	}
	name, err := domain.ParseRoomName(p.Room)
	if err != nil {
		ctl.sendJSON(c, map[string]any{"type": "error", "error": err.Error()})
		return
	}

	member, ok := ctl.registry.Member(sid)
	if !ok {
		log.Warn().Str("module", "transport.media").Str("sid", string(sid)).Msg("join: no session")
		return
	}

	ctl.leaveRoom(sid)

	room := ctl.rooms.GetOrCreate(name)
	if err := room.Add(member); err != nil {
		if errors.Is(err, rtc.ErrRoomFull) {
			ctl.sendJSON(c, map[string]any{"type": "error", "error": "room_full"})
			return
		}
		ctl.sendJSON(c, map[string]any{"type": "error", "error": err.Error()})
		return
	}
	ctl.registry.SetRoom(sid, name)
	log.Info().Str("module", "transport.media").Str("sid", string(sid)).Str("room", string(name)).Msg("join")

	ctl.sendJSON(c, struct {
		Type     string           `json:"type"`
		Room     domain.RoomID    `json:"room"`
		RoomName domain.RoomName  `json:"room_name"`
		Members  []rtc.MemberInfo `json:"members"`
		Count    int              `json:"count"`
	}{
		Type:     "room_state",
		Room:     room.ID(),
		RoomName: room.Name(),
		Members:  room.MembersSnapshot(),
		Count:    room.MemberCount(),
	})

	ctl.broadcastFrom(sid, struct {
		Type     string          `json:"type"`
		SID      rtc.SessionID   `json:"sid"`
		Identity domain.Identity `json:"identity"`
	}{Type: "member_joined", SID: sid, Identity: member.Identity})

	// Cross-wire media with roommates that already publish, and vice versa.
	ctl.linkMedia(sid, member)

	ctl.notifications.Broadcast(notify.EventRoomsUpdated, true)
}

// handleLeave releases the room seat; the websocket itself stays up.
func (ctl *MediaController) handleLeave(sid rtc.SessionID, c *wsConn) {
	ctl.leaveRoom(sid)
	ctl.sendJSON(c, map[string]string{"type": "left"})
}

// leaveRoom removes sid from its current room, unwires relays and tells the
// remaining members. No-op when sid is not in a room.
func (ctl *MediaController) leaveRoom(sid rtc.SessionID) {
	name, ok := ctl.registry.RoomOf(sid)
	if !ok {
		return
	}

	member, _ := ctl.registry.Member(sid)
	roommates := ctl.registry.MembersOfRoom(name)

	ctl.registry.ClearRoom(sid)
	ctl.rooms.RemoveMember(name, sid)
	log.Info().Str("module", "transport.media").Str("sid", string(sid)).Str("room", string(name)).Msg("leave")

	for _, mate := range roommates {
		if mate.SID == sid {
			continue
		}
		ctl.relays.Unsubscribe(sid, mate.SID)
		ctl.relays.Unsubscribe(mate.SID, sid)
	}

	if member != nil {
		if room, found := ctl.rooms.Get(name); found {
			b, err := json.Marshal(struct {
				Type     string          `json:"type"`
				SID      rtc.SessionID   `json:"sid"`
				Identity domain.Identity `json:"identity"`
			}{Type: "member_left", SID: sid, Identity: member.Identity})
			if err == nil {
				room.BroadcastExcept(sid, b)
			}
		}
	}

	ctl.notifications.Broadcast(notify.EventRoomsUpdated, true)
}

// broadcastFrom fans v out to everyone sharing a room with sid.
func (ctl *MediaController) broadcastFrom(sid rtc.SessionID, v any) {
	name, ok := ctl.registry.RoomOf(sid)
	if !ok {
		return
	}
	room, ok := ctl.rooms.Get(name)
	if !ok {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "transport.media").Msg("broadcast marshal")
		return
	}
	room.BroadcastExcept(sid, b)
}

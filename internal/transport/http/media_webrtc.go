package http

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/teamcollab/huddle/internal/rtc"
)

func (ctl *MediaController) sendCandidate(c *wsConn, ci webrtc.ICECandidateInit) {
	resp := struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid,omitempty"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
	}{
		Type:      "candidate",
		Candidate: ci.Candidate,
	}
	if ci.SDPMid != nil {
		resp.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		resp.SDPMLineIndex = *ci.SDPMLineIndex
	}
	ctl.sendJSON(c, resp)
}

func (ctl *MediaController) handleOffer(ctx context.Context, sid rtc.SessionID, c *wsConn, data []byte) {
	type offerPayload struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	var p offerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "transport.media").Msg("bad offer payload")
		return
	}

	member, ok := ctl.registry.Member(sid)
	if !ok {
		log.Warn().Str("module", "transport.media").Str("sid", string(sid)).Msg("offer: no session")
		return
	}

	pc, err := rtc.NewPeerConn(rtc.DefaultRTCConfig(), sid)
	if err != nil {
		log.Error().Err(err).Str("module", "transport.media").Msg("new peer connection")
		return
	}

	pc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		ctl.sendCandidate(c, ci)
	})
	pc.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote) {
		ctl.relays.Start(trackCtx, sid, track)
		ctl.subscribeRoommates(sid)
	})
	pc.OnClosed(func() {
		ctl.relays.Stop(sid)
	})

	if err := pc.Start(ctx); err != nil {
		log.Error().Err(err).Str("module", "transport.media").Msg("peer connection start")
		pc.Close()
		return
	}

	answer, err := pc.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  p.SDP,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "transport.media").Msg("apply offer")
		pc.Close()
		return
	}

	member.SetMedia(pc)
	ctl.linkMedia(sid, member)

	ctl.sendJSON(c, map[string]string{"type": "answer", "sdp": answer.SDP})
}

func (ctl *MediaController) handleCandidate(sid rtc.SessionID, data []byte) {
	type candidatePayload struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex"`
	}
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "transport.media").Msg("bad candidate payload")
		return
	}

	cand := webrtc.ICECandidateInit{Candidate: p.Candidate}
	if p.SDPMid != "" {
		cand.SDPMid = &p.SDPMid
	}
	cand.SDPMLineIndex = &p.SDPMLineIndex

	member, ok := ctl.registry.Member(sid)
	if !ok {
		log.Warn().Str("module", "transport.media").Str("sid", string(sid)).Msg("candidate: no session")
		return
	}
	pc := member.Media()
	if pc == nil {
		log.Warn().Str("module", "transport.media").Str("sid", string(sid)).Msg("candidate: no media connection")
		return
	}
	if err := pc.AddICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "transport.media").Msg("add ice candidate")
	}
}

// linkMedia cross-wires a session with its roommates: it subscribes to every
// roommate that already publishes, and every roommate with media subscribes
// to it.
func (ctl *MediaController) linkMedia(sid rtc.SessionID, member *rtc.Member) {
	name, ok := ctl.registry.RoomOf(sid)
	if !ok {
		return
	}
	for _, mate := range ctl.registry.MembersOfRoom(name) {
		if mate.SID == sid {
			continue
		}
		if pc := member.Media(); pc != nil && ctl.relays.Has(mate.SID) {
			if err := ctl.relays.Subscribe(mate.SID, sid, pc); err != nil {
				log.Error().Err(err).Str("module", "transport.media").Str("src", string(mate.SID)).Msg("subscribe")
			}
		}
		if pc := mate.Member.Media(); pc != nil && ctl.relays.Has(sid) {
			if err := ctl.relays.Subscribe(sid, mate.SID, pc); err != nil {
				log.Error().Err(err).Str("module", "transport.media").Str("dst", string(mate.SID)).Msg("subscribe")
			}
		}
	}
}

// subscribeRoommates attaches sid's fresh publication to every roommate
// that already has media up.
func (ctl *MediaController) subscribeRoommates(sid rtc.SessionID) {
	name, ok := ctl.registry.RoomOf(sid)
	if !ok {
		return
	}
	for _, mate := range ctl.registry.MembersOfRoom(name) {
		if mate.SID == sid {
			continue
		}
		if pc := mate.Member.Media(); pc != nil {
			if err := ctl.relays.Subscribe(sid, mate.SID, pc); err != nil {
				log.Error().Err(err).Str("module", "transport.media").Str("dst", string(mate.SID)).Msg("subscribe")
			}
		}
	}
}

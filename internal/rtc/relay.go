package rtc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	outStateOk int32 = iota
	outStateDelete
)

// outTrack is a single outgoing copy of a published track for one
// subscriber.
type outTrack struct {
	track *webrtc.TrackLocalStaticRTP
	state atomic.Int32
}

// Relay pumps RTP packets from one publisher's track to every subscribed
// roommate.
type Relay struct {
	src    *webrtc.TrackRemote
	cancel context.CancelFunc

	mu   sync.RWMutex
	outs map[SessionID]*outTrack
}

func newRelay(src *webrtc.TrackRemote, cancel context.CancelFunc) *Relay {
	return &Relay{src: src, cancel: cancel, outs: make(map[SessionID]*outTrack)}
}

func (r *Relay) addOut(dst SessionID, track *webrtc.TrackLocalStaticRTP) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outs[dst] = &outTrack{track: track}
}

func (r *Relay) markDelete(dst SessionID) {
	r.mu.RLock()
	ot, ok := r.outs[dst]
	r.mu.RUnlock()
	if ok {
		ot.state.Store(outStateDelete)
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outs {
		ot.state.Store(outStateDelete)
	}
}

func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			r.markAllDelete()
			return
		default:
		}
		pkt, _, err := r.src.ReadRTP()
		if err != nil {
			logger.Warn().Err(err).Msg("relay read error, stopping")
			r.markAllDelete()
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	dirty := false
	for dst, ot := range r.outs {
		if ot.state.Load() == outStateDelete {
			dirty = true
			continue
		}
		if err := ot.track.WriteRTP(pkt); err != nil {
			logger.Warn().Err(err).Str("dst_sid", string(dst)).Msg("relay write error")
			ot.state.Store(outStateDelete)
			dirty = true
		}
	}
	r.mu.RUnlock()

	if dirty {
		r.mu.Lock()
		for dst, ot := range r.outs {
			if ot.state.Load() == outStateDelete {
				delete(r.outs, dst)
			}
		}
		r.mu.Unlock()
	}
}

// RelaySet tracks one relay per publishing session.
type RelaySet struct {
	mu     sync.RWMutex
	relays map[SessionID]*Relay
}

func NewRelaySet() *RelaySet {
	return &RelaySet{relays: make(map[SessionID]*Relay)}
}

// Start begins relaying a newly published track, replacing any previous
// relay for the same publisher.
func (s *RelaySet) Start(ctx context.Context, sid SessionID, track *webrtc.TrackRemote) {
	logger := log.With().Str("module", "rtc.relay").Str("sid", string(sid)).Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := newRelay(track, cancel)

	s.mu.Lock()
	if old, ok := s.relays[sid]; ok {
		logger.Info().Msg("replacing relay")
		old.markAllDelete()
		old.cancel()
	}
	s.relays[sid] = relay
	s.mu.Unlock()

	go relay.loop(relayCtx, &logger)
}

// Subscribe copies src's publisher track into dst's peer connection.
func (s *RelaySet) Subscribe(srcSID, dstSID SessionID, pc *PeerConn) error {
	s.mu.RLock()
	relay, ok := s.relays[srcSID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	local, err := webrtc.NewTrackLocalStaticRTP(
		relay.src.Codec().RTPCodecCapability,
		relay.src.ID(),
		relay.src.StreamID(),
	)
	if err != nil {
		return err
	}
	if _, err := pc.AddLocalTrack(local); err != nil {
		return err
	}
	relay.addOut(dstSID, local)
	return nil
}

// Unsubscribe detaches dst from src's relay.
func (s *RelaySet) Unsubscribe(srcSID, dstSID SessionID) {
	s.mu.RLock()
	relay, ok := s.relays[srcSID]
	s.mu.RUnlock()
	if ok {
		relay.markDelete(dstSID)
	}
}

// Stop tears the publisher's relay down.
func (s *RelaySet) Stop(sid SessionID) {
	s.mu.Lock()
	relay, ok := s.relays[sid]
	if ok {
		delete(s.relays, sid)
	}
	s.mu.Unlock()
	if ok {
		relay.markAllDelete()
		relay.cancel()
	}
}

// Has reports whether sid currently publishes.
func (s *RelaySet) Has(sid SessionID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.relays[sid]
	return ok
}

// Package bus carries the process-wide "rooms may have changed" signal.
// It decouples producers of presence change (join/leave actions, remote
// notifications) from consumers (room list refresh) without direct references.
package bus

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Handler receives the change flag. The flag carries no diff; consumers must
// re-fetch the full room list on every delivery.
type Handler func(changed bool)

// PresenceBus is a multi-subscriber signal source that replays the most
// recently published value to each new subscriber. Without the replay a
// subscriber registered just after a publish would miss its initial refresh.
type PresenceBus struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]Handler
	last    bool
	hasLast bool
}

func New() *PresenceBus {
	return &PresenceBus{subs: make(map[int]Handler)}
}

// Subscribe registers h and returns its unsubscribe function. Callers must
// unsubscribe on teardown; a leaked handler keeps referencing destroyed state.
// If a value was ever published, h is invoked with it exactly once before
// Subscribe returns.
func (b *PresenceBus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = h
	replay, hasReplay := b.last, b.hasLast
	b.mu.Unlock()

	if hasReplay {
		h(replay)
	}

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish fans the change flag out to every current subscriber. Handlers run
// without the bus lock held, so a handler may publish or unsubscribe
// re-entrantly; a handler unsubscribed mid-delivery is skipped.
func (b *PresenceBus) Publish() {
	b.mu.Lock()
	b.last = true
	b.hasLast = true
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	log.Debug().Str("module", "bus").Int("subscribers", len(ids)).Msg("presence published")

	for _, id := range ids {
		b.mu.Lock()
		h, ok := b.subs[id]
		b.mu.Unlock()
		if ok {
			h(true)
		}
	}
}

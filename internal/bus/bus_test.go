package bus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscribeBeforePublish(t *testing.T) {
	b := New()

	var got []bool
	unsub := b.Subscribe(func(changed bool) { got = append(got, changed) })
	defer unsub()

	require.Empty(t, got, "no replay before first publish")

	b.Publish()
	b.Publish()
	require.Equal(t, []bool{true, true}, got)
}

func TestLateSubscriberReplaysLastValueOnce(t *testing.T) {
	b := New()
	b.Publish()
	b.Publish()

	var got []bool
	unsub := b.Subscribe(func(changed bool) { got = append(got, changed) })
	defer unsub()

	// Two publishes coalesce into a single replayed value.
	require.Equal(t, []bool{true}, got)

	b.Publish()
	require.Equal(t, []bool{true, true}, got)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()

	calls := 0
	unsub := b.Subscribe(func(bool) { calls++ })

	b.Publish()
	require.Equal(t, 1, calls)

	unsub()
	b.Publish()
	require.Equal(t, 1, calls)
}

func TestReentrantPublishFromHandler(t *testing.T) {
	b := New()

	calls := 0
	unsub := b.Subscribe(func(bool) {
		calls++
		if calls == 1 {
			b.Publish()
		}
	})
	defer unsub()

	b.Publish()
	require.Equal(t, 2, calls)
}

func TestUnsubscribeDuringDelivery(t *testing.T) {
	b := New()

	var secondCalls int
	var unsubSecond func()
	unsubFirst := b.Subscribe(func(bool) {
		if unsubSecond != nil {
			unsubSecond()
		}
	})
	defer unsubFirst()
	unsubSecond = b.Subscribe(func(bool) { secondCalls++ })

	b.Publish()
	b.Publish()
	// The second subscriber may see at most the delivery in flight when it
	// was removed, never a later one.
	require.LessOrEqual(t, secondCalls, 1)
}

package swapevents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	bus := NewBus(4)
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	sw := &swapcore.Swap{ID: "swap-1"}
	bus.Added(sw)

	select {
	case evt := <-ch:
		require.Equal(t, Added, evt.Kind)
		require.Equal(t, "swap-1", evt.Swap.ID)
	case <-time.After(time.Second):
		t.Fatal("did not receive event")
	}
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	bus := NewBus(4)
	ch1, unsub1 := bus.Subscribe()
	ch2, unsub2 := bus.Subscribe()
	defer unsub1()
	defer unsub2()

	bus.Changed(&swapcore.Swap{ID: "swap-2"})

	for _, ch := range []<-chan SwapEvent{ch1, ch2} {
		select {
		case evt := <-ch:
			require.Equal(t, Changed, evt.Kind)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed event")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(4)
	ch, unsubscribe := bus.Subscribe()
	unsubscribe()

	_, ok := <-ch
	require.False(t, ok)
}

func TestSlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	bus := NewBus(1)
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	// Fill the buffer, then publish again — must not deadlock.
	bus.Added(&swapcore.Swap{ID: "a"})
	done := make(chan struct{})
	go func() {
		bus.Added(&swapcore.Swap{ID: "b"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
	<-ch
}

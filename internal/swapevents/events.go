// Package swapevents implements the engine's SwapChanged/Added/Removed
// notifications as plain Go channels over capability composition, no
// base "emitter" type, with an optional WebSocket relay (ws_relay.go)
// for external consumers using the same hub/broadcast pattern as a
// typical gorilla/websocket hub.
package swapevents

import (
	"sync"

	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

// ChangeKind distinguishes the three notification kinds the façade emits.
type ChangeKind int

const (
	Added ChangeKind = iota
	Changed
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Changed:
		return "changed"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// SwapEvent is one notification about a swap's lifecycle.
type SwapEvent struct {
	Kind ChangeKind
	Swap *swapcore.Swap
}

// Bus fans out swap lifecycle events to any number of subscribers via plain
// channels. Each subscriber gets its own buffered channel; a slow
// subscriber drops events rather than blocking the publisher (bounded
// buffer, non-blocking send).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan SwapEvent]struct{}
	bufferSize  int
}

// NewBus creates an event bus. bufferSize bounds each subscriber channel;
// 0 defaults to 64.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		subscribers: make(map[chan SwapEvent]struct{}),
		bufferSize:  bufferSize,
	}
}

// Subscribe returns a channel of future events and an unsubscribe func.
func (b *Bus) Subscribe() (<-chan SwapEvent, func()) {
	ch := make(chan SwapEvent, b.bufferSize)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish fans an event out to every current subscriber, non-blocking.
func (b *Bus) Publish(evt SwapEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			// Subscriber too slow; drop rather than block the publisher.
		}
	}
}

// Added publishes an Added event.
func (b *Bus) Added(s *swapcore.Swap) { b.Publish(SwapEvent{Kind: Added, Swap: s}) }

// Changed publishes a Changed event.
func (b *Bus) Changed(s *swapcore.Swap) { b.Publish(SwapEvent{Kind: Changed, Swap: s}) }

// Removed publishes a Removed event.
func (b *Bus) Removed(s *swapcore.Swap) { b.Publish(SwapEvent{Kind: Removed, Swap: s}) }

package transport

import (
	"sync"

	"github.com/raktradar/relay/event"
)

// Handler receives delivered notifications. Handlers must tolerate
// duplicate and out-of-order deliveries; admission control belongs to the
// consumer's deduplicator, not the transport.
type Handler func(event.Notification)

type subscription struct {
	id int
	fn Handler
}

// Bus is the same-process delivery channel. Handlers fire synchronously in
// registration order, mirroring same-document event dispatch.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus { return &Bus{} }

// Subscribe registers a handler and returns its unsubscribe function.
// Subscribing never replays past events.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, fn: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers the notification to every current subscriber. Handlers run
// outside the lock so they may subscribe or unsubscribe reentrantly.
func (b *Bus) Emit(n event.Notification) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.fn(n)
	}
}

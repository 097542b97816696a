// Package transport fans notification events out over redundant delivery
// channels: a same-process bus, a best-effort websocket broadcast, and the
// persisted store that other processes watch. No single channel is
// reliable; together with the poller they give every dashboard at least
// one delivery, and the consumer's deduplicator collapses the rest.
package transport

import (
	"github.com/raktradar/relay/event"
	"github.com/raktradar/relay/logging"
	"github.com/raktradar/relay/store"
	"github.com/sirupsen/logrus"
)

// Mux is the transport multiplexer. One Publish produces a store write
// (durable, recoverable by late subscribers inside the relevance window),
// a synchronous local emission, and a broadcast to other processes when a
// broker is reachable.
type Mux struct {
	st     *store.Store
	bus    *Bus
	bc     *Broadcast
	logger *logrus.Entry
}

// NewMux creates a multiplexer over the store. brokerURL may be empty; a
// broker that is configured but unreachable only disables the broadcast
// channel, never the publish.
func NewMux(st *store.Store, brokerURL string) *Mux {
	m := &Mux{
		st:     st,
		bus:    NewBus(),
		logger: logging.NewLogger("transport"),
	}

	if brokerURL != "" {
		bc, err := DialBroadcast(brokerURL, m.Dispatch)
		if err != nil {
			m.logger.WithError(err).Debug("Broadcast channel unavailable, continuing without it")
		} else {
			m.bc = bc
		}
	}
	return m
}

// Publish emits one logical event on every channel. Channel order is not a
// delivery-order guarantee; subscribers may observe the channels in any
// interleaving.
func (m *Mux) Publish(n event.Notification) {
	if err := m.st.PutNotification(n); err != nil {
		// The durable channel failed; the live channels still go out and
		// the next poll reconverges state.
		m.logger.WithError(err).Warn("Store write for notification failed")
	}

	m.bus.Emit(n)

	if m.bc != nil {
		m.bc.Send(n)
	}
}

// Subscribe registers a handler for deliveries from all channels and
// returns its unsubscribe function. No past events are replayed.
func (m *Mux) Subscribe(h Handler) func() {
	return m.bus.Subscribe(h)
}

// Dispatch injects an externally received notification (broadcast frame,
// store-watch pickup) into the local bus.
func (m *Mux) Dispatch(n event.Notification) {
	m.bus.Emit(n)
}

// Broadcasting reports whether the broadcast channel is connected.
func (m *Mux) Broadcasting() bool { return m.bc != nil }

// Close releases the broadcast connection. Bus subscriptions are released
// by their own unsubscribe functions.
func (m *Mux) Close() {
	if m.bc != nil {
		m.bc.Close()
	}
}

package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raktradar/relay/errors"
	"github.com/raktradar/relay/event"
	"github.com/raktradar/relay/logging"
	"github.com/sirupsen/logrus"
)

// Broadcast is the best-effort cross-process channel: a websocket
// connection to a local broker that relays notifications between dashboard
// processes. It is pure optimization; correctness comes from the store and
// the poller, so every failure here degrades silently.
type Broadcast struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	logger    *logrus.Entry
	closeOnce sync.Once
}

// DialBroadcast connects to the broker and starts delivering inbound
// notifications to onEvent. Callers treat a dial error as "channel
// unsupported" and continue without it.
func DialBroadcast(url string, onEvent Handler) (*Broadcast, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, errors.BrokerUnavailable(url, err)
	}

	b := &Broadcast{
		conn:   conn,
		logger: logging.NewLogger("broadcast"),
	}
	go b.readLoop(onEvent)
	return b, nil
}

// readLoop delivers inbound notifications until the connection drops.
// There is no reconnect; a lost broker degrades this channel for the rest
// of the session.
func (b *Broadcast) readLoop(onEvent Handler) {
	for {
		var n event.Notification
		if err := b.conn.ReadJSON(&n); err != nil {
			b.logger.WithError(err).Debug("Broadcast connection closed")
			return
		}
		onEvent(n)
	}
}

// Send publishes a notification to the broker. Errors are logged and
// swallowed.
func (b *Broadcast) Send(n event.Notification) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.conn.WriteJSON(n); err != nil {
		b.logger.WithError(err).Debug("Broadcast send failed")
	}
}

// Close shuts the connection down.
func (b *Broadcast) Close() {
	b.closeOnce.Do(func() {
		_ = b.conn.Close()
	})
}

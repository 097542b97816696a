package transport

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/raktradar/relay/logging"
	"github.com/sirupsen/logrus"
)

// Broker relays notifications between connected dashboard processes. It
// never inspects payloads; messages from one client are forwarded verbatim
// to every other client, matching browser broadcast-channel semantics where
// the sender does not hear its own message.
type Broker struct {
	logger   *logrus.Entry
	upgrader websocket.Upgrader
	server   *http.Server

	mu      sync.Mutex
	clients map[*brokerClient]struct{}
}

type brokerClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewBroker creates an idle broker.
func NewBroker() *Broker {
	return &Broker{
		logger: logging.NewLogger("broker"),
		upgrader: websocket.Upgrader{
			// Local-only relay; dashboards connect from file:// equivalents.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*brokerClient]struct{}),
	}
}

// Handler returns the broker's HTTP handler, exposing /ws and /health.
func (b *Broker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", b.handleWS)
	return mux
}

// ListenAndServe starts the broker on the given address. It blocks until
// the server stops or fails.
func (b *Broker) ListenAndServe(addr string) error {
	b.server = &http.Server{Addr: addr, Handler: b.Handler()}
	b.logger.WithField("addr", addr).Info("Broker listening")
	return b.server.ListenAndServe()
}

// Shutdown gracefully stops the broker and disconnects all clients.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	for c := range b.clients {
		_ = c.conn.Close()
		close(c.send)
		delete(b.clients, c)
	}
	b.mu.Unlock()

	if b.server != nil {
		return b.server.Shutdown(ctx)
	}
	return nil
}

func (b *Broker) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &brokerClient{conn: conn, send: make(chan []byte, 16)}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	count := len(b.clients)
	b.mu.Unlock()
	b.logger.WithField("clients", count).Debug("Client connected")

	go c.writePump()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		b.relay(c, msg)
	}

	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
	_ = conn.Close()
	b.logger.Debug("Client disconnected")
}

// relay forwards a message to every client except its origin. Slow clients
// drop messages rather than stalling the broker; the poller backstops them.
func (b *Broker) relay(origin *brokerClient, msg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		if c == origin {
			continue
		}
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (c *brokerClient) writePump() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

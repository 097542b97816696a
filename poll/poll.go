package poll

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/raktradar/relay/event"
	"github.com/raktradar/relay/logging"
	"github.com/raktradar/relay/store"
)

// State describes what the poller is doing right now.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateReconciling State = "reconciling"
	StateSuppressed  State = "suppressed"
)

// FetchFunc retrieves the complete current collection for one fact kind.
type FetchFunc func(ctx context.Context, kind event.Kind) ([]json.RawMessage, error)

// Poller periodically refetches subscribed fact kinds from the backend and
// writes the snapshots into the store. It is the delivery channel of last
// resort: even if every push channel misses an update, the next tick
// converges the dashboard to backend state.
type Poller struct {
	st       *store.Store
	fetch    FetchFunc
	kinds    []event.Kind
	interval time.Duration
	logger   *logrus.Entry

	// onReconcile fires after a kind's fact has been replaced, so views
	// can refresh from the store.
	onReconcile func(event.Kind)

	mu              sync.Mutex
	state           State
	suppressedUntil time.Time
	lastUpdated     time.Time
	cancel          context.CancelFunc
	done            chan struct{}
}

// New builds a poller over the given kinds. A zero interval falls back to
// five seconds.
func New(st *store.Store, fetch FetchFunc, kinds []event.Kind, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		st:       st,
		fetch:    fetch,
		kinds:    kinds,
		interval: interval,
		logger:   logging.NewLogger("poll"),
		state:    StateIdle,
	}
}

// OnReconcile registers a callback invoked after each successful fact
// replacement. Must be called before Start.
func (p *Poller) OnReconcile(fn func(event.Kind)) {
	p.onReconcile = fn
}

// Interval reports the configured tick interval.
func (p *Poller) Interval() time.Duration { return p.interval }

// Start launches the polling loop. The first cycle runs immediately so a
// fresh dashboard does not wait a full interval for data. Start returns
// once the loop goroutine is running; call Stop or cancel ctx to end it.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		p.cycle(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.cycle(ctx)
			}
		}
	}()
}

// Stop ends the polling loop and waits for any in-flight cycle to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Suppress skips ticks until d has elapsed. Suppressed ticks are dropped,
// not queued; polling resumes on the first tick after the deadline. Used
// after a local deletion so a stale backend snapshot cannot race the
// tombstone.
func (p *Poller) Suppress(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(p.suppressedUntil) {
		p.suppressedUntil = until
	}
	p.logger.WithField("until", until.Format(time.RFC3339)).Debug("Polling suppressed")
}

// State reports the current loop state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if time.Now().Before(p.suppressedUntil) {
		return StateSuppressed
	}
	return p.state
}

// LastUpdated reports when the last successful cycle completed. Zero until
// the first success.
func (p *Poller) LastUpdated() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastUpdated
}

func (p *Poller) cycle(ctx context.Context) {
	p.mu.Lock()
	if time.Now().Before(p.suppressedUntil) {
		p.mu.Unlock()
		p.logger.Debug("Tick skipped while suppressed")
		return
	}
	p.state = StateFetching
	p.mu.Unlock()

	defer p.setState(StateIdle)

	ok := false
	for _, kind := range p.kinds {
		if ctx.Err() != nil {
			return
		}
		records, err := p.fetch(ctx, kind)
		if err != nil {
			// Keep the previous fact; the store stays on the last good
			// snapshot until the backend answers again.
			p.logger.WithError(err).WithField("kind", kind).Warn("Fetch failed, keeping previous fact")
			continue
		}

		p.setState(StateReconciling)
		if err := p.st.PutFact(kind, records); err != nil {
			p.logger.WithError(err).WithField("kind", kind).Warn("Failed to persist fact")
			continue
		}
		ok = true
		if p.onReconcile != nil {
			p.onReconcile(kind)
		}
	}

	if ok {
		p.mu.Lock()
		p.lastUpdated = time.Now()
		p.mu.Unlock()
	}
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

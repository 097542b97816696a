package dashboard

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/raktradar/relay/backend"
	"github.com/raktradar/relay/config"
	"github.com/raktradar/relay/dedup"
	"github.com/raktradar/relay/errors"
	"github.com/raktradar/relay/event"
	"github.com/raktradar/relay/logging"
	"github.com/raktradar/relay/poll"
	"github.com/raktradar/relay/store"
	"github.com/raktradar/relay/transport"
)

// processedCapacity bounds the dedup set per dashboard instance.
const processedCapacity = 512

// Coordinator is the slice of the backend API a dashboard drives.
// *backend.Client satisfies it; tests substitute fakes.
type Coordinator interface {
	Fetch(ctx context.Context, kind event.Kind) ([]json.RawMessage, error)
	CreateRequest(ctx context.Context, req backend.Request) (*backend.Request, error)
	ApproveRequest(ctx context.Context, requestID string) (*backend.ApproveResult, error)
	RejectRequest(ctx context.Context, requestID string) error
	CancelRequest(ctx context.Context, requestID string) error
	StartRoute(ctx context.Context, routeID string) (*backend.StartResult, error)
	CompleteRoute(ctx context.Context, routeID string) (*backend.Route, error)
	ReportProgress(ctx context.Context, routeID string, percent float64) error
}

// Navigator receives the dashboard's one permitted side effect per event:
// a view change.
type Navigator interface {
	Navigate(view, subjectID string)
}

// Options configures a dashboard instance.
type Options struct {
	Config      *config.Config
	Role        Role
	Store       *store.Store
	Coordinator Coordinator

	// Navigator may be nil; events then carry no side effect.
	Navigator Navigator

	// OnEvent is invoked for every admitted event, before any navigation.
	// Duplicate deliveries never reach it.
	OnEvent func(event.Notification)
}

// Dashboard is one actor's live view of the delivery system. It keeps fact
// kinds in sync through the transport channels plus polling, deduplicates
// event deliveries, and performs at most one navigation per admitted event.
type Dashboard struct {
	cfg    *config.Config
	role   Role
	st     *store.Store
	coord  Coordinator
	nav    Navigator
	onEvt  func(event.Notification)
	logger *logrus.Entry

	mux       *transport.Mux
	watcher   *transport.StoreWatcher
	poller    *poll.Poller
	processed *dedup.ProcessedSet

	mu        sync.Mutex
	opened    bool
	openedAt  time.Time
	unsub     func()
	watchStop context.CancelFunc
	timers    map[string]*time.Timer
	facts     map[event.Kind]event.Fact
}

// New builds a dashboard. Open must be called before it does anything.
func New(opts Options) (*Dashboard, error) {
	if opts.Config == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "dashboard requires a config")
	}
	if !opts.Role.Valid() {
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown dashboard role").
			WithDetail("role", string(opts.Role))
	}
	if opts.Store == nil || opts.Coordinator == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "dashboard requires a store and a coordinator")
	}

	return &Dashboard{
		cfg:       opts.Config,
		role:      opts.Role,
		st:        opts.Store,
		coord:     opts.Coordinator,
		nav:       opts.Navigator,
		onEvt:     opts.OnEvent,
		logger:    logging.NewLogger("dashboard").WithField("role", string(opts.Role)),
		processed: dedup.NewProcessedSet(processedCapacity),
		timers:    make(map[string]*time.Timer),
		facts:     make(map[event.Kind]event.Fact),
	}, nil
}

// Open wires the transport channels and starts the polling loop. The first
// poll cycle runs immediately so the dashboard has data before the first
// interval elapses.
func (d *Dashboard) Open(ctx context.Context) error {
	d.mu.Lock()
	if d.opened {
		d.mu.Unlock()
		return nil
	}
	d.opened = true
	d.openedAt = time.Now()
	d.mu.Unlock()

	d.mux = transport.NewMux(d.st, d.cfg.BrokerURL)
	unsub := d.mux.Subscribe(d.handle)

	d.mu.Lock()
	d.unsub = unsub
	d.mu.Unlock()

	// The store-change channel only exists for file-backed profiles;
	// in-memory stores have nothing for other processes to write.
	if d.st.Path() != "" {
		watcher, err := transport.NewStoreWatcher(d.st, d.mux.Dispatch)
		if err != nil {
			d.Close()
			return err
		}
		watchCtx, watchStop := context.WithCancel(ctx)
		go watcher.Start(watchCtx)

		d.mu.Lock()
		d.watcher = watcher
		d.watchStop = watchStop
		d.mu.Unlock()
	}

	d.poller = poll.New(d.st, d.coord.Fetch, d.role.Kinds(), d.cfg.PollInterval.Std())
	d.poller.OnReconcile(func(kind event.Kind) {
		fact := d.st.GetFact(kind)
		d.mu.Lock()
		d.facts[kind] = fact
		d.mu.Unlock()
	})
	d.poller.Start(ctx)

	d.logger.WithField("kinds", d.role.Kinds()).Info("Dashboard opened")
	return nil
}

// Close tears down every channel and cancels pending navigations. Safe to
// call more than once.
func (d *Dashboard) Close() {
	d.mu.Lock()
	unsub := d.unsub
	watchStop := d.watchStop
	timers := d.timers
	d.opened = false
	d.unsub = nil
	d.watchStop = nil
	d.timers = make(map[string]*time.Timer)
	d.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	for _, timer := range timers {
		timer.Stop()
	}
	if watchStop != nil {
		watchStop()
	}
	if d.watcher != nil {
		d.watcher.Close()
		d.watcher = nil
	}
	if d.poller != nil {
		d.poller.Stop()
		d.poller = nil
	}
	if d.mux != nil {
		d.mux.Close()
		d.mux = nil
	}
}

// handle is the single funnel for all three delivery channels. Order does
// not matter: the first copy of an event wins, later copies are dropped.
func (d *Dashboard) handle(n event.Notification) {
	now := time.Now()
	if n.Expired(d.cfg.RelevanceWindow.Std(), now) {
		d.logger.WithFields(logrus.Fields{
			"event_id": n.ID,
			"type":     n.Type,
		}).Debug("Dropping event outside relevance window")
		return
	}

	if !d.processed.Admit(n) {
		d.logger.WithFields(logrus.Fields{
			"event_id": n.ID,
			"type":     n.Type,
		}).Debug("Dropping duplicate event delivery")
		return
	}

	d.logger.WithFields(logrus.Fields{
		"event_id": n.ID,
		"type":     n.Type,
		"subject":  n.SubjectID,
	}).Info("Event admitted")

	if d.onEvt != nil {
		d.onEvt(n)
	}

	view, ok := navigationTarget(d.role, n.Type)
	if !ok || d.nav == nil {
		if err := d.st.MarkProcessed(n.ID); err != nil {
			d.logger.WithError(err).Debug("Failed to mark event processed")
		}
		return
	}
	d.scheduleNavigation(n, view)
}

// scheduleNavigation arms the delayed view change for an admitted event.
// At most one navigation fires per admitted event; closing the dashboard
// cancels anything still pending.
func (d *Dashboard) scheduleNavigation(n event.Notification, view string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return
	}
	if _, pending := d.timers[n.ID]; pending {
		return
	}
	d.timers[n.ID] = time.AfterFunc(d.cfg.NavigateDelay.Std(), func() {
		d.mu.Lock()
		delete(d.timers, n.ID)
		d.mu.Unlock()

		d.nav.Navigate(view, n.SubjectID)
		if err := d.st.MarkProcessed(n.ID); err != nil {
			d.logger.WithError(err).Debug("Failed to mark event processed")
		}
	})
}

// publish sends an event through every channel and processes it locally
// first, so the originating dashboard reacts without waiting on transport.
func (d *Dashboard) publish(n event.Notification) {
	d.handle(n)
	d.mux.Publish(n)
}

// Fact returns the dashboard's current view of a kind. Reconciled
// snapshots are served from cache; anything else falls back to the store.
func (d *Dashboard) Fact(kind event.Kind) event.Fact {
	d.mu.Lock()
	fact, ok := d.facts[kind]
	d.mu.Unlock()
	if ok {
		return fact
	}
	return d.st.GetFact(kind)
}

// LastUpdated reports the completion time of the last successful poll.
func (d *Dashboard) LastUpdated() time.Time {
	if d.poller == nil {
		return time.Time{}
	}
	return d.poller.LastUpdated()
}

// Delete hides a subject locally. The tombstone scrubs it from every fact
// and polling pauses for two intervals so an already in-flight stale
// snapshot cannot resurrect it.
func (d *Dashboard) Delete(subjectID string) error {
	if err := d.st.Tombstone(subjectID); err != nil {
		return err
	}
	if d.poller != nil {
		d.poller.Suppress(2 * d.poller.Interval())
	}
	d.logger.WithField("subject", subjectID).Info("Subject deleted locally")
	return nil
}

// ClearTracking lifts every local deletion; the next poll restores any
// subjects the backend still reports.
func (d *Dashboard) ClearTracking() error {
	return d.st.ClearTombstones()
}

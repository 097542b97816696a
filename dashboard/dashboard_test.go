package dashboard

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raktradar/relay/backend"
	"github.com/raktradar/relay/config"
	"github.com/raktradar/relay/errors"
	"github.com/raktradar/relay/event"
	"github.com/raktradar/relay/poll"
	"github.com/raktradar/relay/store"
)

func testConfig() *config.Config {
	return &config.Config{
		BackendURL:      "http://localhost:8000",
		PollInterval:    config.Duration(25 * time.Millisecond),
		RelevanceWindow: config.Duration(time.Minute),
		NavigateDelay:   config.Duration(10 * time.Millisecond),
	}
}

// fakeCoordinator serves canned snapshots and scripted action responses.
type fakeCoordinator struct {
	mu         sync.Mutex
	snapshots  map[event.Kind][]json.RawMessage
	approveErr error
	fetches    int
}

func (f *fakeCoordinator) Fetch(ctx context.Context, kind event.Kind) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.snapshots[kind], nil
}

func (f *fakeCoordinator) setSnapshot(kind event.Kind, records ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshots == nil {
		f.snapshots = make(map[event.Kind][]json.RawMessage)
	}
	payload := make([]json.RawMessage, len(records))
	for i, r := range records {
		payload[i] = json.RawMessage(r)
	}
	f.snapshots[kind] = payload
}

func (f *fakeCoordinator) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeCoordinator) CreateRequest(ctx context.Context, req backend.Request) (*backend.Request, error) {
	created := req
	created.ID = "req-new"
	return &created, nil
}

func (f *fakeCoordinator) ApproveRequest(ctx context.Context, requestID string) (*backend.ApproveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	return &backend.ApproveResult{
		Route: backend.Route{ID: "rt-1", RequestID: requestID, Status: "pending", DriverName: "Asha"},
		Notification: backend.DriverNotification{
			RouteID:   "rt-1",
			RequestID: requestID,
			BloodType: "O+",
			Message:   "New delivery assigned",
		},
	}, nil
}

func (f *fakeCoordinator) RejectRequest(ctx context.Context, requestID string) error { return nil }
func (f *fakeCoordinator) CancelRequest(ctx context.Context, requestID string) error { return nil }

func (f *fakeCoordinator) StartRoute(ctx context.Context, routeID string) (*backend.StartResult, error) {
	return &backend.StartResult{
		Route:        backend.Route{ID: routeID, Status: "active"},
		Notification: backend.DriverNotification{RouteID: routeID, Message: "Delivery en route"},
	}, nil
}

func (f *fakeCoordinator) CompleteRoute(ctx context.Context, routeID string) (*backend.Route, error) {
	return &backend.Route{ID: routeID, Status: "completed"}, nil
}

func (f *fakeCoordinator) ReportProgress(ctx context.Context, routeID string, percent float64) error {
	return nil
}

// recordingNavigator captures navigations thread-safely.
type recordingNavigator struct {
	mu   sync.Mutex
	hops []string
}

func (r *recordingNavigator) Navigate(view, subjectID string) {
	r.mu.Lock()
	r.hops = append(r.hops, view+":"+subjectID)
	r.mu.Unlock()
}

func (r *recordingNavigator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hops)
}

func openDashboard(t *testing.T, role Role, coord Coordinator, nav Navigator, onEvent func(event.Notification)) (*Dashboard, *store.Store) {
	t.Helper()
	st := store.New(store.NewMemoryBackend(), time.Minute)
	d, err := New(Options{
		Config:      testConfig(),
		Role:        role,
		Store:       st,
		Coordinator: coord,
		Navigator:   nav,
		OnEvent:     onEvent,
	})
	require.NoError(t, err)
	require.NoError(t, d.Open(context.Background()))
	t.Cleanup(d.Close)
	return d, st
}

func TestRedundantDeliveriesCollapse(t *testing.T) {
	var mu sync.Mutex
	var seen []event.Notification
	nav := &recordingNavigator{}
	d, _ := openDashboard(t, RoleHospital, &fakeCoordinator{}, nav, func(n event.Notification) {
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})

	// The same event arriving over all three channels reaches the handler
	// three times; only the first copy acts.
	n := event.New(event.TypeRouteStarted, "rt-1", map[string]any{"blood_type": "O+"})
	d.handle(n)
	d.handle(n)
	d.handle(n)

	mu.Lock()
	require.Len(t, seen, 1, "duplicate deliveries must collapse to one event")
	mu.Unlock()

	require.Eventually(t, func() bool {
		return nav.count() == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, nav.count(), "at most one navigation per admitted event")
}

func TestEquivalentReissuedEventIsDuplicate(t *testing.T) {
	var mu sync.Mutex
	var seen []event.Notification
	d, _ := openDashboard(t, RoleHospital, &fakeCoordinator{}, nil, func(n event.Notification) {
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})

	// Same type, subject, and meaningful payload but fresh wrapper ids
	// and timestamps. Still one event as far as the user is concerned.
	first := event.New(event.TypeRouteApproved, "req-1", map[string]any{"route_id": "rt-1"})
	second := event.New(event.TypeRouteApproved, "req-1", map[string]any{"route_id": "rt-1"})
	require.NotEqual(t, first.ID, second.ID)

	d.handle(first)
	d.handle(second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
}

func TestExpiredEventDropped(t *testing.T) {
	var mu sync.Mutex
	var seen []event.Notification
	d, _ := openDashboard(t, RoleHospital, &fakeCoordinator{}, nil, func(n event.Notification) {
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})

	n := event.New(event.TypeRouteStarted, "rt-1", nil)
	n.CreatedAt = time.Now().Add(-2 * time.Minute)
	d.handle(n)

	mu.Lock()
	defer mu.Unlock()
	require.Empty(t, seen, "a fresh dashboard must not act on stale events")
}

func TestApprovePublishesAssignmentAndApproval(t *testing.T) {
	var mu sync.Mutex
	var seen []event.Notification
	d, st := openDashboard(t, RoleBloodBank, &fakeCoordinator{}, nil, func(n event.Notification) {
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})

	result, err := d.Approve(context.Background(), "req-1")
	require.NoError(t, err)
	require.Equal(t, "rt-1", result.Route.ID)

	mu.Lock()
	require.Len(t, seen, 2)
	require.Equal(t, event.TypeRouteAssigned, seen[0].Type)
	require.Equal(t, "rt-1", seen[0].SubjectID)
	require.Equal(t, "O+", seen[0].Data["blood_type"])
	require.Equal(t, event.TypeRouteApproved, seen[1].Type)
	require.Equal(t, "req-1", seen[1].SubjectID)
	mu.Unlock()

	require.Len(t, st.ListActiveNotifications(time.Time{}), 2, "published events must reach the durable channel")
}

func TestApproveFailurePublishesNothing(t *testing.T) {
	coord := &fakeCoordinator{
		approveErr: errors.ApproveFailed("req-1", errors.New(errors.ErrCodeBackendStatus, "conflict")),
	}
	var mu sync.Mutex
	var seen []event.Notification
	d, st := openDashboard(t, RoleBloodBank, coord, nil, func(n event.Notification) {
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})

	result, err := d.Approve(context.Background(), "req-1")
	require.Error(t, err)
	require.Nil(t, result)

	mu.Lock()
	require.Empty(t, seen, "a failed approval must not announce a route")
	mu.Unlock()
	require.Empty(t, st.ListActiveNotifications(time.Time{}))
}

func TestDriverNavigatesOnAssignment(t *testing.T) {
	nav := &recordingNavigator{}
	d, _ := openDashboard(t, RoleDriver, &fakeCoordinator{}, nav, nil)

	d.handle(event.New(event.TypeRouteAssigned, "rt-1", map[string]any{"blood_type": "O+"}))

	require.Eventually(t, func() bool {
		return nav.count() == 1
	}, time.Second, 5*time.Millisecond)

	nav.mu.Lock()
	require.Equal(t, "my-deliveries:rt-1", nav.hops[0])
	nav.mu.Unlock()
}

func TestHospitalDoesNotNavigateOnAssignment(t *testing.T) {
	nav := &recordingNavigator{}
	d, _ := openDashboard(t, RoleHospital, &fakeCoordinator{}, nav, nil)

	d.handle(event.New(event.TypeRouteAssigned, "rt-1", nil))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, nav.count())
}

func TestPollingConvergence(t *testing.T) {
	coord := &fakeCoordinator{}
	coord.setSnapshot(event.KindRoutes, `{"id":"rt-1","status":"active","progress_percent":10}`)
	d, _ := openDashboard(t, RoleDriver, coord, nil, nil)

	require.Eventually(t, func() bool {
		return len(d.Fact(event.KindRoutes).Payload) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Progress advances backend-side with no push event; the next tick
	// still carries it to the dashboard.
	coord.setSnapshot(event.KindRoutes, `{"id":"rt-1","status":"active","progress_percent":80}`)

	require.Eventually(t, func() bool {
		routes := backend.DecodeRoutes(d.Fact(event.KindRoutes).Payload)
		return len(routes) == 1 && routes[0].ProgressPercent == 80
	}, 2*time.Second, 5*time.Millisecond)
	require.False(t, d.LastUpdated().IsZero())
}

func TestDeleteSurvivesStalePoll(t *testing.T) {
	coord := &fakeCoordinator{}
	coord.setSnapshot(event.KindRequests, `{"id":"req-1","status":"pending"}`)
	d, st := openDashboard(t, RoleHospital, coord, nil, nil)

	require.Eventually(t, func() bool {
		return len(d.Fact(event.KindRequests).Payload) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, d.Delete("req-1"))
	require.True(t, st.Tombstoned("req-1"))
	require.Equal(t, poll.StateSuppressed, d.poller.State(), "polling must pause after a local deletion")

	// Even once polling resumes, the tombstone filters the stale record
	// out of every snapshot.
	time.Sleep(100 * time.Millisecond)
	require.Empty(t, st.GetFact(event.KindRequests).Payload, "deleted subject must not reappear")

	t.Run("clear tracking restores backend state", func(t *testing.T) {
		require.NoError(t, d.ClearTracking())
		require.False(t, st.Tombstoned("req-1"))
		require.Eventually(t, func() bool {
			return len(st.GetFact(event.KindRequests).Payload) == 1
		}, 2*time.Second, 5*time.Millisecond, "cleared subjects return on the next poll")
	})
}

func TestNewRejectsBadOptions(t *testing.T) {
	st := store.New(store.NewMemoryBackend(), time.Minute)

	_, err := New(Options{Role: RoleHospital, Store: st, Coordinator: &fakeCoordinator{}})
	require.Error(t, err)

	_, err = New(Options{Config: testConfig(), Role: Role("dispatcher"), Store: st, Coordinator: &fakeCoordinator{}})
	require.Error(t, err)
	require.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

// Package testutil provides an in-memory coordination backend for tests
// that exercise the full client path over real HTTP.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/raktradar/relay/backend"
)

// FakeCoordinator is an httptest-backed coordination API with seedable
// state. Approvals create routes the way the real backend does.
type FakeCoordinator struct {
	Server *httptest.Server

	mu        sync.Mutex
	requests  map[string]*backend.Request
	routes    map[string]*backend.Route
	inventory map[string]*backend.InventoryUnit

	// FailApprove makes every approval return 409.
	FailApprove bool
}

// NewFakeCoordinator starts the fake backend and registers its shutdown
// with the test.
func NewFakeCoordinator(t *testing.T) *FakeCoordinator {
	t.Helper()
	f := &FakeCoordinator{
		requests:  make(map[string]*backend.Request),
		routes:    make(map[string]*backend.Route),
		inventory: make(map[string]*backend.InventoryUnit),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the backend base URL.
func (f *FakeCoordinator) URL() string { return f.Server.URL }

// SeedRequest adds a pending request and returns its id.
func (f *FakeCoordinator) SeedRequest(bloodType string, quantityML int, urgency string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New().String()
	f.requests[id] = &backend.Request{
		ID:         id,
		BloodType:  bloodType,
		QuantityML: quantityML,
		Urgency:    urgency,
		Status:     "pending",
		CreatedAt:  time.Now(),
	}
	return id
}

// SeedInventory adds a stocked unit and returns its id.
func (f *FakeCoordinator) SeedInventory(bloodType string, expiresAt time.Time) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New().String()
	f.inventory[id] = &backend.InventoryUnit{
		ID:        id,
		BloodType: bloodType,
		Status:    "available",
		ExpiresAt: expiresAt,
	}
	return id
}

// Route returns a copy of a route, or nil if it does not exist.
func (f *FakeCoordinator) Route(id string) *backend.Route {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.routes[id]; ok {
		copied := *r
		return &copied
	}
	return nil
}

// Request returns a copy of a request, or nil if it does not exist.
func (f *FakeCoordinator) Request(id string) *backend.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.requests[id]; ok {
		copied := *r
		return &copied
	}
	return nil
}

func (f *FakeCoordinator) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodGet && len(parts) == 1:
		f.list(w, parts[0])
	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "requests":
		f.createRequest(w, r)
	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "requests":
		f.requestAction(w, parts[1], parts[2])
	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "routes" && parts[2] == "progress":
		f.routeProgress(w, r, parts[1])
	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "routes":
		f.routeAction(w, parts[1], parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (f *FakeCoordinator) list(w http.ResponseWriter, collection string) {
	var out []any
	switch collection {
	case "requests":
		for _, v := range f.requests {
			out = append(out, v)
		}
	case "routes":
		for _, v := range f.routes {
			out = append(out, v)
		}
	case "inventory":
		for _, v := range f.inventory {
			out = append(out, v)
		}
	default:
		http.Error(w, "unknown collection", http.StatusNotFound)
		return
	}
	if out == nil {
		out = []any{}
	}
	writeJSON(w, out)
}

func (f *FakeCoordinator) createRequest(w http.ResponseWriter, r *http.Request) {
	var req backend.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.ID = uuid.New().String()
	req.Status = "pending"
	req.CreatedAt = time.Now()
	f.requests[req.ID] = &req
	writeJSON(w, req)
}

func (f *FakeCoordinator) requestAction(w http.ResponseWriter, id, action string) {
	req, ok := f.requests[id]
	if !ok {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	}

	switch action {
	case "approve":
		if f.FailApprove || req.Status != "pending" {
			http.Error(w, "request cannot be approved", http.StatusConflict)
			return
		}
		req.Status = "approved"
		route := &backend.Route{
			ID:         uuid.New().String(),
			RequestID:  req.ID,
			Status:     "pending",
			DriverName: "Asha Verma",
			DistanceKM: 12.4,
			ETAMinutes: 25,
			CreatedAt:  time.Now(),
		}
		f.routes[route.ID] = route
		writeJSON(w, backend.ApproveResult{
			Route: *route,
			Notification: backend.DriverNotification{
				RouteID:    route.ID,
				RequestID:  req.ID,
				DriverName: route.DriverName,
				BloodType:  req.BloodType,
				QuantityML: req.QuantityML,
				Urgency:    req.Urgency,
				DistanceKM: route.DistanceKM,
				ETAMinutes: route.ETAMinutes,
				Message:    "New delivery assigned",
			},
		})
	case "reject":
		req.Status = "rejected"
		writeJSON(w, req)
	case "cancel":
		req.Status = "cancelled"
		writeJSON(w, req)
	default:
		http.Error(w, "unknown action", http.StatusNotFound)
	}
}

func (f *FakeCoordinator) routeAction(w http.ResponseWriter, id, action string) {
	route, ok := f.routes[id]
	if !ok {
		http.Error(w, "route not found", http.StatusNotFound)
		return
	}

	switch action {
	case "start":
		if route.Status != "pending" {
			http.Error(w, "route cannot start", http.StatusConflict)
			return
		}
		now := time.Now()
		route.Status = "active"
		route.StartedAt = &now
		writeJSON(w, backend.StartResult{
			Route: *route,
			Notification: backend.DriverNotification{
				RouteID:   route.ID,
				RequestID: route.RequestID,
				Message:   "Delivery en route",
			},
		})
	case "complete":
		route.Status = "completed"
		route.ProgressPercent = 100
		writeJSON(w, route)
	default:
		http.Error(w, "unknown action", http.StatusNotFound)
	}
}

func (f *FakeCoordinator) routeProgress(w http.ResponseWriter, r *http.Request, id string) {
	route, ok := f.routes[id]
	if !ok {
		http.Error(w, "route not found", http.StatusNotFound)
		return
	}
	var body struct {
		ProgressPercent float64 `json:"progress_percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	route.ProgressPercent = body.ProgressPercent
	writeJSON(w, route)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

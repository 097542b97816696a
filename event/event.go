// Package event defines the facts and notification events shared between
// role dashboards, and the composite keys used to deduplicate redundant
// deliveries.
package event

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Kind names one domain concept snapshotted in the fact store.
type Kind string

const (
	KindRequests  Kind = "requests"
	KindRoutes    Kind = "routes"
	KindInventory Kind = "inventory"
)

// Type names something an actor wants other actors to react to.
type Type string

const (
	TypeRequestCreated Type = "request_created"
	TypeRouteAssigned  Type = "route_assigned"
	TypeRouteApproved  Type = "route_approved"
	TypeRouteStarted   Type = "route_started"
	TypeRouteCompleted Type = "route_completed"
)

// Status tracks whether a notification has been acted upon locally.
type Status string

const (
	StatusActive    Status = "active"
	StatusProcessed Status = "processed"
)

// Fact is the current snapshot of one domain concept. The payload schema is
// opaque to the sync core; records pass through exactly as the backend
// returned them.
type Fact struct {
	Kind       Kind              `json:"kind"`
	Payload    []json.RawMessage `json:"payload"`
	ObservedAt time.Time         `json:"observed_at"`
}

// Notification describes a discrete, time-bounded signal that something
// changed. The ID is transport bookkeeping only; identity for deduplication
// comes from CompositeKey.
type Notification struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	SubjectID string         `json:"subject_id"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Status    Status         `json:"status"`
}

// New creates an active notification with a fresh ID.
func New(t Type, subjectID string, data map[string]any) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Type:      t,
		SubjectID: subjectID,
		Data:      data,
		CreatedAt: time.Now(),
		Status:    StatusActive,
	}
}

// Expired reports whether the notification is older than the relevance
// window at the given instant.
func (n Notification) Expired(window time.Duration, now time.Time) bool {
	return now.Sub(n.CreatedAt) > window
}

// volatileFields are excluded from payload fingerprints. Different
// transports and retried writes may mint fresh ids, timestamps, and display
// strings for what is semantically one event.
var volatileFields = map[string]struct{}{
	"id":              {},
	"notification_id": {},
	"timestamp":       {},
	"created_at":      {},
	"started_at":      {},
	"message":         {},
}

// CompositeKey derives the deduplication identity of the notification:
// type + subject + a stable fingerprint of the non-volatile data fields.
// It is pure and independent of transport-assigned ids.
func (n Notification) CompositeKey() string {
	keys := make([]string, 0, len(n.Data))
	for k := range n.Data {
		if _, volatile := volatileFields[k]; volatile {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	for _, k := range keys {
		// fmt prints nested maps with sorted keys, so %v is stable here.
		fmt.Fprintf(h, "%s=%v;", k, n.Data[k])
	}
	return fmt.Sprintf("%s|%s|%016x", n.Type, n.SubjectID, h.Sum64())
}

// SubjectID extracts the subject identifier from an opaque payload record.
// Records identify themselves with an "id" field that may be a string or a
// number; anything else yields "".
func SubjectID(record json.RawMessage) string {
	var probe struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(record, &probe); err != nil {
		return ""
	}
	switch id := probe.ID.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	default:
		return ""
	}
}

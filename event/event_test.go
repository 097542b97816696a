package event

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCompositeKey(t *testing.T) {
	base := map[string]any{
		"blood_type":  "O+",
		"quantity_ml": 450,
		"driver_name": "Ravi",
	}

	t.Run("stable across wrapper ids and volatile fields", func(t *testing.T) {
		a := New(TypeRouteStarted, "rt-1", map[string]any{
			"blood_type": "O+", "quantity_ml": 450, "driver_name": "Ravi",
			"id": "n-111", "timestamp": "2026-08-29T10:00:00Z", "message": "en route!",
		})
		b := New(TypeRouteStarted, "rt-1", map[string]any{
			"blood_type": "O+", "quantity_ml": 450, "driver_name": "Ravi",
			"id": "n-222", "timestamp": "2026-08-29T10:00:03Z", "message": "driver en route",
		})
		if a.ID == b.ID {
			t.Fatal("wrapper ids should differ")
		}
		if a.CompositeKey() != b.CompositeKey() {
			t.Errorf("composite keys differ: %s vs %s", a.CompositeKey(), b.CompositeKey())
		}
	})

	t.Run("differs by type", func(t *testing.T) {
		a := New(TypeRouteStarted, "rt-1", base)
		b := New(TypeRouteCompleted, "rt-1", base)
		if a.CompositeKey() == b.CompositeKey() {
			t.Error("different types should not collide")
		}
	})

	t.Run("differs by subject", func(t *testing.T) {
		a := New(TypeRouteStarted, "rt-1", base)
		b := New(TypeRouteStarted, "rt-2", base)
		if a.CompositeKey() == b.CompositeKey() {
			t.Error("different subjects should not collide")
		}
	})

	t.Run("differs by relevant payload", func(t *testing.T) {
		a := New(TypeRouteStarted, "rt-1", map[string]any{"blood_type": "O+"})
		b := New(TypeRouteStarted, "rt-1", map[string]any{"blood_type": "AB-"})
		if a.CompositeKey() == b.CompositeKey() {
			t.Error("different payloads should not collide")
		}
	})
}

func TestExpired(t *testing.T) {
	n := New(TypeRouteApproved, "req-1", nil)
	now := n.CreatedAt

	if n.Expired(time.Minute, now.Add(30*time.Second)) {
		t.Error("notification inside the window should not be expired")
	}
	if !n.Expired(time.Minute, now.Add(2*time.Minute)) {
		t.Error("notification outside the window should be expired")
	}
}

func TestSubjectID(t *testing.T) {
	cases := []struct {
		name   string
		record string
		want   string
	}{
		{"string id", `{"id":"req-9","status":"created"}`, "req-9"},
		{"numeric id", `{"id":42}`, "42"},
		{"missing id", `{"status":"created"}`, ""},
		{"not an object", `[1,2]`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SubjectID(json.RawMessage(tc.record)); got != tc.want {
				t.Errorf("SubjectID(%s) = %q, want %q", tc.record, got, tc.want)
			}
		})
	}
}

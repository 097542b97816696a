package backend

import (
	"encoding/json"
	"time"
)

// Request is an emergency blood request as the coordination API reports it.
type Request struct {
	ID           string    `json:"id"`
	BloodType    string    `json:"blood_type"`
	QuantityML   int       `json:"quantity_ml"`
	Urgency      string    `json:"urgency"`
	Status       string    `json:"status"`
	HospitalName string    `json:"hospital_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// Route is a delivery route with its live progress.
type Route struct {
	ID              string     `json:"id"`
	RequestID       string     `json:"request_id"`
	Status          string     `json:"status"` // pending | active | completed
	DriverName      string     `json:"driver_name"`
	DistanceKM      float64    `json:"distance_km"`
	ETAMinutes      int        `json:"eta_minutes"`
	ProgressPercent float64    `json:"progress_percent"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// InventoryUnit is one stocked blood unit.
type InventoryUnit struct {
	ID               string    `json:"id"`
	BloodType        string    `json:"blood_type"`
	Status           string    `json:"status"` // available | reserved
	ExpiresAt        time.Time `json:"expires_at"`
	FlaggedForExpiry bool      `json:"is_flagged_for_expiry"`
}

// DriverNotification is the payload the backend attaches to approve and
// start responses so subscribers can render the delivery without another
// fetch.
type DriverNotification struct {
	RouteID       string  `json:"route_id" mapstructure:"route_id"`
	RequestID     string  `json:"request_id" mapstructure:"request_id"`
	DriverName    string  `json:"driver_name" mapstructure:"driver_name"`
	BloodType     string  `json:"blood_type" mapstructure:"blood_type"`
	QuantityML    int     `json:"quantity_ml" mapstructure:"quantity_ml"`
	Urgency       string  `json:"urgency" mapstructure:"urgency"`
	HospitalName  string  `json:"hospital_name" mapstructure:"hospital_name"`
	BloodBankName string  `json:"blood_bank_name" mapstructure:"blood_bank_name"`
	DistanceKM    float64 `json:"distance_km" mapstructure:"distance_km"`
	ETAMinutes    int     `json:"eta_minutes" mapstructure:"eta_minutes"`
	Message       string  `json:"message" mapstructure:"message"`
}

// ApproveResult is the response to approving a request: the created route
// plus the notification payload to publish for the driver.
type ApproveResult struct {
	Route        Route              `json:"route"`
	Notification DriverNotification `json:"driver_notification"`
}

// StartResult is the response to starting a route.
type StartResult struct {
	Route        Route              `json:"route"`
	Notification DriverNotification `json:"route_start_notification"`
}

// DecodeRoutes interprets opaque fact payload records as routes. Records
// that do not parse are skipped; view code renders what it can and the
// next poll corrects the rest.
func DecodeRoutes(payload []json.RawMessage) []Route {
	out := make([]Route, 0, len(payload))
	for _, record := range payload {
		var r Route
		if err := json.Unmarshal(record, &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

// DecodeRequests interprets opaque fact payload records as requests.
func DecodeRequests(payload []json.RawMessage) []Request {
	out := make([]Request, 0, len(payload))
	for _, record := range payload {
		var r Request
		if err := json.Unmarshal(record, &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

// DecodeInventory interprets opaque fact payload records as stock units.
func DecodeInventory(payload []json.RawMessage) []InventoryUnit {
	out := make([]InventoryUnit, 0, len(payload))
	for _, record := range payload {
		var u InventoryUnit
		if err := json.Unmarshal(record, &u); err != nil {
			continue
		}
		out = append(out, u)
	}
	return out
}

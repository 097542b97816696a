package dashboard

import (
	"context"

	"github.com/mitchellh/mapstructure"

	"github.com/raktradar/relay/backend"
	"github.com/raktradar/relay/event"
)

// CreateRequest files a new blood request and announces it to every
// dashboard. Hospital action.
func (d *Dashboard) CreateRequest(ctx context.Context, req backend.Request) (*backend.Request, error) {
	created, err := d.coord.CreateRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	d.publish(event.New(event.TypeRequestCreated, created.ID, map[string]any{
		"blood_type":    created.BloodType,
		"quantity_ml":   created.QuantityML,
		"urgency":       created.Urgency,
		"hospital_name": created.HospitalName,
	}))
	return created, nil
}

// Approve approves a pending request. Blood bank action. The backend
// creates the route; only then are the assignment and approval events
// published. A failed approval publishes nothing.
func (d *Dashboard) Approve(ctx context.Context, requestID string) (*backend.ApproveResult, error) {
	result, err := d.coord.ApproveRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	d.publish(event.New(event.TypeRouteAssigned, result.Route.ID, notificationData(result.Notification)))
	d.publish(event.New(event.TypeRouteApproved, requestID, map[string]any{
		"route_id":    result.Route.ID,
		"driver_name": result.Route.DriverName,
		"eta_minutes": result.Route.ETAMinutes,
	}))
	return result, nil
}

// Reject declines a pending request. Blood bank action.
func (d *Dashboard) Reject(ctx context.Context, requestID string) error {
	return d.coord.RejectRequest(ctx, requestID)
}

// Cancel withdraws a request the hospital no longer needs.
func (d *Dashboard) Cancel(ctx context.Context, requestID string) error {
	return d.coord.CancelRequest(ctx, requestID)
}

// StartRoute begins a delivery. Driver action. Every dashboard hears the
// start event and follows the route.
func (d *Dashboard) StartRoute(ctx context.Context, routeID string) (*backend.StartResult, error) {
	result, err := d.coord.StartRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}

	d.publish(event.New(event.TypeRouteStarted, routeID, notificationData(result.Notification)))
	return result, nil
}

// CompleteRoute marks a delivery done. Driver action.
func (d *Dashboard) CompleteRoute(ctx context.Context, routeID string) (*backend.Route, error) {
	route, err := d.coord.CompleteRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}

	d.publish(event.New(event.TypeRouteCompleted, routeID, map[string]any{
		"request_id": route.RequestID,
		"status":     route.Status,
	}))
	return route, nil
}

// ReportProgress pushes a progress update for an active route. Progress is
// carried by the routes fact through polling rather than a per-update
// event, so there is nothing to publish.
func (d *Dashboard) ReportProgress(ctx context.Context, routeID string, percent float64) error {
	return d.coord.ReportProgress(ctx, routeID, percent)
}

// notificationData flattens a driver notification into event data keyed by
// its wire field names.
func notificationData(n backend.DriverNotification) map[string]any {
	var data map[string]any
	if err := mapstructure.Decode(&n, &data); err != nil {
		return map[string]any{"route_id": n.RouteID, "message": n.Message}
	}
	return data
}

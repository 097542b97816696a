package dashboard

import "github.com/raktradar/relay/event"

// Role identifies which actor a dashboard instance serves. The role decides
// which fact kinds the poller subscribes to.
type Role string

const (
	RoleHospital  Role = "hospital"
	RoleBloodBank Role = "blood_bank"
	RoleDriver    Role = "driver"
	RoleAdmin     Role = "admin"
)

// Kinds returns the fact kinds this role keeps in sync.
func (r Role) Kinds() []event.Kind {
	switch r {
	case RoleHospital:
		return []event.Kind{event.KindRequests, event.KindRoutes}
	case RoleBloodBank:
		return []event.Kind{event.KindRequests, event.KindInventory, event.KindRoutes}
	case RoleDriver:
		return []event.Kind{event.KindRoutes}
	default:
		return []event.Kind{event.KindRequests, event.KindInventory, event.KindRoutes}
	}
}

// Valid reports whether r names a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleHospital, RoleBloodBank, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// navigationTarget decides whether a notification type triggers the
// dashboard's single side effect, a view change, for this role.
func navigationTarget(role Role, t event.Type) (string, bool) {
	switch t {
	case event.TypeRouteStarted:
		// Every actor follows the delivery once it is moving.
		return "route-tracking", true
	case event.TypeRouteAssigned:
		if role == RoleDriver {
			return "my-deliveries", true
		}
	}
	return "", false
}

package errors

import "fmt"

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *RelayError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *RelayError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// BackendUnreachable creates an error for a coordination backend that cannot be reached
func BackendUnreachable(url string, err error) *RelayError {
	return Wrap(err, ErrCodeBackendUnreachable,
		fmt.Sprintf("coordination backend unreachable: %s", url)).
		WithDetail("url", url)
}

// BackendStatus creates an error for an unexpected backend HTTP status
func BackendStatus(method, path string, status int) *RelayError {
	return New(ErrCodeBackendStatus,
		fmt.Sprintf("%s %s returned status %d", method, path, status)).
		WithDetail("method", method).
		WithDetail("path", path).
		WithDetail("status", status)
}

// ApproveFailed creates an error for a failed request approval.
// Approval is a backend round trip; a failure here is a hard operation
// failure and never falls back to locally fabricated route data.
func ApproveFailed(requestID string, err error) *RelayError {
	return Wrap(err, ErrCodeApproveFailed,
		fmt.Sprintf("failed to approve request %s", requestID)).
		WithDetail("request_id", requestID)
}

// RouteMutation creates an error for a failed route state change
func RouteMutation(routeID, op string, err error) *RelayError {
	return Wrap(err, ErrCodeRouteMutation,
		fmt.Sprintf("failed to %s route %s", op, routeID)).
		WithDetail("route_id", routeID).
		WithDetail("operation", op)
}

// StoreIO creates an error for a fact store read or write failure
func StoreIO(path string, err error) *RelayError {
	return Wrap(err, ErrCodeStoreIO, fmt.Sprintf("fact store I/O failed: %s", path)).
		WithDetail("path", path)
}

// StoreCorrupt creates an error for an unparseable fact store document
func StoreCorrupt(path string, err error) *RelayError {
	return Wrap(err, ErrCodeStoreCorrupt, fmt.Sprintf("fact store document corrupt: %s", path)).
		WithDetail("path", path)
}

// BrokerUnavailable creates an error for a broadcast broker that cannot be dialed
func BrokerUnavailable(url string, err error) *RelayError {
	return Wrap(err, ErrCodeBrokerUnavailable,
		fmt.Sprintf("broadcast broker unavailable: %s", url)).
		WithDetail("url", url)
}

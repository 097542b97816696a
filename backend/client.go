package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/raktradar/relay/errors"
	"github.com/raktradar/relay/event"
	"github.com/raktradar/relay/logging"
)

// Client talks to the coordination backend over its REST API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logrus.Entry
}

// NewClient builds a client for the backend at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logging.NewLogger("backend"),
	}
}

var kindPaths = map[event.Kind]string{
	event.KindRequests:  "/requests",
	event.KindRoutes:    "/routes",
	event.KindInventory: "/inventory",
}

// Fetch retrieves the full current collection for a fact kind. The backend
// always returns complete snapshots, never deltas.
func (c *Client) Fetch(ctx context.Context, kind event.Kind) ([]json.RawMessage, error) {
	path, ok := kindPaths[kind]
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("no backend collection for kind %q", kind))
	}

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBackendDecode, fmt.Sprintf("decoding %s response", path))
	}
	return records, nil
}

// ApproveRequest asks the backend to approve a pending request. Approval
// creates the delivery route server-side; the response carries both the
// route and the notification payload to relay to the assigned driver.
//
// A failed approval is a hard failure: no route exists, so nothing may be
// published on its behalf.
func (c *Client) ApproveRequest(ctx context.Context, requestID string) (*ApproveResult, error) {
	body, err := c.do(ctx, http.MethodPost, "/requests/"+requestID+"/approve", nil)
	if err != nil {
		return nil, errors.ApproveFailed(requestID, err)
	}

	var result ApproveResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.ApproveFailed(requestID, errors.Wrap(err, errors.ErrCodeBackendDecode, "decoding approve response"))
	}
	return &result, nil
}

// CreateRequest files a new emergency blood request and returns it as the
// backend recorded it, id included.
func (c *Client) CreateRequest(ctx context.Context, req Request) (*Request, error) {
	body, err := c.do(ctx, http.MethodPost, "/requests", req)
	if err != nil {
		return nil, err
	}

	var created Request
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBackendDecode, "decoding create response")
	}
	return &created, nil
}

// RejectRequest marks a pending request rejected.
func (c *Client) RejectRequest(ctx context.Context, requestID string) error {
	_, err := c.do(ctx, http.MethodPost, "/requests/"+requestID+"/reject", nil)
	return err
}

// CancelRequest cancels a request the hospital no longer needs.
func (c *Client) CancelRequest(ctx context.Context, requestID string) error {
	_, err := c.do(ctx, http.MethodPost, "/requests/"+requestID+"/cancel", nil)
	return err
}

// StartRoute transitions a pending route to active and returns the updated
// route with the start notification payload.
func (c *Client) StartRoute(ctx context.Context, routeID string) (*StartResult, error) {
	body, err := c.do(ctx, http.MethodPost, "/routes/"+routeID+"/start", nil)
	if err != nil {
		return nil, errors.RouteMutation(routeID, "start", err)
	}

	var result StartResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.RouteMutation(routeID, "start", errors.Wrap(err, errors.ErrCodeBackendDecode, "decoding start response"))
	}
	return &result, nil
}

// CompleteRoute marks an active route delivered.
func (c *Client) CompleteRoute(ctx context.Context, routeID string) (*Route, error) {
	body, err := c.do(ctx, http.MethodPost, "/routes/"+routeID+"/complete", nil)
	if err != nil {
		return nil, errors.RouteMutation(routeID, "complete", err)
	}

	var route Route
	if err := json.Unmarshal(body, &route); err != nil {
		return nil, errors.RouteMutation(routeID, "complete", errors.Wrap(err, errors.ErrCodeBackendDecode, "decoding complete response"))
	}
	return &route, nil
}

// ReportProgress updates the delivery progress of an active route.
func (c *Client) ReportProgress(ctx context.Context, routeID string, percent float64) error {
	payload := map[string]float64{"progress_percent": percent}
	if _, err := c.do(ctx, http.MethodPost, "/routes/"+routeID+"/progress", payload); err != nil {
		return errors.RouteMutation(routeID, "progress", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "encoding request body")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "building request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.BackendUnreachable(c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBackendDecode, "reading response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		}).Warn("Backend returned error status")
		return nil, errors.BackendStatus(method, path, resp.StatusCode)
	}
	return body, nil
}

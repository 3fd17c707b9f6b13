package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/discovery"
	"switchyard/internal/server"
)

// DefaultTimeout bounds calls other than Invoke and TriggerDiscovery.
const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// IsNotFound reports whether err is a NotFound API error.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == string(api.ErrorKindNotFound)
}

// Client talks to one switchyard server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at endpoint, e.g.
// "http://127.0.0.1:8095". A bare host:port is accepted.
func New(endpoint string) *Client {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	return &Client{
		baseURL:    strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{},
	}
}

// ListServices returns the services matching filter.
func (c *Client) ListServices(ctx context.Context, filter api.ListFilter) ([]api.ServiceStatus, error) {
	q := url.Values{}
	for _, tag := range filter.Tags {
		q.Add("tag", tag)
	}
	if filter.Kind != "" {
		q.Set("kind", string(filter.Kind))
	}
	if filter.RequiredOnly {
		q.Set("required", strconv.FormatBool(true))
	}
	path := "/v1/services"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []api.ServiceStatus
	return out, c.do(ctx, http.MethodGet, path, nil, &out, DefaultTimeout)
}

// GetService returns one service.
func (c *Client) GetService(ctx context.Context, name string) (api.ServiceStatus, error) {
	var out api.ServiceStatus
	return out, c.do(ctx, http.MethodGet, "/v1/services/"+url.PathEscape(name), nil, &out, DefaultTimeout)
}

// Register creates or replaces a manual registration.
func (c *Client) Register(ctx context.Context, reg api.ServiceRegistration) (server.RegisterResult, error) {
	var out server.RegisterResult
	return out, c.do(ctx, http.MethodPut, "/v1/services/"+url.PathEscape(reg.Name), reg, &out, DefaultTimeout)
}

// Deregister removes a registration. Removing an unknown name is not an
// error; the result reports whether anything was removed.
func (c *Client) Deregister(ctx context.Context, name string) (server.DeregisterResult, error) {
	var out server.DeregisterResult
	return out, c.do(ctx, http.MethodDelete, "/v1/services/"+url.PathEscape(name), nil, &out, DefaultTimeout)
}

// Probe runs a health probe now and returns the updated record.
func (c *Client) Probe(ctx context.Context, name string) (api.HealthRecord, error) {
	var out api.HealthRecord
	return out, c.do(ctx, http.MethodPost, "/v1/services/"+url.PathEscape(name)+"/probe", nil, &out, DefaultTimeout)
}

// Invoke routes a tool call. The server bounds the call itself, so no client
// timeout is applied beyond ctx.
func (c *Client) Invoke(ctx context.Context, req api.RouteRequest) (api.RouteResponse, error) {
	var out api.RouteResponse
	return out, c.do(ctx, http.MethodPost, "/v1/invoke", req, &out, 0)
}

// TriggerDiscovery runs a discovery cycle and returns its summary.
func (c *Client) TriggerDiscovery(ctx context.Context) (discovery.CycleSummary, error) {
	var out discovery.CycleSummary
	return out, c.do(ctx, http.MethodPost, "/v1/discovery/trigger", nil, &out, 0)
}

// DiscoveryStatus returns the configured scanners and the last cycle.
func (c *Client) DiscoveryStatus(ctx context.Context) (server.DiscoveryStatus, error) {
	var out server.DiscoveryStatus
	return out, c.do(ctx, http.MethodGet, "/v1/discovery/status", nil, &out, DefaultTimeout)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if api.IsConnectionRefused(err) && ctx.Err() == nil {
			return fmt.Errorf("switchyard is not reachable at %s (is it running?): %w", c.baseURL, err)
		}
		return fmt.Errorf("request to %s failed: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var envelope struct {
			Error struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.Error.Kind != "" {
			apiErr.Kind = envelope.Error.Kind
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

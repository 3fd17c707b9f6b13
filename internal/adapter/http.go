package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"switchyard/internal/api"
)

const (
	defaultHealthPath = "/health"

	// maxBodyBytes caps how much of a backend reply is read.
	maxBodyBytes = 10 << 20
)

// HTTPAdapter calls tool servers exposing a plain JSON endpoint.
//
// Invoke sends POST {location}/invoke with {"tool","arguments","config"}; the
// JSON reply body is the result. Probe sends GET {location}{healthPath}.
type HTTPAdapter struct {
	client *http.Client
}

// NewHTTPAdapter creates an HTTP adapter using client.
func NewHTTPAdapter(client *http.Client) *HTTPAdapter {
	return &HTTPAdapter{client: client}
}

type invokeBody struct {
	ID        string                 `json:"id,omitempty"`
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments"`
	Config    map[string]interface{} `json:"config,omitempty"`
}

// errorReply is the shape of a backend-reported error.
type errorReply struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (a *HTTPAdapter) Invoke(ctx context.Context, reg api.ServiceRegistration, tool string, args map[string]interface{}) (api.Result, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	payload, err := json.Marshal(invokeBody{Tool: tool, Arguments: args, Config: reg.Config})
	if err != nil {
		return api.Result{}, api.NewProtocolError("arguments are not JSON encodable", err)
	}

	url := strings.TrimRight(reg.Location, "/") + "/invoke"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return api.Result{}, api.NewProtocolError("invalid service location", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range reg.ConfigStringMap("headers") {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return api.Result{}, wrapTransport("http invoke", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return api.Result{}, wrapTransport("reading response", err)
	}

	var reply errorReply
	isJSON := json.Valid(body)
	if isJSON {
		_ = json.Unmarshal(body, &reply)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		if reply.Error != nil && reply.Error.Message != "" {
			msg = reply.Error.Message
		}
		return api.Result{}, api.NewBackendError(msg, resp.StatusCode, nil)
	}
	if !isJSON {
		return api.Result{}, api.NewProtocolError("response is not JSON", nil)
	}
	if reply.Error != nil {
		return api.Result{}, api.NewBackendError(reply.Error.Message, 0, nil)
	}
	return api.Result{Data: json.RawMessage(body)}, nil
}

func (a *HTTPAdapter) Probe(ctx context.Context, reg api.ServiceRegistration) error {
	path := reg.ConfigString("healthPath")
	if path == "" {
		path = defaultHealthPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(reg.Location, "/")+path, nil)
	if err != nil {
		return api.NewProtocolError("invalid service location", err)
	}
	for k, v := range reg.ConfigStringMap("headers") {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return wrapTransport("http probe", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return api.NewBackendError(fmt.Sprintf("health endpoint returned %d", resp.StatusCode), resp.StatusCode, nil)
	}
	return nil
}

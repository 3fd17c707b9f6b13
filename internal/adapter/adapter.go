package adapter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/mcpclient"
)

const subsystem = "Adapter"

// Adapter speaks one wire protocol to a tool server.
type Adapter interface {
	// Invoke calls a tool and returns its opaque result. Errors are typed
	// (see internal/api) so the router can classify them.
	Invoke(ctx context.Context, reg api.ServiceRegistration, tool string, args map[string]interface{}) (api.Result, error)

	// Probe performs the protocol's cheapest liveness check.
	Probe(ctx context.Context, reg api.ServiceRegistration) error
}

// Set holds one adapter per protocol.
type Set struct {
	adapters map[api.Protocol]Adapter
}

// NewSet creates the standard adapters. The MCP adapters share pool so that a
// stdio-rpc service has a single subprocess for both calls and probes.
func NewSet(pool *mcpclient.Pool, httpClient *http.Client) *Set {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	mcp := NewMCPAdapter(pool)
	return &Set{adapters: map[api.Protocol]Adapter{
		api.ProtocolHTTP:      NewHTTPAdapter(httpClient),
		api.ProtocolWebSocket: NewWebSocketAdapter(httpClient),
		api.ProtocolStdioRPC:  mcp,
		api.ProtocolMCPHTTP:   mcp,
	}}
}

// NewSetWith builds a set from explicit adapters, mostly for tests.
func NewSetWith(adapters map[api.Protocol]Adapter) *Set {
	return &Set{adapters: adapters}
}

// For returns the adapter for a protocol.
func (s *Set) For(p api.Protocol) (Adapter, error) {
	a, ok := s.adapters[p]
	if !ok {
		return nil, api.NewProtocolError(fmt.Sprintf("no adapter for protocol %q", p), nil)
	}
	return a, nil
}

// Invoke dispatches to the adapter matching reg.Protocol.
func (s *Set) Invoke(ctx context.Context, reg api.ServiceRegistration, tool string, args map[string]interface{}) (api.Result, error) {
	a, err := s.For(reg.Protocol)
	if err != nil {
		return api.Result{}, err
	}
	return a.Invoke(ctx, reg, tool, args)
}

// Probe dispatches to the adapter matching reg.Protocol.
func (s *Set) Probe(ctx context.Context, reg api.ServiceRegistration) error {
	a, err := s.For(reg.Protocol)
	if err != nil {
		return err
	}
	return a.Probe(ctx, reg)
}

// Forget releases per-service resources held by adapters, such as pooled
// MCP clients, when a registration is removed.
func (s *Set) Forget(name string) {
	s.each(func(a Adapter) {
		if f, ok := a.(interface{ Forget(string) }); ok {
			f.Forget(name)
		}
	})
}

// Refresh tells adapters that reg was added or changed so they can drop
// resources built for its previous connection details.
func (s *Set) Refresh(reg api.ServiceRegistration) {
	s.each(func(a Adapter) {
		if r, ok := a.(interface{ Refresh(api.ServiceRegistration) }); ok {
			r.Refresh(reg)
		}
	})
}

func (s *Set) each(fn func(Adapter)) {
	seen := make(map[Adapter]bool)
	for _, a := range s.adapters {
		if seen[a] {
			continue
		}
		seen[a] = true
		fn(a)
	}
}

// wrapTransport turns a transport failure into a typed error, keeping
// timeouts and refused connections recognizable for classification.
func wrapTransport(op string, err error) error {
	switch {
	case api.IsTimeout(err):
		return api.NewTimeoutError(op, err)
	case api.IsConnectionRefused(err), api.IsNotFound(err):
		return err
	}
	return api.NewProtocolError(op+" failed", err)
}

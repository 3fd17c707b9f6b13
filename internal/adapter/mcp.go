package adapter

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"switchyard/internal/api"
	"switchyard/internal/mcpclient"
	"switchyard/pkg/logging"
)

// MCPAdapter serves the stdio-rpc and mcp-http protocols through pooled MCP
// clients. A client whose transport fails is evicted and recreated on the
// next call.
type MCPAdapter struct {
	pool *mcpclient.Pool
}

// NewMCPAdapter creates an MCP adapter backed by pool.
func NewMCPAdapter(pool *mcpclient.Pool) *MCPAdapter {
	return &MCPAdapter{pool: pool}
}

func (a *MCPAdapter) Invoke(ctx context.Context, reg api.ServiceRegistration, tool string, args map[string]interface{}) (api.Result, error) {
	c, err := a.pool.Get(ctx, reg)
	if err != nil {
		return api.Result{}, wrapTransport("mcp initialize", err)
	}

	result, err := c.CallTool(ctx, tool, args)
	if err != nil {
		if ctx.Err() == nil {
			a.pool.Evict(reg.Name, c)
		}
		return api.Result{}, wrapTransport("mcp call", err)
	}
	if result.IsError {
		return api.Result{}, api.NewBackendError(errorText(result), 0, nil)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return api.Result{}, api.NewProtocolError("result is not JSON encodable", err)
	}
	return api.Result{Data: data}, nil
}

// Probe pings the pooled client, performing the initialize handshake first
// if there is none yet.
func (a *MCPAdapter) Probe(ctx context.Context, reg api.ServiceRegistration) error {
	c, err := a.pool.Get(ctx, reg)
	if err != nil {
		return wrapTransport("mcp initialize", err)
	}
	if err := c.Ping(ctx); err != nil {
		logging.Debug(subsystem, "Ping of %s failed, dropping client: %v", reg.Name, err)
		a.pool.Evict(reg.Name, c)
		return wrapTransport("mcp ping", err)
	}
	return nil
}

// Forget drops the pooled client of a removed service.
func (a *MCPAdapter) Forget(name string) {
	a.pool.Forget(name)
}

// Refresh drops the pooled client of reg when its connection details
// changed.
func (a *MCPAdapter) Refresh(reg api.ServiceRegistration) {
	a.pool.Refresh(reg)
}

// errorText joins the text contents of an error result.
func errorText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok && textContent.Text != "" {
			parts = append(parts, textContent.Text)
		}
	}
	if len(parts) == 0 {
		return "tool reported an error"
	}
	return strings.Join(parts, "\n")
}

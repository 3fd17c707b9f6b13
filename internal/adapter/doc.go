// Package adapter implements the outbound protocol adapters: http,
// websocket, stdio-rpc and mcp-http. Each adapter can invoke a tool and probe
// a service; results cross the boundary as opaque JSON (api.Result) and
// failures as typed errors from internal/api.
package adapter

// Package mcpclient provides MCP clients for tool servers speaking the
// stdio-rpc and mcp-http protocols, and a pool that keeps one initialized
// client per service.
//
// The pool is shared by the router and the health monitor: a probe of a
// stdio-rpc service pings the same subprocess that serves its tool calls.
package mcpclient

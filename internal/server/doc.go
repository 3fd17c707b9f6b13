// Package server provides the inbound surfaces of switchyard.
//
// Two transports expose the same operations:
//   - a plain HTTP JSON API under /v1 (see NewAPIHandler), alongside /healthz
//     for the control plane's own liveness and /metrics for Prometheus
//   - an MCP server (see NewMCPServer) with the tools invoke, list_services,
//     get_service, register_service, deregister_service, trigger_discovery
//     and probe_service, served over streamable-http or stdio
//
// Errors never carry backend connection details: they are reduced to an
// error kind and a caller-safe message.
package server

// Package router dispatches route requests to tool servers.
//
// A request is resolved in the registry, refused without a backend call
// unless the service is healthy, sent through the protocol adapter with a
// bounded timeout, and its outcome recorded. Every failure is returned as a
// RouteResponse with an error kind and a message free of connection details.
package router

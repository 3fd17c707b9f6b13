// Package client is the HTTP client the CLI uses to talk to a running
// switchyard server.
//
// Every method maps to one endpoint of the /v1 API. Error bodies of the form
// {"error":{"kind","message"}} are returned as *APIError, so callers can
// branch on the kind:
//
//	c := client.New("http://127.0.0.1:8095")
//	status, err := c.GetService(ctx, "echo")
//	if client.IsNotFound(err) {
//	    ...
//	}
//
// Invoke is different: routing failures are part of the returned
// api.RouteResponse, and only transport failures are errors.
package client

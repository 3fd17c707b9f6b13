package mcpclient

import (
	"fmt"
	"strings"

	"switchyard/internal/api"
)

// NewClientForRegistration creates the MCP client matching the registration's
// protocol. The client is not yet initialized.
//
// Supported protocols:
//   - stdio-rpc: the location is a command line; config "env" adds
//     environment variables
//   - mcp-http: the location is the endpoint URL; config "headers" adds HTTP
//     headers
func NewClientForRegistration(reg api.ServiceRegistration) (MCPClient, error) {
	switch reg.Protocol {
	case api.ProtocolStdioRPC:
		fields := strings.Fields(reg.Location)
		if len(fields) == 0 {
			return nil, fmt.Errorf("command is required for stdio-rpc")
		}
		return NewStdioClientWithEnv(fields[0], fields[1:], reg.ConfigStringMap("env")), nil

	case api.ProtocolMCPHTTP:
		if reg.Location == "" {
			return nil, fmt.Errorf("URL is required for mcp-http")
		}
		return NewStreamableHTTPClientWithHeaders(reg.Location, reg.ConfigStringMap("headers")), nil

	default:
		return nil, fmt.Errorf("protocol %s is not served by an MCP client", reg.Protocol)
	}
}

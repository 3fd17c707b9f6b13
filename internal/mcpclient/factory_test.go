package mcpclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/api"
)

func TestNewClientForRegistration(t *testing.T) {
	tests := []struct {
		name    string
		reg     api.ServiceRegistration
		wantErr bool
		check   func(t *testing.T, c MCPClient)
	}{
		{
			name: "stdio with env",
			reg: api.ServiceRegistration{
				Protocol: api.ProtocolStdioRPC,
				Location: "files-server --root /tmp",
				Config:   map[string]interface{}{"env": map[string]interface{}{"DEBUG": "1"}},
			},
			check: func(t *testing.T, c MCPClient) {
				s := c.(*StdioClient)
				assert.Equal(t, "files-server", s.command)
				assert.Equal(t, []string{"--root", "/tmp"}, s.args)
				assert.Equal(t, map[string]string{"DEBUG": "1"}, s.env)
			},
		},
		{
			name:    "stdio missing command",
			reg:     api.ServiceRegistration{Protocol: api.ProtocolStdioRPC, Location: "   "},
			wantErr: true,
		},
		{
			name: "mcp-http with headers",
			reg: api.ServiceRegistration{
				Protocol: api.ProtocolMCPHTTP,
				Location: "http://example.com/mcp",
				Config:   map[string]interface{}{"headers": map[string]interface{}{"Authorization": "Bearer token"}},
			},
			check: func(t *testing.T, c MCPClient) {
				h := c.(*StreamableHTTPClient)
				assert.Equal(t, "http://example.com/mcp", h.url)
				assert.Equal(t, "Bearer token", h.headers["Authorization"])
			},
		},
		{
			name:    "plain http is not MCP",
			reg:     api.ServiceRegistration{Protocol: api.ProtocolHTTP, Location: "http://x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClientForRegistration(tt.reg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}

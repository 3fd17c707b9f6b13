package config

import "time"

const (
	DefaultHTTPAddr    = "127.0.0.1:8095"
	DefaultMCPAddr     = "127.0.0.1:8096"
	DefaultManifestDir = "services.d"
)

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddr: DefaultHTTPAddr,
			MCP: MCPConfig{
				Enabled:   true,
				Transport: MCPTransportStreamableHTTP,
				Addr:      DefaultMCPAddr,
			},
			ShutdownGrace: 10 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Interval:      60 * time.Second,
			MissThreshold: 3,
			ScanTimeout:   30 * time.Second,
			Manifest: ManifestConfig{
				Enabled:  true,
				Dir:      DefaultManifestDir,
				Watch:    true,
				Debounce: 500 * time.Millisecond,
			},
			Container: ContainerConfig{
				Runtime:    "docker",
				NamePrefix: "",
				Host:       "127.0.0.1",
			},
		},
		Health: HealthConfig{
			Interval:         30 * time.Second,
			Timeout:          5 * time.Second,
			FailureThreshold: 3,
			Jitter:           0.2,
		},
		Router: RouterConfig{
			CallTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

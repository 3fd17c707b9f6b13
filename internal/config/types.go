package config

import (
	"time"

	"switchyard/internal/api"
)

// Config is the top-level configuration structure for switchyard.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Health    HealthConfig    `yaml:"health"`
	Router    RouterConfig    `yaml:"router"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

const (
	// MCPTransportStreamableHTTP is the streamable HTTP transport.
	MCPTransportStreamableHTTP = "streamable-http"
	// MCPTransportStdio is the standard I/O transport.
	MCPTransportStdio = "stdio"
)

// ServerConfig defines the inbound surfaces.
type ServerConfig struct {
	HTTPAddr      string        `yaml:"httpAddr"`      // Address of the HTTP API (default: 127.0.0.1:8095)
	MCP           MCPConfig     `yaml:"mcp"`           // MCP surface
	ShutdownGrace time.Duration `yaml:"shutdownGrace"` // Bound on graceful shutdown (default: 10s)
}

// MCPConfig defines the MCP (RPC-style) surface.
type MCPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Transport string `yaml:"transport,omitempty"` // streamable-http or stdio
	Addr      string `yaml:"addr,omitempty"`      // Listen address for streamable-http (default: 127.0.0.1:8096)
}

// DiscoveryConfig defines discovery cycles and scanners.
type DiscoveryConfig struct {
	Interval      time.Duration `yaml:"interval"`
	MissThreshold int           `yaml:"missThreshold"`
	ScanTimeout   time.Duration `yaml:"scanTimeout"`

	Manifest   ManifestConfig   `yaml:"manifest"`
	Container  ContainerConfig  `yaml:"container"`
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
	Static     []StaticService  `yaml:"static,omitempty"`
}

// ManifestConfig configures the manifest directory scanner.
type ManifestConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Dir      string        `yaml:"dir,omitempty"` // Relative paths are resolved against the config directory
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce,omitempty"`
}

// ContainerConfig configures the container scanner.
type ContainerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Runtime    string `yaml:"runtime,omitempty"`    // docker or podman
	NamePrefix string `yaml:"namePrefix,omitempty"` // Only containers whose name starts with this are considered
	Host       string `yaml:"host,omitempty"`       // Host published ports are reached on (default: 127.0.0.1)
}

// KubernetesConfig configures the Kubernetes Service scanner.
type KubernetesConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace,omitempty"` // Empty means all namespaces

	// LabelSelector overrides the default switchyard.io/tool-server=true.
	LabelSelector string `yaml:"labelSelector,omitempty"`
}

// StaticService is an external endpoint listed in the configuration.
type StaticService struct {
	Name     string                 `yaml:"name"`
	Location string                 `yaml:"location"`
	Protocol api.Protocol           `yaml:"protocol"`
	Required bool                   `yaml:"required,omitempty"`
	Priority api.Priority           `yaml:"priority,omitempty"`
	Tags     []string               `yaml:"tags,omitempty"`
	Config   map[string]interface{} `yaml:"config,omitempty"`
}

// Registration converts the entry into an external registration.
func (s StaticService) Registration() api.ServiceRegistration {
	return api.ServiceRegistration{
		Name:     s.Name,
		Kind:     api.KindExternal,
		Location: s.Location,
		Protocol: s.Protocol,
		Required: s.Required,
		Priority: s.Priority,
		Tags:     s.Tags,
		Config:   s.Config,
	}.Normalize()
}

// HealthConfig defines the probe schedule.
type HealthConfig struct {
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold int           `yaml:"failureThreshold"`
	Jitter           float64       `yaml:"jitter"`
}

// RouterConfig defines routing behaviour.
type RouterConfig struct {
	CallTimeout time.Duration `yaml:"callTimeout"`
}

// StorageConfig defines registry persistence.
type StorageConfig struct {
	SQLitePath string `yaml:"sqlitePath,omitempty"` // Empty disables persistence; relative paths resolve against the config directory
}

// LoggingConfig defines log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

package app

import (
	"switchyard/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of the configured level
	Debug bool

	// Configuration directory holding config.yaml
	// Empty means the default ~/.config/switchyard
	ConfigPath string

	// Version is reported by the MCP surface
	Version string

	// Loaded configuration. When set before NewApplication, loading is skipped.
	SwitchyardConfig *config.Config
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath, version string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
		Version:    version,
	}
}

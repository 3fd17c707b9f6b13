package app

import (
	"context"
	"fmt"
	"os"

	"switchyard/internal/config"
	"switchyard/pkg/logging"
)

// Application wires the registry, discovery, health monitor, router and the
// inbound surfaces together and runs them until shutdown.
//
// Initialization happens in two phases:
//  1. Bootstrap: load configuration, initialize logging, build services
//  2. Run: start background loops and servers, block until a signal
//
// Example usage:
//
//	cfg := app.NewConfig(false, "", version)
//	application, err := app.NewApplication(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads configuration (unless cfg.SwitchyardConfig is already
// set), initializes logging and builds every service. A persisted registry
// that cannot be decoded fails here.
func NewApplication(ctx context.Context, cfg *Config) (*Application, error) {
	if cfg.SwitchyardConfig == nil {
		configPath := cfg.ConfigPath
		if configPath == "" {
			configPath = config.GetDefaultConfigPathOrPanic()
		}
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
		}
		cfg.ConfigPath = configPath
		cfg.SwitchyardConfig = &loaded
	}

	initLogging(cfg)
	logging.Info("Bootstrap", "Loaded configuration from %s", cfg.ConfigPath)

	services, err := InitializeServices(ctx, cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// initLogging writes to stderr so a stdio MCP surface owns stdout.
func initLogging(cfg *Config) {
	level := logging.ParseLevel(cfg.SwitchyardConfig.Logging.Level)
	if cfg.Debug {
		level = logging.LevelDebug
	}
	logging.Init(level, logging.Format(cfg.SwitchyardConfig.Logging.Format), os.Stderr)
}

// Services returns the initialized services.
func (a *Application) Services() *Services {
	return a.services
}

// Run starts every component and blocks until ctx is cancelled or a
// termination signal arrives, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	return run(ctx, a.config.SwitchyardConfig.Server.ShutdownGrace, a.services)
}

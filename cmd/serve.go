package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"switchyard/internal/app"
)

var (
	// serveDebug enables verbose logging across the application.
	serveDebug bool

	// serveConfigPath is the directory holding config.yaml.
	serveConfigPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the switchyard control plane",
	Long: `Starts the registry, discovery, health monitoring and routing, and
serves the HTTP API (plus /healthz and /metrics) and, when enabled, the MCP
surface.

Configuration is read from config.yaml in --config-path, by default
~/.config/switchyard. A missing file runs with built-in defaults:
  - HTTP API on 127.0.0.1:8095, MCP (streamable-http) on 127.0.0.1:8096
  - manifests discovered from services.d/ next to config.yaml

The process runs until interrupted (Ctrl+C or SIGTERM) and then shuts
down gracefully. Under systemd, readiness is reported with sd_notify.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := app.NewConfig(serveDebug, serveConfigPath, GetVersion())
	application, err := app.NewApplication(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Configuration directory (default: ~/.config/switchyard)")
}

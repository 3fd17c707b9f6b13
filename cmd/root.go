package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"switchyard/internal/client"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeCallFailed indicates a routed call returned an error envelope.
	ExitCodeCallFailed = 2
	// ExitCodeNotFound indicates the named service does not exist.
	ExitCodeNotFound = 3
)

// rootCmd represents the base command for the switchyard application.
var rootCmd = &cobra.Command{
	Use:   "switchyard",
	Short: "Service registry and router for tool servers",
	Long: `switchyard keeps a live registry of tool servers (local processes,
containers and external APIs), probes their health and routes tool calls to
healthy instances.

Run 'switchyard serve' to start the control plane. The other commands talk
to a running server over its HTTP API.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "switchyard version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps errors to semantic exit codes for scripting.
func getExitCode(err error) int {
	var callFailed *CallFailedError
	if errors.As(err, &callFailed) {
		if callFailed.Kind == "NotFound" {
			return ExitCodeNotFound
		}
		return ExitCodeCallFailed
	}
	if client.IsNotFound(err) {
		return ExitCodeNotFound
	}
	return ExitCodeError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}

package cmd

import (
	"github.com/spf13/cobra"

	"switchyard/internal/client"
	"switchyard/internal/config"
	"switchyard/internal/formatting"
)

// clientOptions are the flags shared by every command that talks to a
// running server.
type clientOptions struct {
	endpoint   string
	configPath string
	output     string
	quiet      bool
}

func (o *clientOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.endpoint, "endpoint", "", "Server address (default: server.httpAddr from the configuration)")
	cmd.Flags().StringVar(&o.configPath, "config-path", "", "Configuration directory used to find the server address")
	cmd.Flags().StringVarP(&o.output, "output", "o", "table", "Output format (table, json, yaml)")
	cmd.Flags().BoolVarP(&o.quiet, "quiet", "q", false, "Suppress decorative output")
}

// resolveEndpoint prefers --endpoint, then the configured server address.
// An unreadable configuration falls back to the default address.
func (o *clientOptions) resolveEndpoint() string {
	if o.endpoint != "" {
		return o.endpoint
	}
	path := o.configPath
	if path == "" {
		path = config.GetDefaultConfigPathOrPanic()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil || cfg.Server.HTTPAddr == "" {
		return config.DefaultHTTPAddr
	}
	return cfg.Server.HTTPAddr
}

func (o *clientOptions) client() *client.Client {
	return client.New(o.resolveEndpoint())
}

func (o *clientOptions) formatter(cmd *cobra.Command) formatting.Formatter {
	return formatting.NewFormatter(formatting.Options{
		Format: formatting.ParseOutputFormat(o.output),
		Quiet:  o.quiet,
		Out:    cmd.OutOrStdout(),
	})
}

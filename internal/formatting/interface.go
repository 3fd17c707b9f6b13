// Package formatting renders registry, health, discovery and routing data
// for the CLI in table, JSON or YAML form.
package formatting

import (
	"io"
	"os"

	"switchyard/internal/api"
	"switchyard/internal/discovery"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// ParseOutputFormat accepts table, json or yaml; anything else is table.
func ParseOutputFormat(s string) OutputFormat {
	switch OutputFormat(s) {
	case FormatJSON, FormatYAML:
		return OutputFormat(s)
	default:
		return FormatTable
	}
}

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Quiet  bool      // Suppress decorative elements
	Out    io.Writer // Defaults to os.Stdout
}

func (o Options) writer() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

// Formatter renders CLI results.
type Formatter interface {
	FormatServices(statuses []api.ServiceStatus) error
	FormatService(status api.ServiceStatus) error
	FormatHealth(name string, record api.HealthRecord) error
	FormatCycle(summary discovery.CycleSummary) error
	FormatRouteResponse(resp api.RouteResponse) error

	// FormatData renders anything else.
	FormatData(data interface{}) error
}

// NewFormatter creates the formatter for options.Format.
func NewFormatter(options Options) Formatter {
	switch options.Format {
	case FormatJSON:
		return NewJSONFormatter(options)
	case FormatYAML:
		return NewYAMLFormatter(options)
	default:
		return NewTableFormatter(options)
	}
}

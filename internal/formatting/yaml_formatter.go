package formatting

import (
	"fmt"

	"sigs.k8s.io/yaml"

	"switchyard/internal/api"
	"switchyard/internal/discovery"
)

// YAMLFormatter writes values as YAML using their JSON field names.
type YAMLFormatter struct {
	options Options
}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter(options Options) Formatter {
	return &YAMLFormatter{options: options}
}

func (f *YAMLFormatter) FormatServices(statuses []api.ServiceStatus) error {
	if statuses == nil {
		statuses = []api.ServiceStatus{}
	}
	return f.FormatData(statuses)
}

func (f *YAMLFormatter) FormatService(status api.ServiceStatus) error {
	return f.FormatData(status)
}

func (f *YAMLFormatter) FormatHealth(name string, record api.HealthRecord) error {
	return f.FormatData(map[string]interface{}{"name": name, "health": record})
}

func (f *YAMLFormatter) FormatCycle(summary discovery.CycleSummary) error {
	return f.FormatData(summary)
}

func (f *YAMLFormatter) FormatRouteResponse(resp api.RouteResponse) error {
	return f.FormatData(resp)
}

// FormatData formats generic data as YAML
func (f *YAMLFormatter) FormatData(data interface{}) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to format YAML: %w", err)
	}
	_, err = f.options.writer().Write(out)
	return err
}

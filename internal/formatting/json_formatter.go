package formatting

import (
	"encoding/json"
	"fmt"

	"switchyard/internal/api"
	"switchyard/internal/discovery"
)

// JSONFormatter writes every value as JSON, compact in quiet mode.
type JSONFormatter struct {
	options Options
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(options Options) Formatter {
	return &JSONFormatter{options: options}
}

func (f *JSONFormatter) FormatServices(statuses []api.ServiceStatus) error {
	if statuses == nil {
		statuses = []api.ServiceStatus{}
	}
	return f.FormatData(statuses)
}

func (f *JSONFormatter) FormatService(status api.ServiceStatus) error {
	return f.FormatData(status)
}

func (f *JSONFormatter) FormatHealth(name string, record api.HealthRecord) error {
	return f.FormatData(map[string]interface{}{"name": name, "health": record})
}

func (f *JSONFormatter) FormatCycle(summary discovery.CycleSummary) error {
	return f.FormatData(summary)
}

func (f *JSONFormatter) FormatRouteResponse(resp api.RouteResponse) error {
	return f.FormatData(resp)
}

// FormatData formats generic data as JSON
func (f *JSONFormatter) FormatData(data interface{}) error {
	_, err := fmt.Fprintln(f.options.writer(), f.marshal(data))
	return err
}

func (f *JSONFormatter) marshal(data interface{}) string {
	if !f.options.Quiet {
		return PrettyJSON(data)
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf(`{"error": "Failed to format JSON: %v"}`, err)
	}
	return string(b)
}

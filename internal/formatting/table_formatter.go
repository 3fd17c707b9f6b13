package formatting

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"switchyard/internal/api"
	"switchyard/internal/discovery"
	strutil "switchyard/pkg/strings"
)

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(options Options) Formatter {
	return &TableFormatter{options: options}
}

// FormatServices renders one row per service, sorted by name.
func (f *TableFormatter) FormatServices(statuses []api.ServiceStatus) error {
	if len(statuses) == 0 {
		return f.emptyMessage("No services registered")
	}
	sorted := make([]api.ServiceStatus, len(statuses))
	copy(sorted, statuses)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Registration.Name < sorted[j].Registration.Name })

	t := f.createTable()
	t.AppendHeader(header("NAME", "HEALTH", "PROTOCOL", "KIND", "PRIORITY", "LOCATION", "SOURCE", "TAGS"))
	for _, s := range sorted {
		reg := s.Registration
		name := reg.Name
		if reg.Required {
			name += " *"
		}
		t.AppendRow(table.Row{
			text.FgHiCyan.Sprint(name),
			healthText(s.Health.Status),
			string(reg.Protocol),
			string(reg.Kind),
			string(reg.Priority),
			strutil.Truncate(reg.Location, strutil.DefaultCellMaxLen),
			reg.Source,
			strings.Join(reg.Tags, ","),
		})
	}
	t.Render()

	if !f.options.Quiet {
		healthy := 0
		for _, s := range statuses {
			if s.Health.Status == api.HealthHealthy {
				healthy++
			}
		}
		fmt.Fprintf(f.out(), "\n%s %s %s %s\n",
			text.FgHiBlue.Sprint("Total:"),
			text.FgHiWhite.Sprint(len(statuses)),
			text.FgHiBlue.Sprint("services, healthy:"),
			text.FgHiWhite.Sprint(healthy))
	}
	return nil
}

// FormatService renders a key/value view of one service.
func (f *TableFormatter) FormatService(status api.ServiceStatus) error {
	reg := status.Registration
	t := f.createTable()
	t.AppendHeader(header("FIELD", "VALUE"))
	rows := []table.Row{
		{"Name", reg.Name},
		{"Kind", string(reg.Kind)},
		{"Protocol", string(reg.Protocol)},
		{"Location", reg.Location},
		{"Priority", string(reg.Priority)},
		{"Required", reg.Required},
		{"Tags", strings.Join(reg.Tags, ", ")},
		{"Source", reg.Source},
		{"Updated", formatTime(reg.UpdatedAt)},
	}
	for _, r := range rows {
		t.AppendRow(r)
	}
	t.AppendSeparator()
	for _, r := range healthRows(status.Health) {
		t.AppendRow(r)
	}
	if len(reg.Config) > 0 {
		t.AppendSeparator()
		keys := make([]string, 0, len(reg.Config))
		for k := range reg.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.AppendRow(table.Row{"config." + k, strutil.Truncate(fmt.Sprintf("%v", reg.Config[k]), 100)})
		}
	}
	t.Render()
	return nil
}

// FormatHealth renders the result of an on-demand probe.
func (f *TableFormatter) FormatHealth(name string, record api.HealthRecord) error {
	t := f.createTable()
	t.AppendHeader(header("FIELD", "VALUE"))
	t.AppendRow(table.Row{"Name", name})
	for _, r := range healthRows(record) {
		t.AppendRow(r)
	}
	t.Render()
	return nil
}

// FormatCycle renders a discovery cycle summary.
func (f *TableFormatter) FormatCycle(summary discovery.CycleSummary) error {
	w := f.out()
	if summary.Cycle == 0 {
		return f.emptyMessage("No discovery cycle has completed yet")
	}
	fmt.Fprintf(w, "%s #%d finished %s (%.1fms)\n",
		text.FgHiBlue.Sprint("Discovery cycle"), summary.Cycle, formatTime(summary.FinishedAt), summary.DurationMs)

	t := f.createTable()
	t.AppendHeader(header("SCANNER", "COUNT", "ERROR"))
	for _, s := range summary.Scanners {
		errText := ""
		if s.Error != "" {
			errText = text.FgRed.Sprint(strutil.Truncate(s.Error, 80))
		}
		t.AppendRow(table.Row{s.Name, s.Count, errText})
	}
	t.Render()

	changes := []struct {
		label string
		names []string
	}{
		{"Created", summary.Created},
		{"Updated", summary.Updated},
		{"Removed", summary.Removed},
	}
	for _, c := range changes {
		if len(c.names) > 0 {
			fmt.Fprintf(w, "%s %s\n", text.FgHiBlue.Sprint(c.label+":"), strings.Join(c.names, ", "))
		}
	}
	for _, c := range summary.Conflicts {
		fmt.Fprintf(w, "%s %s: %s (%s) wins over %s (%s)\n", text.FgYellow.Sprint("Conflict"),
			c.Name, c.Winner, c.WinnerLocation, c.Loser, c.LoserLocation)
	}
	return nil
}

// FormatRouteResponse prints the backend result, or the classified error.
func (f *TableFormatter) FormatRouteResponse(resp api.RouteResponse) error {
	if !resp.OK {
		_, err := fmt.Fprintf(f.out(), "%s %s: %s\n", text.FgRed.Sprint("Error"), resp.ErrorKind, resp.ErrorMessage)
		return err
	}
	_, err := fmt.Fprintln(f.out(), PrettyJSON(resp.Result))
	return err
}

// FormatData formats generic data using table logic
func (f *TableFormatter) FormatData(data interface{}) error {
	switch d := data.(type) {
	case map[string]interface{}:
		return f.formatObjectData(d)
	case string:
		_, err := fmt.Fprintln(f.out(), d)
		return err
	default:
		_, err := fmt.Fprintln(f.out(), PrettyJSON(d))
		return err
	}
}

func (f *TableFormatter) out() io.Writer {
	return f.options.writer()
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(f.out())
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) emptyMessage(message string) error {
	_, err := fmt.Fprintf(f.out(), "%s\n", text.FgYellow.Sprint(message))
	return err
}

// formatObjectData formats object data as key-value pairs
func (f *TableFormatter) formatObjectData(data map[string]interface{}) error {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := f.createTable()
	t.AppendHeader(header("KEY", "VALUE"))
	for _, key := range keys {
		t.AppendRow(table.Row{text.FgHiCyan.Sprint(key), strutil.Truncate(fmt.Sprintf("%v", data[key]), 100)})
	}
	t.Render()
	return nil
}

func header(names ...string) table.Row {
	row := make(table.Row, len(names))
	for i, n := range names {
		row[i] = text.FgHiCyan.Sprint(n)
	}
	return row
}

func healthRows(h api.HealthRecord) []table.Row {
	rows := []table.Row{
		{"Health", healthText(h.Status)},
		{"Consecutive failures", h.ConsecutiveFailures},
		{"Last checked", formatTime(h.LastCheckedAt)},
		{"Response time", fmt.Sprintf("%.1fms", h.LastResponseTimeMs)},
	}
	if h.LastError != "" {
		rows = append(rows, table.Row{"Last error", text.FgRed.Sprint(h.LastError)})
	}
	return rows
}

func healthText(s api.HealthStatus) string {
	switch s {
	case api.HealthHealthy:
		return text.FgGreen.Sprint(s)
	case api.HealthUnhealthy:
		return text.FgRed.Sprint(s)
	default:
		return text.FgYellow.Sprint(s)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.RFC3339)
}

package formatting

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/api"
	"switchyard/internal/discovery"
)

func sampleStatuses() []api.ServiceStatus {
	return []api.ServiceStatus{
		{
			Registration: api.ServiceRegistration{
				Name: "search", Kind: api.KindExternal, Protocol: api.ProtocolHTTP,
				Location: "https://search.example.com", Priority: api.PriorityLow, Tags: []string{"web"},
			},
			Health: api.HealthRecord{Status: api.HealthUnhealthy, ConsecutiveFailures: 3, LastError: "timeout"},
		},
		{
			Registration: api.ServiceRegistration{
				Name: "echo", Kind: api.KindLocalProcess, Protocol: api.ProtocolStdioRPC,
				Location: "echo-server --stdio", Priority: api.PriorityHigh, Required: true, Source: "manifest",
			},
			Health: api.HealthRecord{Status: api.HealthHealthy, LastCheckedAt: time.Now(), LastResponseTimeMs: 1.5},
		},
	}
}

func TestParseOutputFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseOutputFormat("json"))
	assert.Equal(t, FormatYAML, ParseOutputFormat("yaml"))
	assert.Equal(t, FormatTable, ParseOutputFormat("table"))
	assert.Equal(t, FormatTable, ParseOutputFormat("xml"))
}

func TestTableFormatter_Services(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(Options{Format: FormatTable, Out: &buf})

	require.NoError(t, f.FormatServices(sampleStatuses()))
	out := buf.String()
	assert.Contains(t, out, "echo *")
	assert.Contains(t, out, "search")
	assert.Contains(t, out, "stdio-rpc")
	assert.Contains(t, out, "healthy:")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("echo")), bytes.Index(buf.Bytes(), []byte("search")), "rows are sorted by name")

	buf.Reset()
	require.NoError(t, f.FormatServices(nil))
	assert.Contains(t, buf.String(), "No services registered")
}

func TestTableFormatter_Service(t *testing.T) {
	var buf bytes.Buffer
	f := NewTableFormatter(Options{Out: &buf})

	status := sampleStatuses()[0]
	status.Registration.Config = map[string]interface{}{"healthPath": "/ready"}
	require.NoError(t, f.FormatService(status))
	out := buf.String()
	assert.Contains(t, out, "https://search.example.com")
	assert.Contains(t, out, "config.healthPath")
	assert.Contains(t, out, "Last error")
	assert.Contains(t, out, "never")
}

func TestTableFormatter_Cycle(t *testing.T) {
	var buf bytes.Buffer
	f := NewTableFormatter(Options{Out: &buf})

	require.NoError(t, f.FormatCycle(discovery.CycleSummary{}))
	assert.Contains(t, buf.String(), "No discovery cycle")

	buf.Reset()
	require.NoError(t, f.FormatCycle(discovery.CycleSummary{
		Cycle:      4,
		FinishedAt: time.Now(),
		Scanners: []discovery.ScannerSummary{
			{Name: "manifest", Count: 2},
			{Name: "container", Error: "docker daemon not accessible"},
		},
		Created: []string{"echo"},
		Conflicts: []discovery.Conflict{{
			Name: "echo", Winner: "manifest", WinnerLocation: "a", Loser: "static", LoserLocation: "b",
		}},
	}))
	out := buf.String()
	assert.Contains(t, out, "#4")
	assert.Contains(t, out, "docker daemon not accessible")
	assert.Contains(t, out, "Created:")
	assert.Contains(t, out, "manifest (a) wins over static (b)")
}

func TestTableFormatter_RouteResponse(t *testing.T) {
	var buf bytes.Buffer
	f := NewTableFormatter(Options{Out: &buf})

	require.NoError(t, f.FormatRouteResponse(api.Success(api.Result{Data: json.RawMessage(`{"echo":"hi"}`)})))
	assert.Contains(t, buf.String(), `"echo": "hi"`)

	buf.Reset()
	require.NoError(t, f.FormatRouteResponse(api.Failure(api.ErrorKindUnavailable, "service echo is unavailable")))
	assert.Contains(t, buf.String(), "Unavailable: service echo is unavailable")
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(Options{Format: FormatJSON, Quiet: true, Out: &buf})

	require.NoError(t, f.FormatServices(nil))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, f.FormatHealth("echo", api.HealthRecord{Status: api.HealthHealthy}))
	var decoded struct {
		Name   string           `json:"name"`
		Health api.HealthRecord `json:"health"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "echo", decoded.Name)
	assert.Equal(t, api.HealthHealthy, decoded.Health.Status)
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(Options{Format: FormatYAML, Out: &buf})

	require.NoError(t, f.FormatService(sampleStatuses()[1]))
	out := buf.String()
	assert.Contains(t, out, "name: echo")
	assert.Contains(t, out, "protocol: stdio-rpc")
	assert.Contains(t, out, "status: healthy")
}

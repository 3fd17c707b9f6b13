package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/api"
	"switchyard/internal/config"
)

func testConfig(t *testing.T, backendURL string) *Config {
	t.Helper()
	dir := t.TempDir()
	manifests := filepath.Join(dir, "services.d")
	require.NoError(t, os.MkdirAll(manifests, 0755))

	sc := config.GetDefaultConfig()
	sc.Server.HTTPAddr = "127.0.0.1:0"
	sc.Server.MCP.Enabled = false
	sc.Server.ShutdownGrace = 5 * time.Second
	sc.Discovery.Manifest.Dir = manifests
	sc.Discovery.Manifest.Watch = true
	sc.Discovery.Manifest.Debounce = 50 * time.Millisecond
	sc.Health.Interval = 100 * time.Millisecond
	sc.Health.Timeout = time.Second
	sc.Storage.SQLitePath = filepath.Join(dir, "registry.db")
	sc.Discovery.Static = []config.StaticService{{
		Name:     "echo",
		Location: backendURL,
		Protocol: api.ProtocolHTTP,
		Required: true,
	}}

	return &Config{ConfigPath: dir, Version: "test", SwitchyardConfig: &sc}
}

func echoBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /invoke", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Tool      string                 `json:"tool"`
			Arguments map[string]interface{} `json:"arguments"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"echo": body.Arguments["text"]})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestInitializeServices_NoScanners(t *testing.T) {
	sc := config.GetDefaultConfig()
	sc.Discovery.Manifest.Enabled = false
	cfg := &Config{SwitchyardConfig: &sc}

	services, err := InitializeServices(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, services.Discovery.Scanners())
	assert.Nil(t, services.Watcher)
	assert.NoError(t, services.Registry.Close())
}

func TestInitializeServices_ScannerOrder(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")

	services, err := InitializeServices(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = services.Registry.Close() })

	assert.Equal(t, []string{"manifest", "static"}, services.Discovery.Scanners())
	assert.NotNil(t, services.Watcher)
}

func TestInitializeServices_UnknownRuntime(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.SwitchyardConfig.Discovery.Container.Enabled = true
	cfg.SwitchyardConfig.Discovery.Container.Runtime = "lxc"

	_, err := InitializeServices(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "container runtime")
}

func TestApplicationRun(t *testing.T) {
	backend := echoBackend(t)
	cfg := testConfig(t, backend.URL)

	application, err := NewApplication(context.Background(), cfg)
	require.NoError(t, err)
	services := application.Services()

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- application.Run(ctx) }()

	require.Eventually(t, func() bool { return services.Server.Addr() != "" }, 5*time.Second, 10*time.Millisecond)
	base := "http://" + services.Server.Addr()

	// Discovery registers the static service and the monitor marks it healthy.
	require.Eventually(t, func() bool {
		_, h, err := services.Registry.Get("echo")
		return err == nil && h.Status == api.HealthHealthy
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Post(base+"/v1/invoke", "application/json",
		jsonReader(t, api.RouteRequest{ServiceName: "echo", ToolName: "say", Arguments: map[string]interface{}{"text": "hi"}}))
	require.NoError(t, err)
	var out api.RouteResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	assert.True(t, out.OK, out.ErrorMessage)
	assert.JSONEq(t, `{"echo":"hi"}`, string(out.Result))

	// A manifest written while running is picked up by the watcher.
	manifest := `{"name":"late","location":"` + backend.URL + `","protocol":"http"}`
	require.NoError(t, os.WriteFile(filepath.Join(cfg.SwitchyardConfig.Discovery.Manifest.Dir, "late.json"), []byte(manifest), 0644))
	require.Eventually(t, func() bool {
		_, _, err := services.Registry.Get("late")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, 0, services.Monitor.Running())
}

func TestApplicationReloadsPersistedRegistry(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.SwitchyardConfig.Discovery.Static = nil

	services, err := InitializeServices(context.Background(), cfg)
	require.NoError(t, err)
	_, err = services.Registry.Upsert(api.ServiceRegistration{
		Name:     "manual",
		Kind:     api.KindExternal,
		Location: "http://127.0.0.1:1",
		Protocol: api.ProtocolHTTP,
		Source:   "manual",
	})
	require.NoError(t, err)
	require.NoError(t, services.Registry.Close())

	services, err = InitializeServices(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = services.Registry.Close() })

	reg, h, err := services.Registry.Get("manual")
	require.NoError(t, err)
	assert.Equal(t, "manual", reg.Source)
	assert.Equal(t, api.HealthUnknown, h.Status)
}

func jsonReader(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

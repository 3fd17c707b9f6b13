package client

import (
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/api"
	"switchyard/internal/discovery"
	"switchyard/internal/registry"
	"switchyard/internal/server"
)

type echoRouter struct{}

func (echoRouter) Route(ctx context.Context, req api.RouteRequest) api.RouteResponse {
	if req.ServiceName != "echo" {
		return api.Failure(api.ErrorKindNotFound, "service "+req.ServiceName+" not found")
	}
	res, _ := api.ResultFromValue(req.Arguments)
	return api.Success(res)
}

type stubDiscovery struct{ cycles int64 }

func (d *stubDiscovery) Trigger(ctx context.Context) (discovery.CycleSummary, error) {
	d.cycles++
	return discovery.CycleSummary{Cycle: d.cycles, FinishedAt: time.Now()}, nil
}

func (d *stubDiscovery) Last() (discovery.CycleSummary, bool) {
	return discovery.CycleSummary{Cycle: d.cycles}, d.cycles > 0
}

func (d *stubDiscovery) Scanners() []string { return []string{"static"} }

type stubProber struct{}

func (stubProber) ProbeNow(ctx context.Context, name string) (api.HealthRecord, error) {
	if name != "echo" {
		return api.HealthRecord{}, api.NewServiceNotFoundError(name)
	}
	return api.HealthRecord{Status: api.HealthHealthy}, nil
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	srv := server.New(server.Deps{
		Registry:  registry.New(),
		Router:    echoRouter{},
		Discovery: &stubDiscovery{},
		Prober:    stubProber{},
	}, server.Options{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return New(ts.URL + "/")
}

func TestClientRegistrationLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	res, err := c.Register(ctx, api.ServiceRegistration{
		Name:     "echo",
		Kind:     api.KindExternal,
		Location: "https://echo.example.com",
		Protocol: api.ProtocolHTTP,
		Tags:     []string{"demo"},
	})
	require.NoError(t, err)
	assert.Equal(t, "created", res.Result)

	list, err := c.ListServices(ctx, api.ListFilter{Tags: []string{"demo"}, Kind: api.KindExternal})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "echo", list[0].Registration.Name)

	list, err = c.ListServices(ctx, api.ListFilter{RequiredOnly: true})
	require.NoError(t, err)
	assert.Empty(t, list)

	status, err := c.GetService(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, registry.SourceManual, status.Registration.Source)

	dereg, err := c.Deregister(ctx, "echo")
	require.NoError(t, err)
	assert.True(t, dereg.Removed)

	_, err = c.GetService(ctx, "echo")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestClientRegisterInvalid(t *testing.T) {
	c := newTestClient(t)

	_, err := c.Register(context.Background(), api.ServiceRegistration{Name: "broken"})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.StatusCode)
	assert.Equal(t, "InvalidRequest", apiErr.Kind)
}

func TestClientInvoke(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	resp, err := c.Invoke(ctx, api.RouteRequest{ServiceName: "echo", ToolName: "say", Arguments: map[string]interface{}{"text": "hi"}})
	require.NoError(t, err)
	require.True(t, resp.OK)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "hi", result["text"])

	resp, err = c.Invoke(ctx, api.RouteRequest{ServiceName: "ghost", ToolName: "say"})
	require.NoError(t, err, "routing failures are part of the envelope")
	assert.False(t, resp.OK)
	assert.Equal(t, api.ErrorKindNotFound, resp.ErrorKind)
}

func TestClientProbeAndDiscovery(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	rec, err := c.Probe(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, api.HealthHealthy, rec.Status)

	_, err = c.Probe(ctx, "ghost")
	assert.True(t, IsNotFound(err))

	status, err := c.DiscoveryStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"static"}, status.Scanners)
	assert.Nil(t, status.LastCycle)

	summary, err := c.TriggerDiscovery(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Cycle)

	status, err = c.DiscoveryStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.LastCycle)
}

func TestClientServerNotRunning(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = New(addr).ListServices(context.Background(), api.ListFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is it running?")
}

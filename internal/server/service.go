package server

import (
	"context"
	"fmt"

	"switchyard/internal/api"
	"switchyard/internal/discovery"
	"switchyard/internal/registry"
	"switchyard/pkg/logging"
)

const subsystem = "Server"

// Registry is the registry surface used by the inbound APIs.
type Registry interface {
	Get(name string) (api.ServiceRegistration, api.HealthRecord, error)
	List(filter api.ListFilter) []api.ServiceStatus
	Upsert(reg api.ServiceRegistration) (registry.UpsertResult, error)
	Remove(name string) bool
	Ping(ctx context.Context) error
}

// Router routes invocations.
type Router interface {
	Route(ctx context.Context, req api.RouteRequest) api.RouteResponse
}

// Discovery runs and reports discovery cycles.
type Discovery interface {
	Trigger(ctx context.Context) (discovery.CycleSummary, error)
	Last() (discovery.CycleSummary, bool)
	Scanners() []string
}

// Prober probes one service on demand.
type Prober interface {
	ProbeNow(ctx context.Context, name string) (api.HealthRecord, error)
}

// Deps are the components behind the inbound surfaces.
type Deps struct {
	Registry  Registry
	Router    Router
	Discovery Discovery
	Prober    Prober
}

// RegisterResult is returned by register_service.
type RegisterResult struct {
	Result  string            `json:"result"`
	Service api.ServiceStatus `json:"service"`
}

// DeregisterResult is returned by deregister_service.
type DeregisterResult struct {
	Name    string `json:"name"`
	Removed bool   `json:"removed"`
}

// DiscoveryStatus is returned by the discovery status endpoint.
type DiscoveryStatus struct {
	Scanners  []string                `json:"scanners"`
	LastCycle *discovery.CycleSummary `json:"lastCycle,omitempty"`
}

// InvalidRequestError reports a malformed inbound request.
type InvalidRequestError struct {
	Message string
}

func (e *InvalidRequestError) Error() string { return e.Message }

// service implements the operations shared by the HTTP and MCP surfaces.
type service struct {
	deps Deps
}

func (s *service) invoke(ctx context.Context, req api.RouteRequest) api.RouteResponse {
	return s.deps.Router.Route(ctx, req)
}

func (s *service) list(filter api.ListFilter) []api.ServiceStatus {
	return s.deps.Registry.List(filter)
}

func (s *service) get(name string) (api.ServiceStatus, error) {
	reg, health, err := s.deps.Registry.Get(name)
	if err != nil {
		return api.ServiceStatus{}, err
	}
	return api.ServiceStatus{Registration: reg, Health: health}, nil
}

// register stores reg as a manual registration. Manual registrations win
// over discovered ones with the same name.
func (s *service) register(reg api.ServiceRegistration) (RegisterResult, error) {
	reg.Source = registry.SourceManual
	if err := reg.Validate(); err != nil {
		return RegisterResult{}, &InvalidRequestError{Message: err.Error()}
	}
	res, err := s.deps.Registry.Upsert(reg)
	if err != nil {
		return RegisterResult{}, &InvalidRequestError{Message: err.Error()}
	}
	status, err := s.get(reg.Name)
	if err != nil {
		return RegisterResult{}, err
	}
	logging.Info(subsystem, "Registered %s (%s at %s): %s", reg.Name, reg.Protocol, reg.Location, res)
	return RegisterResult{Result: res.String(), Service: status}, nil
}

func (s *service) deregister(name string) DeregisterResult {
	removed := s.deps.Registry.Remove(name)
	if removed {
		logging.Info(subsystem, "Deregistered %s", name)
	}
	return DeregisterResult{Name: name, Removed: removed}
}

func (s *service) triggerDiscovery(ctx context.Context) (discovery.CycleSummary, error) {
	if s.deps.Discovery == nil {
		return discovery.CycleSummary{}, fmt.Errorf("discovery is not configured")
	}
	return s.deps.Discovery.Trigger(ctx)
}

func (s *service) discoveryStatus() DiscoveryStatus {
	status := DiscoveryStatus{Scanners: []string{}}
	if s.deps.Discovery == nil {
		return status
	}
	status.Scanners = s.deps.Discovery.Scanners()
	if last, ok := s.deps.Discovery.Last(); ok {
		status.LastCycle = &last
	}
	return status
}

func (s *service) probe(ctx context.Context, name string) (api.HealthRecord, error) {
	return s.deps.Prober.ProbeNow(ctx, name)
}

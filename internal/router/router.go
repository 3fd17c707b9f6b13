package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"switchyard/internal/api"
	"switchyard/internal/registry"
	"switchyard/pkg/logging"
)

const (
	subsystem = "Router"

	// DefaultCallTimeout bounds one backend call.
	DefaultCallTimeout = 10 * time.Second
)

// Invoker performs a tool call against a registration.
type Invoker interface {
	Invoke(ctx context.Context, reg api.ServiceRegistration, tool string, args map[string]interface{}) (api.Result, error)
}

// Config holds router settings.
type Config struct {
	CallTimeout time.Duration
}

// Option customizes a Router.
type Option func(*Router)

// WithSelector replaces the default PrioritySelector.
func WithSelector(s Selector) Option {
	return func(r *Router) { r.selector = s }
}

// WithRecorder replaces the default MetricsRecorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Router) { r.recorder = rec }
}

// Router resolves a route request to a healthy instance and dispatches it.
// It only reads the registry; health is owned by the monitor.
type Router struct {
	store    registry.Reader
	invoker  Invoker
	selector Selector
	recorder Recorder
	timeout  time.Duration

	now func() time.Time
}

// New creates a router.
func New(store registry.Reader, invoker Invoker, config Config, opts ...Option) *Router {
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultCallTimeout
	}
	r := &Router{
		store:    store,
		invoker:  invoker,
		selector: NewPrioritySelector(),
		recorder: MetricsRecorder{},
		timeout:  config.CallTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route handles one invocation. It never returns a Go error: every failure is
// reported in the response envelope.
func (r *Router) Route(ctx context.Context, req api.RouteRequest) api.RouteResponse {
	requestID := uuid.New().String()
	start := r.now()

	resp := r.route(ctx, requestID, req)

	outcome := "ok"
	if !resp.OK {
		outcome = string(resp.ErrorKind)
	}
	r.recorder.Record(Event{
		RequestID: requestID,
		Service:   req.ServiceName,
		Tool:      req.ToolName,
		Outcome:   outcome,
		Duration:  r.now().Sub(start),
		At:        start,
	})
	return resp
}

func (r *Router) route(ctx context.Context, requestID string, req api.RouteRequest) api.RouteResponse {
	if req.ServiceName == "" {
		return api.Failure(api.ErrorKindNotFound, "serviceName is required")
	}
	if req.ToolName == "" {
		return api.Failure(api.ErrorKindProtocolError, "toolName is required")
	}

	reg, health, err := r.store.Get(req.ServiceName)
	if err != nil {
		return failure(err)
	}

	// One instance per name today; the selector is where replicas would plug in.
	inst, ok := r.selector.Select(req.ServiceName, []api.ServiceInstance{{Registration: reg, Health: health}})
	if !ok {
		logging.Debug(subsystem, "[%s] %s is %s, failing fast", requestID, req.ServiceName, health.Status)
		return failure(api.NewUnavailableError(req.ServiceName, health.Status))
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.invoke(callCtx, inst.Registration, req.ToolName, req.Arguments)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !api.IsTimeout(err) {
			err = api.NewTimeoutError("backend call", err)
		}
		logging.Warn(subsystem, "[%s] %s/%s failed: %v", requestID, req.ServiceName, req.ToolName, err)
		return failure(err)
	}
	return api.Success(result)
}

// invoke calls the adapter, converting a panic into a protocol error.
func (r *Router) invoke(ctx context.Context, reg api.ServiceRegistration, tool string, args map[string]interface{}) (result api.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			logging.Error(subsystem, fmt.Errorf("%v", p), "Adapter for %s panicked: %s", reg.Name, debug.Stack())
			err = api.NewProtocolError("adapter failure", nil)
		}
	}()
	return r.invoker.Invoke(ctx, reg, tool, args)
}

func failure(err error) api.RouteResponse {
	return api.Failure(api.KindOf(err), api.SafeMessage(err))
}

package api

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"time"
)

// ServiceKind describes where a tool server runs.
type ServiceKind string

const (
	KindLocalProcess  ServiceKind = "local-process"
	KindContainerized ServiceKind = "containerized"
	KindExternal      ServiceKind = "external-third-party"
)

// Valid reports whether k is one of the known kinds.
func (k ServiceKind) Valid() bool {
	switch k {
	case KindLocalProcess, KindContainerized, KindExternal:
		return true
	}
	return false
}

// Protocol is the wire protocol a tool server speaks.
type Protocol string

const (
	ProtocolStdioRPC  Protocol = "stdio-rpc"
	ProtocolHTTP      Protocol = "http"
	ProtocolWebSocket Protocol = "websocket"
	// ProtocolMCPHTTP is MCP over streamable HTTP.
	ProtocolMCPHTTP Protocol = "mcp-http"
)

// Valid reports whether p is one of the known protocols.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolStdioRPC, ProtocolHTTP, ProtocolWebSocket, ProtocolMCPHTTP:
		return true
	}
	return false
}

// Priority is an ordering hint; it never affects correctness.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities high -> low. Unknown values sort with medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// HealthStatus is the routable state of a service.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// FailureKind classifies why a probe failed.
type FailureKind string

const (
	FailureTimeout           FailureKind = "timeout"
	FailureConnectionRefused FailureKind = "connection-refused"
	FailureProtocolError     FailureKind = "protocol-error"
	FailureApplicationError  FailureKind = "application-error"
)

// ServiceRegistration is the durable description of a tool server.
type ServiceRegistration struct {
	Name     string                 `json:"name"`
	Kind     ServiceKind            `json:"kind"`
	Location string                 `json:"location"`
	Protocol Protocol               `json:"protocol"`
	Required bool                   `json:"requiredFlag"`
	Priority Priority               `json:"priority"`
	Tags     []string               `json:"tags,omitempty"`
	Config   map[string]interface{} `json:"config,omitempty"`

	// Source names the scanner that produced this registration, or "manual"
	// for services registered through the API.
	Source string `json:"source,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the fields a registration must carry to be stored.
func (r ServiceRegistration) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("registration has empty name")
	}
	if r.Location == "" {
		return fmt.Errorf("registration %s has empty location", r.Name)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("registration %s has invalid kind %q", r.Name, r.Kind)
	}
	if !r.Protocol.Valid() {
		return fmt.Errorf("registration %s has invalid protocol %q", r.Name, r.Protocol)
	}
	if r.Priority != "" && !r.Priority.Valid() {
		return fmt.Errorf("registration %s has invalid priority %q", r.Name, r.Priority)
	}
	return nil
}

// Normalize fills defaults and canonicalizes the tag set.
func (r ServiceRegistration) Normalize() ServiceRegistration {
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}
	if len(r.Tags) > 0 {
		tags := slices.Clone(r.Tags)
		slices.Sort(tags)
		r.Tags = slices.Compact(tags)
	}
	return r
}

// HasTag reports whether the registration carries tag.
func (r ServiceRegistration) HasTag(tag string) bool {
	return slices.Contains(r.Tags, tag)
}

// SameSpec reports whether two registrations describe the same backend,
// ignoring timestamps and the discovering source.
func (r ServiceRegistration) SameSpec(o ServiceRegistration) bool {
	a, b := r.Normalize(), o.Normalize()
	return a.Name == b.Name &&
		a.Kind == b.Kind &&
		a.Location == b.Location &&
		a.Protocol == b.Protocol &&
		a.Required == b.Required &&
		a.Priority == b.Priority &&
		slices.Equal(a.Tags, b.Tags) &&
		configEqual(a.Config, b.Config)
}

// Clone returns a deep-enough copy that callers may mutate freely.
func (r ServiceRegistration) Clone() ServiceRegistration {
	r.Tags = slices.Clone(r.Tags)
	if r.Config != nil {
		r.Config = maps.Clone(r.Config)
	}
	return r
}

func configEqual(a, b map[string]interface{}) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// ConfigString returns a string value from the registration config.
func (r ServiceRegistration) ConfigString(key string) string {
	if v, ok := r.Config[key].(string); ok {
		return v
	}
	return ""
}

// ConfigStringMap returns a map[string]string value from the registration
// config, accepting both decoded JSON objects and typed maps.
func (r ServiceRegistration) ConfigStringMap(key string) map[string]string {
	switch v := r.Config[key].(type) {
	case map[string]string:
		return maps.Clone(v)
	case map[string]interface{}:
		out := make(map[string]string, len(v))
		for k, val := range v {
			out[k] = fmt.Sprint(val)
		}
		return out
	}
	return nil
}

// HealthRecord is the current liveness state of one registration.
type HealthRecord struct {
	Status              HealthStatus `json:"status"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	LastCheckedAt       time.Time    `json:"lastCheckedAt"`
	LastResponseTimeMs  float64      `json:"lastResponseTimeMs"`
	LastError           string       `json:"lastError,omitempty"`
}

// NewHealthRecord returns the initial record for a new registration.
func NewHealthRecord() HealthRecord {
	return HealthRecord{Status: HealthUnknown}
}

// ServiceInstance is a routable handle computed at routing time. It is never
// stored.
type ServiceInstance struct {
	Registration ServiceRegistration
	Health       HealthRecord
}

// Routable reports whether the instance may receive traffic.
func (i ServiceInstance) Routable() bool {
	return i.Health.Status == HealthHealthy
}

// ServiceStatus pairs a registration with its health for listing calls.
type ServiceStatus struct {
	Registration ServiceRegistration `json:"registration"`
	Health       HealthRecord        `json:"health"`
}

// ListFilter narrows a registry listing. Zero values match everything.
type ListFilter struct {
	Tags         []string    `json:"tags,omitempty"`
	Kind         ServiceKind `json:"kind,omitempty"`
	RequiredOnly bool        `json:"requiredOnly,omitempty"`
}

// Matches reports whether reg passes the filter. All tags must be present.
func (f ListFilter) Matches(reg ServiceRegistration) bool {
	if f.Kind != "" && reg.Kind != f.Kind {
		return false
	}
	if f.RequiredOnly && !reg.Required {
		return false
	}
	for _, tag := range f.Tags {
		if !reg.HasTag(tag) {
			return false
		}
	}
	return true
}

// RouteRequest is one tool invocation addressed to a named service.
type RouteRequest struct {
	ServiceName string                 `json:"serviceName"`
	ToolName    string                 `json:"toolName"`
	Arguments   map[string]interface{} `json:"arguments,omitempty"`
}

// RouteResponse is the uniform envelope returned to callers.
type RouteResponse struct {
	OK           bool            `json:"ok"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorKind    ErrorKind       `json:"errorKind,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// Success wraps a backend result.
func Success(result Result) RouteResponse {
	data := result.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return RouteResponse{OK: true, Result: data}
}

// Failure builds an error envelope.
func Failure(kind ErrorKind, message string) RouteResponse {
	return RouteResponse{ErrorKind: kind, ErrorMessage: message}
}

// Result is the success side of the adapter boundary: opaque JSON bytes with
// no schema assumed.
type Result struct {
	Data json.RawMessage
}

// ResultFromValue marshals v into a Result.
func ResultFromValue(v interface{}) (Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Result{}, NewProtocolError("result is not JSON encodable", err)
	}
	return Result{Data: data}, nil
}

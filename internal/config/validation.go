package config

import (
	"fmt"
	"strings"

	"switchyard/internal/api"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// Validate checks the configuration for values the components cannot run
// with. All problems are reported at once.
func (c Config) Validate() error {
	var errs ValidationErrors

	if c.Server.HTTPAddr == "" {
		errs.Add("server.httpAddr", "is required")
	}
	if c.Server.ShutdownGrace < 0 {
		errs.Add("server.shutdownGrace", "must not be negative", c.Server.ShutdownGrace)
	}
	if c.Server.MCP.Enabled {
		if !oneOf(c.Server.MCP.Transport, MCPTransportStreamableHTTP, MCPTransportStdio) {
			errs.Add("server.mcp.transport", fmt.Sprintf("must be one of: %s, %s", MCPTransportStreamableHTTP, MCPTransportStdio), c.Server.MCP.Transport)
		}
		if c.Server.MCP.Transport == MCPTransportStreamableHTTP && c.Server.MCP.Addr == "" {
			errs.Add("server.mcp.addr", "is required for streamable-http")
		}
	}

	d := c.Discovery
	if d.Interval <= 0 {
		errs.Add("discovery.interval", "must be positive", d.Interval)
	}
	if d.MissThreshold < 1 {
		errs.Add("discovery.missThreshold", "must be at least 1", d.MissThreshold)
	}
	if d.ScanTimeout <= 0 {
		errs.Add("discovery.scanTimeout", "must be positive", d.ScanTimeout)
	}
	if d.Manifest.Enabled && d.Manifest.Dir == "" {
		errs.Add("discovery.manifest.dir", "is required when the manifest scanner is enabled")
	}
	if d.Container.Enabled && !oneOf(d.Container.Runtime, "", "docker", "podman") {
		errs.Add("discovery.container.runtime", "must be one of: docker, podman", d.Container.Runtime)
	}
	seen := make(map[string]bool)
	for i, s := range d.Static {
		field := fmt.Sprintf("discovery.static[%d]", i)
		if err := s.Registration().Validate(); err != nil {
			errs.Add(field, err.Error(), s.Name)
			continue
		}
		if seen[s.Name] {
			errs.Add(field, "duplicate name "+s.Name, s.Name)
		}
		seen[s.Name] = true
	}

	h := c.Health
	if h.Interval <= 0 {
		errs.Add("health.interval", "must be positive", h.Interval)
	}
	if h.Timeout <= 0 {
		errs.Add("health.timeout", "must be positive", h.Timeout)
	}
	if h.FailureThreshold < 1 {
		errs.Add("health.failureThreshold", "must be at least 1", h.FailureThreshold)
	}
	if h.Jitter < 0 || h.Jitter >= 1 {
		errs.Add("health.jitter", "must be in [0, 1)", h.Jitter)
	}

	if c.Router.CallTimeout <= 0 {
		errs.Add("router.callTimeout", "must be positive", c.Router.CallTimeout)
	}

	if !oneOf(strings.ToLower(c.Logging.Level), "debug", "info", "warn", "warning", "error") {
		errs.Add("logging.level", "must be one of: debug, info, warn, error", c.Logging.Level)
	}
	if !oneOf(c.Logging.Format, "text", "json") {
		errs.Add("logging.format", "must be one of: text, json", c.Logging.Format)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// StaticRegistrations converts the static list into registrations.
func (d DiscoveryConfig) StaticRegistrations() []api.ServiceRegistration {
	out := make([]api.ServiceRegistration, 0, len(d.Static))
	for _, s := range d.Static {
		out = append(out, s.Registration())
	}
	return out
}

package health

import (
	"context"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/registry"
)

// Prober performs one liveness check of a registration.
type Prober interface {
	Probe(ctx context.Context, reg api.ServiceRegistration) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, reg api.ServiceRegistration) error

func (f ProberFunc) Probe(ctx context.Context, reg api.ServiceRegistration) error {
	return f(ctx, reg)
}

// Store is the part of the registry the monitor needs. The monitor is the
// only writer of health records.
type Store interface {
	Get(name string) (api.ServiceRegistration, api.HealthRecord, error)
	List(filter api.ListFilter) []api.ServiceStatus
	UpdateHealth(name string, health api.HealthRecord) error
	OnChange(l registry.ChangeListener)
}

// Config controls probe scheduling.
type Config struct {
	// Interval is the mean time between probes of one service.
	Interval time.Duration

	// Jitter spreads probes by +/- this fraction of Interval.
	Jitter float64

	// Timeout bounds a single probe.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures that turns a
	// healthy service unhealthy.
	FailureThreshold int
}

// DefaultConfig returns the default probe schedule.
func DefaultConfig() Config {
	return Config{
		Interval:         30 * time.Second,
		Jitter:           0.2,
		Timeout:          5 * time.Second,
		FailureThreshold: 3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		c.Jitter = d.Jitter
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	return c
}

// HealthTransition is published whenever a service's status changes.
type HealthTransition struct {
	Name   string           `json:"name"`
	From   api.HealthStatus `json:"from"`
	To     api.HealthStatus `json:"to"`
	Record api.HealthRecord `json:"record"`
	At     time.Time        `json:"at"`
}

// ProbeOutcome is the raw result of one probe.
type ProbeOutcome struct {
	Err      error
	Duration time.Duration
	At       time.Time
}

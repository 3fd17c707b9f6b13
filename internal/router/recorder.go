package router

import (
	"time"

	"switchyard/internal/metrics"
	"switchyard/pkg/logging"
)

// Event describes the outcome of one routed call. Events are observability
// only; they never influence health.
type Event struct {
	RequestID string
	Service   string
	Tool      string
	// Outcome is "ok" or the error kind.
	Outcome  string
	Duration time.Duration
	At       time.Time
}

// Recorder receives one Event per routed call. Implementations must not
// block.
type Recorder interface {
	Record(e Event)
}

// MetricsRecorder exports events as Prometheus metrics and debug logs.
type MetricsRecorder struct{}

func (MetricsRecorder) Record(e Event) {
	metrics.RecordRoute(e.Service, e.Outcome, e.Duration)
	logging.Debug(subsystem, "[%s] %s/%s -> %s in %s", e.RequestID, e.Service, e.Tool, e.Outcome, e.Duration)
}

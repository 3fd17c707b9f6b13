package discovery

import (
	"context"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/registry"
)

// Scanner discovers registrations from one source.
//
// Scan returns everything the source currently knows about. Returning an
// error means the source could not be read this cycle; the engine then keeps
// the registrations previously discovered from it.
type Scanner interface {
	// Name identifies the scanner in logs, ownership and the cycle summary.
	Name() string

	// Scan lists the registrations currently present in the source.
	Scan(ctx context.Context) ([]api.ServiceRegistration, error)
}

// Registry is the part of the registry store the engine writes to.
type Registry interface {
	Upsert(reg api.ServiceRegistration) (registry.UpsertResult, error)
	Get(name string) (api.ServiceRegistration, api.HealthRecord, error)
	List(filter api.ListFilter) []api.ServiceStatus
	Remove(name string) bool
}

// Config holds the engine's tuning knobs.
type Config struct {
	// Interval is the time between periodic cycles. Zero uses 60s.
	Interval time.Duration

	// MissThreshold is the number of consecutive cycles a registration may be
	// missing from its owning scanner before it is removed. Zero uses 3.
	MissThreshold int

	// ScanTimeout bounds a single scanner call. Zero uses 30s.
	ScanTimeout time.Duration
}

// CycleSummary describes the last completed discovery cycle.
type CycleSummary struct {
	Cycle      int64            `json:"cycle"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	DurationMs float64          `json:"durationMs"`
	Scanners   []ScannerSummary `json:"scanners"`
	Created    []string         `json:"created,omitempty"`
	Updated    []string         `json:"updated,omitempty"`
	Removed    []string         `json:"removed,omitempty"`
	Conflicts  []Conflict       `json:"conflicts,omitempty"`
}

// ScannerSummary is the per-scanner part of a cycle summary.
type ScannerSummary struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

// Conflict records two sources reporting the same name at different
// locations. The winner is the higher-priority scanner.
type Conflict struct {
	Name           string `json:"name"`
	Winner         string `json:"winner"`
	WinnerLocation string `json:"winnerLocation"`
	Loser          string `json:"loser"`
	LoserLocation  string `json:"loserLocation"`
}

package registry

import (
	"context"
	"errors"

	"switchyard/internal/api"
)

// ErrCorrupt is returned when the persisted registry snapshot cannot be
// decoded. It is the only registry error that halts the process.
var ErrCorrupt = errors.New("registry snapshot is corrupt")

// SourceManual marks registrations created through the register API. They
// are never owned or removed by discovery.
const SourceManual = "manual"

// UpsertResult reports what an Upsert did.
type UpsertResult int

const (
	Unchanged UpsertResult = iota
	Created
	Updated
)

func (r UpsertResult) String() string {
	switch r {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// ChangeType identifies a registration lifecycle event.
type ChangeType string

const (
	ChangeAdded   ChangeType = "added"
	ChangeUpdated ChangeType = "updated"
	ChangeRemoved ChangeType = "removed"
)

// Change describes a registration lifecycle event. Registration holds the new
// value for added/updated and the last value for removed.
type Change struct {
	Type         ChangeType
	Name         string
	Registration api.ServiceRegistration
}

// ChangeListener is called after a registration changes. Listeners run on the
// mutating goroutine after all locks are released and must not block.
type ChangeListener func(Change)

// Persister is the durable backing store of the registry. Implementations are
// only called from the registry's writer goroutine and from Open.
type Persister interface {
	// LoadAll returns every persisted record. Decode failures must wrap
	// ErrCorrupt.
	LoadAll(ctx context.Context) ([]api.ServiceStatus, error)
	Save(ctx context.Context, reg api.ServiceRegistration, health api.HealthRecord) error
	Delete(ctx context.Context, name string) error
	Close() error
}

// Pinger is implemented by persisters that can report whether their backing
// store still answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Reader is the read side of the store used by the router and the surfaces.
type Reader interface {
	Get(name string) (api.ServiceRegistration, api.HealthRecord, error)
	List(filter api.ListFilter) []api.ServiceStatus
}

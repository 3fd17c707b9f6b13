package registry

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"switchyard/internal/api"
	"switchyard/pkg/logging"

	xsync "github.com/puzpuzpuz/xsync/v4"
)

const subsystem = "Registry"

// snapshot is an immutable (registration, health) pair. Readers load it
// atomically and never take a lock.
type snapshot struct {
	reg    api.ServiceRegistration
	health api.HealthRecord
}

// entry serializes writers for one name. removed is set under mu before the
// entry leaves the map so a racing writer retries against a fresh entry.
type entry struct {
	mu      sync.Mutex
	removed bool
	snap    atomic.Pointer[snapshot]
}

// Store is the authoritative table of registrations and their health.
// Mutations serialize per name; Get and List never block on writers.
type Store struct {
	entries *xsync.Map[string, *entry]

	listenersMu sync.RWMutex
	listeners   []ChangeListener

	persist *writeBehind
	now     func() time.Time
}

// New creates an in-memory store.
func New() *Store {
	return &Store{
		entries: xsync.NewMap[string, *entry](),
		now:     time.Now,
	}
}

// Open creates a store backed by p. Persisted records are loaded first; a
// snapshot that cannot be decoded returns an error wrapping ErrCorrupt.
// Loaded health records start as unknown again so nothing is routed before
// it is probed.
func Open(ctx context.Context, p Persister) (*Store, error) {
	s := New()
	records, err := p.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	for _, rec := range records {
		if err := rec.Registration.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		health := rec.Health
		health.Status = api.HealthUnknown
		health.ConsecutiveFailures = 0
		e := &entry{}
		e.snap.Store(&snapshot{reg: rec.Registration.Normalize(), health: health})
		s.entries.Store(rec.Registration.Name, e)
	}
	logging.Info(subsystem, "Loaded %d registrations from persistent store", len(records))
	s.persist = newWriteBehind(p)
	return s, nil
}

// Close flushes pending writes and closes the persister, if any.
func (s *Store) Close() error {
	if s.persist == nil {
		return nil
	}
	return s.persist.close()
}

// Ping reports whether the persister, if any, still answers. In-memory
// stores always do.
func (s *Store) Ping(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	if p, ok := s.persist.p.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// OnChange registers a listener for registration lifecycle events.
func (s *Store) OnChange(l ChangeListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) notify(c Change) {
	s.listenersMu.RLock()
	listeners := slices.Clone(s.listeners)
	s.listenersMu.RUnlock()
	for _, l := range listeners {
		l(c)
	}
}

// Upsert inserts or updates a registration by name. New entries get an
// unknown health record. UpdatedAt only moves when the registration actually
// changed, so repeated discovery of the same backend is a no-op.
func (s *Store) Upsert(reg api.ServiceRegistration) (UpsertResult, error) {
	if err := reg.Validate(); err != nil {
		return Unchanged, err
	}
	reg = reg.Normalize().Clone()

	for {
		e, _ := s.entries.LoadOrStore(reg.Name, &entry{})

		e.mu.Lock()
		if e.removed {
			// Lost a race with Remove; the map no longer holds e.
			e.mu.Unlock()
			continue
		}

		now := s.now()
		cur := e.snap.Load()
		var (
			next   *snapshot
			result UpsertResult
		)
		switch {
		case cur == nil:
			reg.CreatedAt, reg.UpdatedAt = now, now
			next = &snapshot{reg: reg, health: api.NewHealthRecord()}
			result = Created
		case cur.reg.SameSpec(reg):
			if cur.reg.Source == reg.Source {
				e.mu.Unlock()
				return Unchanged, nil
			}
			reg.CreatedAt, reg.UpdatedAt = cur.reg.CreatedAt, cur.reg.UpdatedAt
			next = &snapshot{reg: reg, health: cur.health}
			result = Unchanged
		default:
			reg.CreatedAt, reg.UpdatedAt = cur.reg.CreatedAt, now
			next = &snapshot{reg: reg, health: cur.health}
			result = Updated
		}
		e.snap.Store(next)
		s.schedulePersist(reg.Name, next)
		e.mu.Unlock()

		switch result {
		case Created:
			s.notify(Change{Type: ChangeAdded, Name: reg.Name, Registration: reg.Clone()})
		case Updated:
			s.notify(Change{Type: ChangeUpdated, Name: reg.Name, Registration: reg.Clone()})
		}
		return result, nil
	}
}

// Get returns copies of the registration and health record for name.
func (s *Store) Get(name string) (api.ServiceRegistration, api.HealthRecord, error) {
	e, ok := s.entries.Load(name)
	if !ok {
		return api.ServiceRegistration{}, api.HealthRecord{}, api.NewServiceNotFoundError(name)
	}
	snap := e.snap.Load()
	if snap == nil {
		return api.ServiceRegistration{}, api.HealthRecord{}, api.NewServiceNotFoundError(name)
	}
	return snap.reg.Clone(), snap.health, nil
}

// Instance returns the routable view of name computed from the current
// snapshot.
func (s *Store) Instance(name string) (api.ServiceInstance, error) {
	reg, health, err := s.Get(name)
	if err != nil {
		return api.ServiceInstance{}, err
	}
	return api.ServiceInstance{Registration: reg, Health: health}, nil
}

// List returns the registrations matching filter ordered by priority
// (high first) then name.
func (s *Store) List(filter api.ListFilter) []api.ServiceStatus {
	out := make([]api.ServiceStatus, 0, s.entries.Size())
	s.entries.Range(func(_ string, e *entry) bool {
		snap := e.snap.Load()
		if snap == nil || !filter.Matches(snap.reg) {
			return true
		}
		out = append(out, api.ServiceStatus{Registration: snap.reg.Clone(), Health: snap.health})
		return true
	})
	slices.SortFunc(out, func(a, b api.ServiceStatus) int {
		if d := a.Registration.Priority.Rank() - b.Registration.Priority.Rank(); d != 0 {
			return d
		}
		return strings.Compare(a.Registration.Name, b.Registration.Name)
	})
	return out
}

// Names returns every registered name, unordered.
func (s *Store) Names() []string {
	names := make([]string, 0, s.entries.Size())
	s.entries.Range(func(name string, e *entry) bool {
		if e.snap.Load() != nil {
			names = append(names, name)
		}
		return true
	})
	return names
}

// Len returns the number of registrations.
func (s *Store) Len() int {
	return len(s.Names())
}

// Remove deletes the registration and its health record. It reports whether
// anything was removed; removing an absent name is not an error.
func (s *Store) Remove(name string) bool {
	e, ok := s.entries.Load(name)
	if !ok {
		return false
	}

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return false
	}
	e.removed = true
	last := e.snap.Load()
	if last != nil {
		// Queued before the name is freed so a later Upsert's save lands
		// after this delete.
		s.schedulePersist(name, nil)
	}
	s.entries.Delete(name)
	e.mu.Unlock()

	if last == nil {
		return false
	}
	s.notify(Change{Type: ChangeRemoved, Name: name, Registration: last.reg.Clone()})
	return true
}

// UpdateHealth atomically replaces the health record of name. Only the
// health monitor calls it.
func (s *Store) UpdateHealth(name string, health api.HealthRecord) error {
	e, ok := s.entries.Load(name)
	if !ok {
		return api.NewServiceNotFoundError(name)
	}

	e.mu.Lock()
	cur := e.snap.Load()
	if e.removed || cur == nil {
		e.mu.Unlock()
		return api.NewServiceNotFoundError(name)
	}
	next := &snapshot{reg: cur.reg, health: health}
	e.snap.Store(next)
	s.schedulePersist(name, next)
	e.mu.Unlock()

	return nil
}

// schedulePersist is called with the entry lock held so queued writes for a
// name follow the order of its mutations.
func (s *Store) schedulePersist(name string, snap *snapshot) {
	if s.persist == nil {
		return
	}
	s.persist.schedule(name, snap)
}

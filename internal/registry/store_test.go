package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"switchyard/internal/api"
)

func testReg(name string) api.ServiceRegistration {
	return api.ServiceRegistration{
		Name:     name,
		Kind:     api.KindLocalProcess,
		Location: "http://127.0.0.1:9000",
		Protocol: api.ProtocolHTTP,
		Priority: api.PriorityMedium,
	}
}

func TestUpsertCreatesUnknownHealth(t *testing.T) {
	s := New()

	res, err := s.Upsert(testReg("echo"))
	require.NoError(t, err)
	assert.Equal(t, Created, res)

	reg, health, err := s.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", reg.Name)
	assert.Equal(t, api.HealthUnknown, health.Status)
	assert.False(t, reg.CreatedAt.IsZero())
	assert.Equal(t, reg.CreatedAt, reg.UpdatedAt)
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := New()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	_, err := s.Upsert(testReg("echo"))
	require.NoError(t, err)
	first, _, _ := s.Get("echo")

	clock = clock.Add(time.Minute)
	res, err := s.Upsert(testReg("echo"))
	require.NoError(t, err)
	assert.Equal(t, Unchanged, res)

	second, _, _ := s.Get("echo")
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
	assert.Equal(t, 1, s.Len())
}

func TestUpsertUpdatesInPlaceAndKeepsHealth(t *testing.T) {
	s := New()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	_, err := s.Upsert(testReg("echo"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateHealth("echo", api.HealthRecord{Status: api.HealthHealthy}))

	clock = clock.Add(time.Minute)
	changed := testReg("echo")
	changed.Location = "http://127.0.0.1:9999"
	res, err := s.Upsert(changed)
	require.NoError(t, err)
	assert.Equal(t, Updated, res)

	reg, health, err := s.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999", reg.Location)
	assert.Equal(t, clock, reg.UpdatedAt)
	assert.True(t, reg.CreatedAt.Before(reg.UpdatedAt))
	assert.Equal(t, api.HealthHealthy, health.Status)
}

func TestUpsertRejectsInvalid(t *testing.T) {
	s := New()
	_, err := s.Upsert(api.ServiceRegistration{Name: "x"})
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestGetMissingIsNotFound(t *testing.T) {
	s := New()
	_, _, err := s.Get("nope")
	assert.True(t, api.IsNotFound(err))
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := New()
	_, err := s.Upsert(testReg("echo"))
	require.NoError(t, err)

	assert.True(t, s.Remove("echo"))
	assert.False(t, s.Remove("echo"))
	assert.False(t, s.Remove("never-existed"))

	_, _, err = s.Get("echo")
	assert.True(t, api.IsNotFound(err))
	assert.True(t, api.IsNotFound(s.UpdateHealth("echo", api.HealthRecord{Status: api.HealthHealthy})))
}

func TestListOrdersByPriorityThenName(t *testing.T) {
	s := New()
	for _, r := range []struct {
		name string
		prio api.Priority
	}{
		{"zeta", api.PriorityHigh},
		{"beta", api.PriorityLow},
		{"alpha", api.PriorityMedium},
		{"gamma", api.PriorityHigh},
		{"delta", api.PriorityMedium},
	} {
		reg := testReg(r.name)
		reg.Priority = r.prio
		_, err := s.Upsert(reg)
		require.NoError(t, err)
	}

	var names []string
	for _, st := range s.List(api.ListFilter{}) {
		names = append(names, st.Registration.Name)
	}
	assert.Equal(t, []string{"gamma", "zeta", "alpha", "delta", "beta"}, names)
}

func TestListFilters(t *testing.T) {
	s := New()
	a := testReg("a")
	a.Tags = []string{"web"}
	a.Required = true
	b := testReg("b")
	b.Kind = api.KindExternal
	b.Tags = []string{"web", "search"}
	for _, r := range []api.ServiceRegistration{a, b} {
		_, err := s.Upsert(r)
		require.NoError(t, err)
	}

	assert.Len(t, s.List(api.ListFilter{Tags: []string{"web"}}), 2)
	assert.Len(t, s.List(api.ListFilter{Tags: []string{"search"}}), 1)
	assert.Len(t, s.List(api.ListFilter{Kind: api.KindExternal}), 1)
	required := s.List(api.ListFilter{RequiredOnly: true})
	require.Len(t, required, 1)
	assert.Equal(t, "a", required[0].Registration.Name)
}

func TestGetReturnsCopies(t *testing.T) {
	s := New()
	reg := testReg("echo")
	reg.Tags = []string{"x"}
	reg.Config = map[string]interface{}{"k": "v"}
	_, err := s.Upsert(reg)
	require.NoError(t, err)

	got, _, _ := s.Get("echo")
	got.Tags[0] = "mutated"
	got.Config["k"] = "mutated"

	again, _, _ := s.Get("echo")
	assert.Equal(t, []string{"x"}, again.Tags)
	assert.Equal(t, "v", again.Config["k"])
}

func TestChangeListeners(t *testing.T) {
	s := New()
	var (
		mu      sync.Mutex
		changes []ChangeType
	)
	s.OnChange(func(c Change) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, c.Type)
	})

	_, _ = s.Upsert(testReg("echo"))
	_, _ = s.Upsert(testReg("echo"))
	moved := testReg("echo")
	moved.Location = "http://127.0.0.1:1"
	_, _ = s.Upsert(moved)
	_ = s.UpdateHealth("echo", api.HealthRecord{Status: api.HealthHealthy})
	s.Remove("echo")
	s.Remove("echo")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ChangeType{ChangeAdded, ChangeUpdated, ChangeRemoved}, changes)
}

func TestListenerMayCallStore(t *testing.T) {
	s := New()
	done := make(chan struct{})
	s.OnChange(func(c Change) {
		if c.Type == ChangeAdded {
			_, _, err := s.Get(c.Name)
			assert.NoError(t, err)
			close(done)
		}
	})
	_, err := s.Upsert(testReg("echo"))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not run")
	}
}

// Concurrent upserts, removes and health updates on overlapping names must
// leave exactly one entry per surviving name.
func TestConcurrentMutationsKeepNamesUnique(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New()
	const workers = 16
	const names = 8

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				name := fmt.Sprintf("svc-%d", (w+i)%names)
				reg := testReg(name)
				reg.Location = fmt.Sprintf("http://127.0.0.1:%d", 9000+i%3)
				switch i % 5 {
				case 0:
					s.Remove(name)
				case 1:
					_ = s.UpdateHealth(name, api.HealthRecord{Status: api.HealthHealthy})
				default:
					_, err := s.Upsert(reg)
					assert.NoError(t, err)
				}
				_, _, _ = s.Get(name)
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[string]int)
	for _, st := range s.List(api.ListFilter{}) {
		seen[st.Registration.Name]++
	}
	for name, n := range seen {
		assert.Equal(t, 1, n, "duplicate entry for %s", name)
	}
	assert.Equal(t, len(seen), s.Len())
}

// A writer holding one entry's lock must not block reads or writes of
// another name.
func TestMutationsDoNotBlockUnrelatedNames(t *testing.T) {
	s := New()
	_, err := s.Upsert(testReg("a"))
	require.NoError(t, err)
	_, err = s.Upsert(testReg("b"))
	require.NoError(t, err)

	e, ok := s.entries.Load("a")
	require.True(t, ok)
	e.mu.Lock()
	defer e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = s.Get("a")
		_ = s.UpdateHealth("b", api.HealthRecord{Status: api.HealthHealthy})
		s.List(api.ListFilter{})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("operations on other names blocked behind a held entry lock")
	}
}

type memPersister struct {
	mu      sync.Mutex
	records map[string]api.ServiceStatus
	loadErr error
	closed  bool
}

func newMemPersister() *memPersister {
	return &memPersister{records: make(map[string]api.ServiceStatus)}
}

func (m *memPersister) LoadAll(ctx context.Context) ([]api.ServiceStatus, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]api.ServiceStatus, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out, nil
}

func (m *memPersister) Save(ctx context.Context, reg api.ServiceRegistration, health api.HealthRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[reg.Name] = api.ServiceStatus{Registration: reg, Health: health}
	return nil
}

func (m *memPersister) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, name)
	return nil
}

func (m *memPersister) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func TestOpenPersistsAndReloads(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newMemPersister()
	s, err := Open(context.Background(), p)
	require.NoError(t, err)

	_, err = s.Upsert(testReg("keep"))
	require.NoError(t, err)
	_, err = s.Upsert(testReg("drop"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateHealth("keep", api.HealthRecord{Status: api.HealthHealthy, LastError: ""}))
	s.Remove("drop")
	require.NoError(t, s.Close())

	p.mu.Lock()
	assert.True(t, p.closed)
	assert.Contains(t, p.records, "keep")
	assert.NotContains(t, p.records, "drop")
	assert.Equal(t, api.HealthHealthy, p.records["keep"].Health.Status)
	p.closed = false
	p.mu.Unlock()

	reopened, err := Open(context.Background(), p)
	require.NoError(t, err)
	defer reopened.Close()

	reg, health, err := reopened.Get("keep")
	require.NoError(t, err)
	assert.Equal(t, "keep", reg.Name)
	assert.Equal(t, api.HealthUnknown, health.Status, "reloaded health must be re-probed before routing")
}

func TestRemoveIsNotUndoneByLateHealthWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newMemPersister()
	s, err := Open(context.Background(), p)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		name := fmt.Sprintf("svc-%d", i)
		_, err := s.Upsert(testReg(name))
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = s.UpdateHealth(name, api.HealthRecord{Status: api.HealthHealthy})
			}
		}()
		go func() {
			defer wg.Done()
			s.Remove(name)
		}()
		wg.Wait()
	}
	require.NoError(t, s.Close())

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Empty(t, p.records, "a removed service must not be persisted again")
}

type pingPersister struct {
	*memPersister
	err error
}

func (p pingPersister) Ping(ctx context.Context) error { return p.err }

func TestPing(t *testing.T) {
	assert.NoError(t, New().Ping(context.Background()), "in-memory store")

	s, err := Open(context.Background(), newMemPersister())
	require.NoError(t, err)
	assert.NoError(t, s.Ping(context.Background()), "persister without Ping")
	require.NoError(t, s.Close())

	down := pingPersister{memPersister: newMemPersister(), err: errors.New("disk I/O error")}
	s, err = Open(context.Background(), down)
	require.NoError(t, err)
	defer s.Close()
	assert.EqualError(t, s.Ping(context.Background()), "disk I/O error")
}

func TestOpenCorruptSnapshot(t *testing.T) {
	p := newMemPersister()
	p.loadErr = fmt.Errorf("%w: bad json in row echo", ErrCorrupt)

	_, err := Open(context.Background(), p)
	assert.ErrorIs(t, err, ErrCorrupt)

	p = newMemPersister()
	p.records["bad"] = api.ServiceStatus{Registration: api.ServiceRegistration{Name: "bad"}}
	_, err = Open(context.Background(), p)
	assert.ErrorIs(t, err, ErrCorrupt)
}

package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"switchyard/internal/api"
	"switchyard/internal/discovery/manifest"
	"switchyard/internal/registry"
)

// fakeScanner returns whatever regs/err currently hold.
type fakeScanner struct {
	name string

	mu    sync.Mutex
	regs  []api.ServiceRegistration
	err   error
	panic bool
	block chan struct{}
	calls atomic.Int32
}

func (f *fakeScanner) Name() string { return f.name }

func (f *fakeScanner) Scan(ctx context.Context) ([]api.ServiceRegistration, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic {
		panic("scanner exploded")
	}
	out := make([]api.ServiceRegistration, len(f.regs))
	copy(out, f.regs)
	return out, f.err
}

func (f *fakeScanner) set(regs []api.ServiceRegistration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs = regs
	f.err = err
}

func reg(name, location string) api.ServiceRegistration {
	return api.ServiceRegistration{
		Name:     name,
		Kind:     api.KindLocalProcess,
		Location: location,
		Protocol: api.ProtocolHTTP,
	}
}

func trigger(t *testing.T, e *Engine) CycleSummary {
	t.Helper()
	summary, err := e.Trigger(context.Background())
	require.NoError(t, err)
	return summary
}

func TestDiscoveryIsIdempotent(t *testing.T) {
	store := registry.New()
	sc := &fakeScanner{name: "manifest", regs: []api.ServiceRegistration{reg("echo", "http://127.0.0.1:9000")}}
	e := NewEngine(store, []Scanner{sc}, Config{})

	first := trigger(t, e)
	assert.Equal(t, []string{"echo"}, first.Created)
	before, _, err := store.Get("echo")
	require.NoError(t, err)

	second := trigger(t, e)
	assert.Empty(t, second.Created)
	assert.Empty(t, second.Updated)

	after, _, err := store.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, "manifest", after.Source)
}

func TestRemovalAfterMissThreshold(t *testing.T) {
	store := registry.New()
	sc := &fakeScanner{name: "manifest", regs: []api.ServiceRegistration{reg("echo", "http://x")}}
	e := NewEngine(store, []Scanner{sc}, Config{MissThreshold: 3})

	trigger(t, e)
	sc.set(nil, nil)

	trigger(t, e)
	trigger(t, e)
	_, _, err := store.Get("echo")
	require.NoError(t, err, "must survive two missed cycles")

	summary := trigger(t, e)
	assert.Equal(t, []string{"echo"}, summary.Removed)
	_, _, err = store.Get("echo")
	assert.True(t, api.IsNotFound(err))
}

func TestReappearingResetsMisses(t *testing.T) {
	store := registry.New()
	sc := &fakeScanner{name: "manifest", regs: []api.ServiceRegistration{reg("echo", "http://x")}}
	e := NewEngine(store, []Scanner{sc}, Config{MissThreshold: 2})

	trigger(t, e)
	sc.set(nil, nil)
	trigger(t, e)
	sc.set([]api.ServiceRegistration{reg("echo", "http://x")}, nil)
	trigger(t, e)
	sc.set(nil, nil)
	trigger(t, e)

	_, _, err := store.Get("echo")
	assert.NoError(t, err)
}

func TestFailingScannerKeepsItsRegistrations(t *testing.T) {
	store := registry.New()
	broken := &fakeScanner{name: "container", regs: []api.ServiceRegistration{reg("boxed", "http://box")}}
	healthy := &fakeScanner{name: "static", regs: []api.ServiceRegistration{reg("ext", "http://ext")}}
	e := NewEngine(store, []Scanner{broken, healthy}, Config{MissThreshold: 1})

	trigger(t, e)
	broken.set(nil, errors.New("daemon down"))

	for i := 0; i < 3; i++ {
		summary := trigger(t, e)
		require.Len(t, summary.Scanners, 2)
		assert.Contains(t, summary.Scanners[0].Error, "daemon down")
		assert.Empty(t, summary.Scanners[1].Error)
		assert.Empty(t, summary.Removed)
	}

	_, _, err := store.Get("boxed")
	assert.NoError(t, err)
	_, _, err = store.Get("ext")
	assert.NoError(t, err)
}

func TestPanickingScannerDoesNotFailCycle(t *testing.T) {
	store := registry.New()
	bad := &fakeScanner{name: "container", panic: true}
	good := &fakeScanner{name: "static", regs: []api.ServiceRegistration{reg("ext", "http://ext")}}
	e := NewEngine(store, []Scanner{bad, good}, Config{})

	summary := trigger(t, e)
	assert.Contains(t, summary.Scanners[0].Error, "panicked")
	assert.Equal(t, []string{"ext"}, summary.Created)
}

func TestConflictResolvedByScannerPriority(t *testing.T) {
	store := registry.New()
	high := &fakeScanner{name: "manifest", regs: []api.ServiceRegistration{reg("echo", "http://manifest")}}
	low := &fakeScanner{name: "static", regs: []api.ServiceRegistration{reg("echo", "http://static")}}
	e := NewEngine(store, []Scanner{high, low}, Config{})

	summary := trigger(t, e)
	require.Len(t, summary.Conflicts, 1)
	assert.Equal(t, Conflict{
		Name:           "echo",
		Winner:         "manifest",
		WinnerLocation: "http://manifest",
		Loser:          "static",
		LoserLocation:  "http://static",
	}, summary.Conflicts[0])

	got, _, err := store.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "http://manifest", got.Location)

	// When the manifest stops reporting it, the static entry takes over
	// without a removal.
	high.set(nil, nil)
	summary = trigger(t, e)
	assert.Equal(t, []string{"echo"}, summary.Updated)
	got, _, _ = store.Get("echo")
	assert.Equal(t, "http://static", got.Location)
	assert.Equal(t, "static", got.Source)
}

func TestManualRegistrationsAreNotTouched(t *testing.T) {
	store := registry.New()
	manual := reg("echo", "http://manual")
	manual.Source = registry.SourceManual
	_, err := store.Upsert(manual)
	require.NoError(t, err)

	sc := &fakeScanner{name: "manifest", regs: []api.ServiceRegistration{reg("echo", "http://manifest")}}
	e := NewEngine(store, []Scanner{sc}, Config{MissThreshold: 1})
	trigger(t, e)

	got, _, err := store.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "http://manual", got.Location)

	sc.set(nil, nil)
	trigger(t, e)
	trigger(t, e)
	_, _, err = store.Get("echo")
	assert.NoError(t, err, "manual registrations are never removed by miss tracking")
}

func TestAdoptsPersistedRegistrations(t *testing.T) {
	store := registry.New()
	persisted := reg("old", "http://old")
	persisted.Source = "manifest"
	_, err := store.Upsert(persisted)
	require.NoError(t, err)

	sc := &fakeScanner{name: "manifest"}
	e := NewEngine(store, []Scanner{sc}, Config{MissThreshold: 1})
	e.adoptExisting()

	summary := trigger(t, e)
	assert.Equal(t, []string{"old"}, summary.Removed)
}

func TestConcurrentTriggersShareOneCycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := registry.New()
	sc := &fakeScanner{name: "manifest", block: make(chan struct{})}
	e := NewEngine(store, []Scanner{sc}, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Trigger(context.Background())
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return sc.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(sc.block)
	wg.Wait()

	assert.Equal(t, int32(1), sc.calls.Load())
	last, ok := e.Last()
	require.True(t, ok)
	assert.Equal(t, int64(1), last.Cycle)
}

func TestTriggerHonoursCallerContext(t *testing.T) {
	store := registry.New()
	sc := &fakeScanner{name: "manifest", block: make(chan struct{})}
	e := NewEngine(store, []Scanner{sc}, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Trigger(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(sc.block)
	require.Eventually(t, func() bool {
		_, ok := e.Last()
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := registry.New()
	sc := &fakeScanner{name: "static", regs: []api.ServiceRegistration{reg("ext", "http://ext")}}
	e := NewEngine(store, []Scanner{sc}, Config{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sc.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	_, _, err := store.Get("ext")
	assert.NoError(t, err)
}

// A service named in two manifest files and also reported by the container
// scanner ends up as one entry at the first manifest's location.
func TestDuplicateManifestNameEndToEnd(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	write("10-echo.yaml", "name: echo\nlocation: http://127.0.0.1:7001\nprotocol: http\n")
	write("20-echo.yaml", "name: echo\nlocation: http://127.0.0.1:7002\nprotocol: http\n")

	containers := &fakeScanner{name: "container", regs: []api.ServiceRegistration{
		{Name: "echo", Kind: api.KindContainerized, Location: "http://127.0.0.1:32768", Protocol: api.ProtocolHTTP},
	}}

	store := registry.New()
	e := NewEngine(store, []Scanner{manifest.NewScanner(dir), containers}, Config{})
	summary := trigger(t, e)

	statuses := store.List(api.ListFilter{})
	require.Len(t, statuses, 1)
	assert.Equal(t, "echo", statuses[0].Registration.Name)
	assert.Equal(t, "http://127.0.0.1:7001", statuses[0].Registration.Location)
	assert.Equal(t, api.KindLocalProcess, statuses[0].Registration.Kind)
	require.Len(t, summary.Conflicts, 1)
	assert.Equal(t, "container", summary.Conflicts[0].Loser)
}

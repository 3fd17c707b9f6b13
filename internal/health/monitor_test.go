package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"switchyard/internal/api"
	"switchyard/internal/registry"
)

// fakeProber answers per service; unknown services succeed.
type fakeProber struct {
	mu      sync.Mutex
	answers map[string]func(ctx context.Context) error
	calls   map[string]*atomic.Int32
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		answers: make(map[string]func(ctx context.Context) error),
		calls:   make(map[string]*atomic.Int32),
	}
}

func (f *fakeProber) set(name string, answer func(ctx context.Context) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[name] = answer
}

func (f *fakeProber) count(name string) int32 {
	f.mu.Lock()
	c, ok := f.calls[name]
	f.mu.Unlock()
	if !ok {
		return 0
	}
	return c.Load()
}

func (f *fakeProber) Probe(ctx context.Context, reg api.ServiceRegistration) error {
	f.mu.Lock()
	c, ok := f.calls[reg.Name]
	if !ok {
		c = &atomic.Int32{}
		f.calls[reg.Name] = c
	}
	answer := f.answers[reg.Name]
	f.mu.Unlock()

	c.Add(1)
	if answer == nil {
		return nil
	}
	return answer(ctx)
}

func fail(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func register(t *testing.T, s *registry.Store, name string) {
	t.Helper()
	_, err := s.Upsert(api.ServiceRegistration{
		Name:     name,
		Kind:     api.KindLocalProcess,
		Location: "http://127.0.0.1:9",
		Protocol: api.ProtocolHTTP,
	})
	require.NoError(t, err)
}

func status(t *testing.T, s *registry.Store, name string) api.HealthRecord {
	t.Helper()
	_, h, err := s.Get(name)
	require.NoError(t, err)
	return h
}

func TestFailuresAreDebounced(t *testing.T) {
	store := registry.New()
	register(t, store, "echo")
	prober := newFakeProber()
	m := NewMonitor(store, prober, Config{FailureThreshold: 3})
	ctx := context.Background()

	rec, err := m.ProbeNow(ctx, "echo")
	require.NoError(t, err)
	require.Equal(t, api.HealthHealthy, rec.Status)

	prober.set("echo", fail(api.NewTimeoutError("probe", nil)))
	for i := 1; i <= 2; i++ {
		rec, err = m.ProbeNow(ctx, "echo")
		require.NoError(t, err)
		assert.Equal(t, api.HealthHealthy, rec.Status, "failure %d must not flip status", i)
		assert.Equal(t, i, rec.ConsecutiveFailures)
	}

	rec, err = m.ProbeNow(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, api.HealthUnhealthy, rec.Status)
	assert.Equal(t, 3, rec.ConsecutiveFailures)
	assert.Equal(t, "timeout", rec.LastError)
	assert.Equal(t, rec, status(t, store, "echo"))
}

func TestSingleSuccessRecovers(t *testing.T) {
	store := registry.New()
	register(t, store, "echo")
	prober := newFakeProber()
	prober.set("echo", fail(api.NewBackendError("503", 503, nil)))
	m := NewMonitor(store, prober, Config{})

	rec, err := m.ProbeNow(context.Background(), "echo")
	require.NoError(t, err)
	assert.Equal(t, api.HealthUnhealthy, rec.Status, "unknown goes straight to unhealthy")
	assert.Equal(t, "application-error", rec.LastError)

	prober.set("echo", nil)
	rec, err = m.ProbeNow(context.Background(), "echo")
	require.NoError(t, err)
	assert.Equal(t, api.HealthHealthy, rec.Status)
	assert.Zero(t, rec.ConsecutiveFailures)
	assert.Empty(t, rec.LastError)
}

func TestProbeNowUnknownService(t *testing.T) {
	m := NewMonitor(registry.New(), newFakeProber(), Config{})
	_, err := m.ProbeNow(context.Background(), "ghost")
	assert.True(t, api.IsNotFound(err))
}

func TestProbeTimeoutIgnoringContext(t *testing.T) {
	store := registry.New()
	register(t, store, "stuck")
	release := make(chan struct{})
	defer close(release)

	prober := newFakeProber()
	prober.set("stuck", func(context.Context) error {
		<-release
		return nil
	})
	m := NewMonitor(store, prober, Config{Timeout: 30 * time.Millisecond})

	start := time.Now()
	rec, err := m.ProbeNow(context.Background(), "stuck")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, api.HealthUnhealthy, rec.Status)
	assert.Equal(t, "timeout", rec.LastError)
}

func TestPanickingProbeIsRecorded(t *testing.T) {
	store := registry.New()
	register(t, store, "boom")
	prober := newFakeProber()
	prober.set("boom", func(context.Context) error { panic("kaboom") })
	m := NewMonitor(store, prober, Config{})

	rec, err := m.ProbeNow(context.Background(), "boom")
	require.NoError(t, err)
	assert.Equal(t, api.HealthUnhealthy, rec.Status)
	assert.Equal(t, "protocol-error", rec.LastError)
}

// A hanging probe of one service never delays probes of another.
func TestProbesAreIsolated(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := registry.New()
	register(t, store, "a")
	register(t, store, "b")

	prober := newFakeProber()
	prober.set("a", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	m := NewMonitor(store, prober, Config{Interval: 10 * time.Millisecond, Timeout: 2 * time.Second})
	m.Start(context.Background())
	defer m.Stop()

	first := time.Time{}
	require.Eventually(t, func() bool {
		h := status(t, store, "b")
		if first.IsZero() {
			first = h.LastCheckedAt
			return false
		}
		return prober.count("b") >= 4 && h.LastCheckedAt.After(first)
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(1), prober.count("a"), "a is still inside its first probe")
	assert.Equal(t, api.HealthUnknown, status(t, store, "a").Status)
	assert.Equal(t, api.HealthHealthy, status(t, store, "b").Status)
}

func TestLoopsFollowRegistry(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := registry.New()
	register(t, store, "existing")
	prober := newFakeProber()
	m := NewMonitor(store, prober, Config{Interval: time.Hour})
	m.Start(context.Background())
	defer m.Stop()

	assert.Equal(t, 1, m.Running())
	require.Eventually(t, func() bool { return prober.count("existing") == 1 }, time.Second, 5*time.Millisecond)

	register(t, store, "late")
	assert.Equal(t, 2, m.Running())
	require.Eventually(t, func() bool {
		return status(t, store, "late").Status == api.HealthHealthy
	}, time.Second, 5*time.Millisecond)

	// A changed registration is probed again right away.
	_, err := store.Upsert(api.ServiceRegistration{
		Name:     "late",
		Kind:     api.KindLocalProcess,
		Location: "http://127.0.0.1:10",
		Protocol: api.ProtocolHTTP,
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return prober.count("late") == 2 }, time.Second, 5*time.Millisecond)

	store.Remove("late")
	assert.Equal(t, 1, m.Running(), "removal stops the loop before Remove returns")
}

func TestTransitionsArePublished(t *testing.T) {
	store := registry.New()
	register(t, store, "echo")
	prober := newFakeProber()
	m := NewMonitor(store, prober, Config{})

	events, cancel := m.Subscribe()
	defer cancel()

	_, err := m.ProbeNow(context.Background(), "echo")
	require.NoError(t, err)
	_, err = m.ProbeNow(context.Background(), "echo")
	require.NoError(t, err)
	prober.set("echo", fail(errors.New("bad frame")))
	_, err = m.ProbeNow(context.Background(), "echo")
	require.NoError(t, err)

	first := <-events
	assert.Equal(t, api.HealthUnknown, first.From)
	assert.Equal(t, api.HealthHealthy, first.To)
	select {
	case e := <-events:
		t.Fatalf("unexpected transition %+v while still within the failure threshold", e)
	default:
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	store := registry.New()
	register(t, store, "flappy")
	prober := newFakeProber()
	m := NewMonitor(store, prober, Config{FailureThreshold: 1})
	_, cancel := m.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3*subscriberBuffer; i++ {
			if i%2 == 0 {
				prober.set("flappy", nil)
			} else {
				prober.set("flappy", fail(errors.New("down")))
			}
			_, _ = m.ProbeNow(context.Background(), "flappy")
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("probing blocked on a full subscriber")
	}
}

func TestNextDelayJitter(t *testing.T) {
	m := NewMonitor(registry.New(), newFakeProber(), Config{Interval: 10 * time.Second, Jitter: 0.2})

	m.random = func() float64 { return 0 }
	assert.Equal(t, 8*time.Second, m.nextDelay())
	m.random = func() float64 { return 0.5 }
	assert.Equal(t, 10*time.Second, m.nextDelay())
	m.random = func() float64 { return 0.999999999 }
	assert.InDelta(t, float64(12*time.Second), float64(m.nextDelay()), float64(time.Millisecond))
}

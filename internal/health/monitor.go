package health

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"switchyard/internal/api"
	"switchyard/internal/metrics"
	"switchyard/internal/registry"
	"switchyard/pkg/logging"
)

const (
	subsystem = "HealthMonitor"

	subscriberBuffer = 64
)

// probeLoop is the supervisor's handle on one service's probe goroutine.
type probeLoop struct {
	cancel context.CancelFunc
	kick   chan struct{}
	done   chan struct{}
}

// Monitor probes every registered service on its own schedule and writes the
// resulting health records back to the registry.
//
// Each service has a dedicated goroutine, so a hanging or panicking probe
// only ever delays that service. Loops follow the registry: they start when
// a registration appears and stop when it is removed.
type Monitor struct {
	store  Store
	prober Prober
	config Config

	// locks serializes record updates per service between the loop and
	// ProbeNow.
	locks *xsync.Map[string, *sync.Mutex]

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	loops   map[string]*probeLoop
	started bool

	subsMu sync.RWMutex
	subs   map[chan HealthTransition]struct{}

	now    func() time.Time
	random func() float64
}

// NewMonitor creates a monitor. Zero config values take their defaults.
func NewMonitor(store Store, prober Prober, config Config) *Monitor {
	return &Monitor{
		store:  store,
		prober: prober,
		config: config.withDefaults(),
		locks:  xsync.NewMap[string, *sync.Mutex](),
		loops:  make(map[string]*probeLoop),
		subs:   make(map[chan HealthTransition]struct{}),
		now:    time.Now,
		random: rand.Float64,
	}
}

// Config returns the effective configuration.
func (m *Monitor) Config() Config {
	return m.config
}

// Start begins probing every registered service and follows registry
// changes until ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.store.OnChange(func(c registry.Change) {
		m.sync(c.Name, c.Type == registry.ChangeUpdated)
	})

	statuses := m.store.List(api.ListFilter{})
	for _, st := range statuses {
		m.sync(st.Registration.Name, false)
	}
	logging.Info(subsystem, "Health monitor started for %d services (interval %s, timeout %s, threshold %d)",
		len(statuses), m.config.Interval, m.config.Timeout, m.config.FailureThreshold)
}

// Stop cancels every probe loop and waits for them to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started || m.cancel == nil {
		m.mu.Unlock()
		return
	}
	m.cancel()
	loops := m.loops
	m.loops = make(map[string]*probeLoop)
	m.mu.Unlock()

	for _, l := range loops {
		<-l.done
	}

	m.subsMu.Lock()
	for ch := range m.subs {
		close(ch)
		delete(m.subs, ch)
	}
	m.subsMu.Unlock()
	logging.Info(subsystem, "Health monitor stopped")
}

// Running returns the number of services with an active probe loop.
func (m *Monitor) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loops)
}

// sync makes the loop set match the registry for name. It is driven by
// change notifications, which may arrive out of order, so the registry is
// always re-read rather than trusting the event.
func (m *Monitor) sync(name string, changed bool) {
	m.mu.Lock()
	if m.ctx == nil || m.ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	_, _, err := m.store.Get(name)
	present := err == nil
	loop, running := m.loops[name]

	switch {
	case present && !running:
		loop = m.startLoopLocked(name)
		m.mu.Unlock()
		logging.Debug(subsystem, "Started probing %s", name)

	case present && running:
		m.mu.Unlock()
		if changed {
			// Probe the new location right away.
			select {
			case loop.kick <- struct{}{}:
			default:
			}
		}

	case !present && running:
		delete(m.loops, name)
		m.mu.Unlock()
		loop.cancel()
		<-loop.done
		m.locks.Delete(name)
		metrics.ForgetService(name)
		logging.Debug(subsystem, "Stopped probing %s", name)

	default:
		m.mu.Unlock()
	}
}

func (m *Monitor) startLoopLocked(name string) *probeLoop {
	ctx, cancel := context.WithCancel(m.ctx)
	loop := &probeLoop{
		cancel: cancel,
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	m.loops[name] = loop
	go m.run(ctx, name, loop)
	return loop
}

// run probes name immediately, then once per jittered interval.
func (m *Monitor) run(ctx context.Context, name string, loop *probeLoop) {
	defer close(loop.done)

	for {
		m.probe(ctx, name)

		timer := time.NewTimer(m.nextDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-loop.kick:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// nextDelay returns Interval spread by +/- Jitter.
func (m *Monitor) nextDelay() time.Duration {
	spread := m.config.Jitter * (2*m.random() - 1)
	return time.Duration(float64(m.config.Interval) * (1 + spread))
}

// ProbeNow probes name immediately and returns the resulting record.
func (m *Monitor) ProbeNow(ctx context.Context, name string) (api.HealthRecord, error) {
	if _, _, err := m.store.Get(name); err != nil {
		return api.HealthRecord{}, err
	}
	rec, ok := m.probe(ctx, name)
	if !ok {
		if ctx.Err() != nil {
			return api.HealthRecord{}, ctx.Err()
		}
		_, cur, err := m.store.Get(name)
		return cur, err
	}
	return rec, nil
}

// probe runs one probe of name and applies the result. It returns false
// when nothing was recorded because the service went away or ctx ended.
func (m *Monitor) probe(ctx context.Context, name string) (api.HealthRecord, bool) {
	reg, _, err := m.store.Get(name)
	if err != nil {
		return api.HealthRecord{}, false
	}

	start := m.now()
	probeErr := m.runProbe(ctx, reg)
	elapsed := m.now().Sub(start)
	if ctx.Err() != nil && !api.IsTimeout(probeErr) {
		// Cancelled, not failed.
		return api.HealthRecord{}, false
	}

	result := "success"
	if probeErr != nil {
		result = string(api.ProbeFailureKind(probeErr))
	}
	metrics.RecordProbe(name, result, elapsed)

	lock, _ := m.locks.LoadOrStore(name, &sync.Mutex{})
	lock.Lock()
	_, prev, err := m.store.Get(name)
	if err != nil {
		lock.Unlock()
		return api.HealthRecord{}, false
	}
	next := Next(prev, ProbeOutcome{Err: probeErr, Duration: elapsed, At: m.now()}, m.config.FailureThreshold)
	err = m.store.UpdateHealth(name, next)
	lock.Unlock()
	if err != nil {
		return api.HealthRecord{}, false
	}

	metrics.SetHealthStatus(name, string(next.Status))
	if probeErr != nil {
		logging.Debug(subsystem, "Probe of %s failed (%s, %d consecutive): %v", name, next.LastError, next.ConsecutiveFailures, probeErr)
	}
	if prev.Status != next.Status {
		m.publish(HealthTransition{Name: name, From: prev.Status, To: next.Status, Record: next, At: next.LastCheckedAt})
	}
	return next, true
}

// runProbe bounds a probe by the configured timeout and converts a panic into
// a protocol error. A probe that ignores its context is abandoned at the
// deadline.
func (m *Monitor) runProbe(ctx context.Context, reg api.ServiceRegistration) error {
	pctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Error(subsystem, fmt.Errorf("%v", r), "Probe of %s panicked: %s", reg.Name, debug.Stack())
				errCh <- api.NewProtocolError(fmt.Sprintf("probe panicked: %v", r), nil)
			}
		}()
		errCh <- m.prober.Probe(pctx, reg)
	}()

	select {
	case err := <-errCh:
		if err == nil && pctx.Err() == context.DeadlineExceeded {
			return api.NewTimeoutError("probe", pctx.Err())
		}
		return err
	case <-pctx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return api.NewTimeoutError("probe", pctx.Err())
	}
}

// Subscribe returns a channel receiving every status transition and a
// function that ends the subscription. Events are dropped when the channel
// is full, so a slow subscriber never delays probing.
func (m *Monitor) Subscribe() (<-chan HealthTransition, func()) {
	ch := make(chan HealthTransition, subscriberBuffer)
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()

	return ch, func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
	}
}

func (m *Monitor) publish(t HealthTransition) {
	switch t.To {
	case api.HealthUnhealthy:
		logging.Warn(subsystem, "%s is now unhealthy (%s)", t.Name, t.Record.LastError)
	case api.HealthHealthy:
		logging.Info(subsystem, "%s is now healthy (%.1fms)", t.Name, t.Record.LastResponseTimeMs)
	}

	m.subsMu.RLock()
	defer m.subsMu.RUnlock()
	for ch := range m.subs {
		select {
		case ch <- t:
		default:
			logging.Debug(subsystem, "Dropping transition of %s for a slow subscriber", t.Name)
		}
	}
}

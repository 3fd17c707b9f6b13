package discovery

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"switchyard/internal/api"
	"switchyard/internal/metrics"
	"switchyard/internal/registry"
	"switchyard/pkg/logging"
)

const subsystem = "Discovery"

// ownership tracks which scanner produced a registration and for how many
// consecutive cycles that scanner has not reported it.
type ownership struct {
	scanner string
	misses  int
}

// scanResult is the outcome of one scanner in one cycle.
type scanResult struct {
	scanner string
	regs    []api.ServiceRegistration
	err     error
}

// Engine runs discovery cycles and reconciles their results into the
// registry.
//
// Scanners are given in priority order: when two scanners report the same
// name, the one listed first wins.
type Engine struct {
	store    Registry
	scanners []Scanner
	config   Config

	group singleflight.Group

	// cycleMu serializes cycles; owners is only touched while holding it.
	cycleMu sync.Mutex
	owners  map[string]*ownership

	mu      sync.RWMutex
	baseCtx context.Context
	last    *CycleSummary
	cycles  int64
}

// NewEngine creates a discovery engine. Defaults are applied to zero config
// values.
func NewEngine(store Registry, scanners []Scanner, config Config) *Engine {
	if config.Interval == 0 {
		config.Interval = 60 * time.Second
	}
	if config.MissThreshold == 0 {
		config.MissThreshold = 3
	}
	if config.ScanTimeout == 0 {
		config.ScanTimeout = 30 * time.Second
	}

	return &Engine{
		store:    store,
		scanners: scanners,
		config:   config,
		owners:   make(map[string]*ownership),
	}
}

// Scanners returns the configured scanner names in priority order.
func (e *Engine) Scanners() []string {
	names := make([]string, len(e.scanners))
	for i, s := range e.scanners {
		names[i] = s.Name()
	}
	return names
}

// Run performs a cycle immediately and then one per interval until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	e.baseCtx = ctx
	e.mu.Unlock()

	e.adoptExisting()

	logging.Info(subsystem, "Starting discovery with %d scanners %v, interval %s", len(e.scanners), e.Scanners(), e.config.Interval)

	if _, err := e.Trigger(ctx); err != nil && ctx.Err() == nil {
		logging.Error(subsystem, err, "Initial discovery cycle failed")
	}

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info(subsystem, "Discovery stopped")
			return
		case <-ticker.C:
			if _, err := e.Trigger(ctx); err != nil && ctx.Err() == nil {
				logging.Error(subsystem, err, "Periodic discovery cycle failed")
			}
		}
	}
}

// Trigger runs a discovery cycle now. Concurrent triggers share a single
// cycle. The cycle itself runs on the engine's context, so a caller giving up
// early does not abort it for the others.
func (e *Engine) Trigger(ctx context.Context) (CycleSummary, error) {
	ch := e.group.DoChan("cycle", func() (interface{}, error) {
		return e.runCycle(e.baseContext()), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return CycleSummary{}, res.Err
		}
		return res.Val.(CycleSummary), nil
	case <-ctx.Done():
		return CycleSummary{}, ctx.Err()
	}
}

// Last returns the summary of the most recent cycle, if any.
func (e *Engine) Last() (CycleSummary, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return CycleSummary{}, false
	}
	return *e.last, true
}

func (e *Engine) baseContext() context.Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.baseCtx == nil {
		return context.Background()
	}
	return e.baseCtx
}

// adoptExisting takes ownership of registrations loaded from persistence so
// they are subject to miss tracking like freshly discovered ones.
func (e *Engine) adoptExisting() {
	known := make(map[string]bool, len(e.scanners))
	for _, s := range e.scanners {
		known[s.Name()] = true
	}

	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	for _, st := range e.store.List(api.ListFilter{}) {
		src := st.Registration.Source
		if !known[src] {
			continue
		}
		if _, ok := e.owners[st.Registration.Name]; !ok {
			e.owners[st.Registration.Name] = &ownership{scanner: src}
		}
	}
}

// runCycle scans every source concurrently and reconciles the merged result.
func (e *Engine) runCycle(ctx context.Context) CycleSummary {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	start := time.Now()
	results := e.scanAll(ctx)

	summary := CycleSummary{StartedAt: start}
	failed := make(map[string]bool)
	for _, r := range results {
		ss := ScannerSummary{Name: r.scanner, Count: len(r.regs)}
		if r.err != nil {
			failed[r.scanner] = true
			ss.Error = r.err.Error()
			logging.Warn(subsystem, "%v", r.err)
		}
		metrics.RecordScan(r.scanner, len(r.regs), r.err)
		summary.Scanners = append(summary.Scanners, ss)
	}

	winners, conflicts := merge(results)
	summary.Conflicts = conflicts
	for _, c := range conflicts {
		logging.Warn(subsystem, "Conflict for %s: %s reports %s, %s reports %s; keeping %s",
			c.Name, c.Winner, c.WinnerLocation, c.Loser, c.LoserLocation, c.Winner)
	}

	e.apply(winners, &summary)
	e.trackMisses(winners, failed, &summary)

	summary.FinishedAt = time.Now()
	summary.DurationMs = float64(summary.FinishedAt.Sub(start).Microseconds()) / 1000

	metrics.RecordDiscoveryCycle(summary.FinishedAt.Sub(start))
	metrics.RecordDiscoveryChange("created", len(summary.Created))
	metrics.RecordDiscoveryChange("updated", len(summary.Updated))
	metrics.RecordDiscoveryChange("removed", len(summary.Removed))
	metrics.RecordDiscoveryChange("conflict", len(summary.Conflicts))

	e.mu.Lock()
	e.cycles++
	summary.Cycle = e.cycles
	e.last = &summary
	e.mu.Unlock()

	logging.Info(subsystem, "Cycle %d finished in %.1fms: %d discovered, %d created, %d updated, %d removed, %d failed scanners",
		summary.Cycle, summary.DurationMs, len(winners), len(summary.Created), len(summary.Updated), len(summary.Removed), len(failed))
	return summary
}

// scanAll runs every scanner in its own goroutine. A failing or panicking
// scanner yields an error result and never affects the others.
func (e *Engine) scanAll(ctx context.Context) []scanResult {
	results := make([]scanResult, len(e.scanners))

	var g errgroup.Group
	for i, s := range e.scanners {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, e.config.ScanTimeout)
			defer cancel()

			regs, err := safeScan(sctx, s)
			if err != nil {
				err = api.NewDiscoverySourceError(s.Name(), err)
				regs = nil
			}
			results[i] = scanResult{scanner: s.Name(), regs: regs, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func safeScan(ctx context.Context, s Scanner) (regs []api.ServiceRegistration, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error(subsystem, fmt.Errorf("%v", r), "Scanner %s panicked: %s", s.Name(), debug.Stack())
			err = fmt.Errorf("scanner panicked: %v", r)
		}
	}()
	return s.Scan(ctx)
}

// merge collapses the scan results into one registration per name. Results
// are in scanner priority order, so the first scanner to report a name wins.
func merge(results []scanResult) (map[string]api.ServiceRegistration, []Conflict) {
	winners := make(map[string]api.ServiceRegistration)
	var conflicts []Conflict

	for _, r := range results {
		for _, reg := range r.regs {
			reg.Source = r.scanner
			if err := reg.Validate(); err != nil {
				logging.Warn(subsystem, "Skipping invalid registration from %s: %v", r.scanner, err)
				continue
			}
			existing, ok := winners[reg.Name]
			if !ok {
				winners[reg.Name] = reg
				continue
			}
			if existing.Location != reg.Location {
				conflicts = append(conflicts, Conflict{
					Name:           reg.Name,
					Winner:         existing.Source,
					WinnerLocation: existing.Location,
					Loser:          reg.Source,
					LoserLocation:  reg.Location,
				})
			}
		}
	}
	return winners, conflicts
}

// apply upserts every winning registration and records ownership.
// Registrations created through the register API are left alone.
func (e *Engine) apply(winners map[string]api.ServiceRegistration, summary *CycleSummary) {
	names := make([]string, 0, len(winners))
	for name := range winners {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		reg := winners[name]
		if cur, _, err := e.store.Get(name); err == nil && cur.Source == registry.SourceManual {
			logging.Debug(subsystem, "Keeping manual registration %s over %s", name, reg.Source)
			delete(e.owners, name)
			continue
		}

		result, err := e.store.Upsert(reg)
		if err != nil {
			logging.Error(subsystem, err, "Failed to upsert %s from %s", name, reg.Source)
			continue
		}
		e.owners[name] = &ownership{scanner: reg.Source}

		switch result {
		case registry.Created:
			summary.Created = append(summary.Created, name)
			logging.Info(subsystem, "Discovered %s (%s at %s) via %s", name, reg.Protocol, reg.Location, reg.Source)
		case registry.Updated:
			summary.Updated = append(summary.Updated, name)
			logging.Info(subsystem, "Updated %s via %s", name, reg.Source)
		}
	}
}

// trackMisses counts a miss for every owned registration its scanner did not
// report. Misses are not counted against a scanner that failed this cycle.
func (e *Engine) trackMisses(winners map[string]api.ServiceRegistration, failed map[string]bool, summary *CycleSummary) {
	for name, own := range e.owners {
		if _, seen := winners[name]; seen {
			continue
		}
		if failed[own.scanner] {
			continue
		}

		own.misses++
		if own.misses < e.config.MissThreshold {
			logging.Debug(subsystem, "%s missing from %s (%d/%d)", name, own.scanner, own.misses, e.config.MissThreshold)
			continue
		}

		delete(e.owners, name)
		cur, _, err := e.store.Get(name)
		if err != nil || cur.Source != own.scanner {
			// Already gone, or taken over by a manual registration.
			continue
		}
		if e.store.Remove(name) {
			summary.Removed = append(summary.Removed, name)
			logging.Info(subsystem, "Removed %s after %d missed cycles of %s", name, own.misses, own.scanner)
		}
	}
	slices.Sort(summary.Removed)
}

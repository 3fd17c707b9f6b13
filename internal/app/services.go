package app

import (
	"context"
	"fmt"

	"switchyard/internal/adapter"
	"switchyard/internal/api"
	"switchyard/internal/config"
	"switchyard/internal/containerizer"
	"switchyard/internal/discovery"
	"switchyard/internal/discovery/container"
	"switchyard/internal/discovery/kubernetes"
	"switchyard/internal/discovery/manifest"
	"switchyard/internal/discovery/static"
	"switchyard/internal/health"
	"switchyard/internal/mcpclient"
	"switchyard/internal/registry"
	"switchyard/internal/router"
	"switchyard/internal/server"
	"switchyard/internal/storage/sqlite"
	"switchyard/pkg/logging"
)

// Services holds every initialized component. Components are built in
// dependency order:
//  1. Registry store (optionally backed by sqlite)
//  2. Scanners and the discovery engine (plus the manifest watcher)
//  3. MCP client pool and protocol adapters
//  4. Health monitor and router
//  5. Inbound HTTP and MCP servers
type Services struct {
	Registry  *registry.Store
	Discovery *discovery.Engine

	// Watcher is nil unless manifest watching is enabled.
	Watcher *manifest.Watcher

	Pool     *mcpclient.Pool
	Adapters *adapter.Set
	Monitor  *health.Monitor
	Router   *router.Router
	Server   *server.Server
}

// InitializeServices builds the component graph from cfg. Nothing is started.
func InitializeServices(ctx context.Context, cfg *Config) (*Services, error) {
	sc := cfg.SwitchyardConfig

	store, err := openRegistry(ctx, sc.Storage)
	if err != nil {
		return nil, err
	}

	scanners, err := buildScanners(sc.Discovery)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	engine := discovery.NewEngine(store, scanners, discovery.Config{
		Interval:      sc.Discovery.Interval,
		MissThreshold: sc.Discovery.MissThreshold,
		ScanTimeout:   sc.Discovery.ScanTimeout,
	})

	var watcher *manifest.Watcher
	if sc.Discovery.Manifest.Enabled && sc.Discovery.Manifest.Watch {
		watcher = manifest.NewWatcher(sc.Discovery.Manifest.Dir, sc.Discovery.Manifest.Debounce, func(ctx context.Context) {
			if _, err := engine.Trigger(ctx); err != nil && ctx.Err() == nil {
				logging.Error("Services", err, "Manifest-triggered discovery failed")
			}
		})
	}

	pool := mcpclient.NewPool(nil)
	adapters := adapter.NewSet(pool, nil)

	// Registered before the monitor's listener so a stale client is gone
	// before the probe kicked by the same change.
	store.OnChange(func(c registry.Change) {
		if c.Type == registry.ChangeRemoved {
			adapters.Forget(c.Name)
			return
		}
		adapters.Refresh(c.Registration)
	})

	monitor := health.NewMonitor(store, adapters, health.Config{
		Interval:         sc.Health.Interval,
		Jitter:           sc.Health.Jitter,
		Timeout:          sc.Health.Timeout,
		FailureThreshold: sc.Health.FailureThreshold,
	})

	rt := router.New(store, adapters, router.Config{CallTimeout: sc.Router.CallTimeout})

	srv := server.New(server.Deps{
		Registry:  store,
		Router:    rt,
		Discovery: engine,
		Prober:    monitor,
	}, server.Options{
		HTTPAddr:          sc.Server.HTTPAddr,
		MCP:               sc.Server.MCP,
		Version:           cfg.Version,
		DiscoveryInterval: sc.Discovery.Interval,
	})

	return &Services{
		Registry:  store,
		Discovery: engine,
		Watcher:   watcher,
		Pool:      pool,
		Adapters:  adapters,
		Monitor:   monitor,
		Router:    rt,
		Server:    srv,
	}, nil
}

func openRegistry(ctx context.Context, sc config.StorageConfig) (*registry.Store, error) {
	if sc.SQLitePath == "" {
		logging.Info("Services", "Registry persistence disabled")
		return registry.New(), nil
	}

	db, err := sqlite.NewDB(sc.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	store, err := registry.Open(ctx, sqlite.NewStore(db))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logging.Info("Services", "Registry persisted to %s", sc.SQLitePath)
	return store, nil
}

// buildScanners returns the enabled scanners in priority order: manifest,
// container, kubernetes, static. Earlier scanners win name conflicts.
func buildScanners(dc config.DiscoveryConfig) ([]discovery.Scanner, error) {
	var scanners []discovery.Scanner

	if dc.Manifest.Enabled {
		scanners = append(scanners, manifest.NewScanner(dc.Manifest.Dir))
	}

	if dc.Container.Enabled {
		runtime, err := containerizer.NewContainerRuntime(dc.Container.Runtime)
		if err != nil {
			return nil, fmt.Errorf("failed to create container runtime: %w", err)
		}
		binary := dc.Container.Runtime
		if binary == "" {
			binary = string(containerizer.RuntimeTypeDocker)
		}
		scanners = append(scanners, container.NewScanner(runtime, dc.Container.NamePrefix, dc.Container.Host, binary))
	}

	if dc.Kubernetes.Enabled {
		restConfig, err := kubernetes.GetRestConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to get kubernetes config: %w", err)
		}
		scanner, err := kubernetes.NewScanner(restConfig, dc.Kubernetes.Namespace)
		if err != nil {
			return nil, fmt.Errorf("failed to create kubernetes scanner: %w", err)
		}
		if err := scanner.SetLabelSelector(dc.Kubernetes.LabelSelector); err != nil {
			return nil, err
		}
		scanners = append(scanners, scanner)
	}

	if regs := dc.StaticRegistrations(); len(regs) > 0 {
		scanners = append(scanners, static.NewScanner(regs))
	}

	if len(scanners) == 0 {
		logging.Warn("Services", "No discovery sources enabled; only manual registrations will be served")
	}
	return scanners, nil
}

// logTransitions logs health transitions until the subscription closes.
// Losing a required service is logged as a warning.
func logTransitions(store registry.Reader, transitions <-chan health.HealthTransition) {
	for t := range transitions {
		switch {
		case t.To == api.HealthUnhealthy:
			if reg, _, err := store.Get(t.Name); err == nil && reg.Required {
				logging.Warn("Failover", "Required service %s is no longer routable (%s)", t.Name, t.Record.LastError)
				continue
			}
			logging.Info("Failover", "Service %s is no longer routable (%s)", t.Name, t.Record.LastError)
		case t.To == api.HealthHealthy && t.From == api.HealthUnhealthy:
			logging.Info("Failover", "Service %s recovered", t.Name)
		}
	}
}

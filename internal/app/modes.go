package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"switchyard/pkg/logging"
)

// run starts every component, notifies systemd once the listeners are bound
// and blocks until ctx is cancelled or SIGINT/SIGTERM arrives.
//
// Shutdown order:
//  1. Stop accepting requests (HTTP and MCP servers), bounded by grace
//  2. Stop the manifest watcher and the discovery loop
//  3. Stop probe loops
//  4. Close pooled backend clients and flush the registry
func run(ctx context.Context, grace time.Duration, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Components run on their own context so a signal does not cut off
	// in-flight requests before the grace period.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	transitions, unsubscribe := services.Monitor.Subscribe()
	defer unsubscribe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logTransitions(services.Registry, transitions)
	}()

	services.Monitor.Start(runCtx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		services.Discovery.Run(runCtx)
	}()

	var startErr error
	if services.Watcher != nil {
		if err := services.Watcher.Start(runCtx); err != nil {
			// Periodic discovery still picks up manifest changes.
			logging.Warn("CLI", "Manifest watcher disabled: %v", err)
			services.Watcher = nil
		}
	}
	if err := services.Server.Start(runCtx); err != nil {
		startErr = fmt.Errorf("failed to start server: %w", err)
		logging.Error("CLI", err, "Failed to start server")
	} else {
		notify(daemon.SdNotifyReady)
		logging.Info("CLI", "switchyard is running. Press Ctrl+C to stop.")
		<-ctx.Done()
		logging.Info("CLI", "--- Shutting down ---")
	}

	notify(daemon.SdNotifyStopping)
	return errors.Join(startErr, shutdown(grace, cancel, &wg, services))
}

func shutdown(grace time.Duration, cancel context.CancelFunc, wg *sync.WaitGroup, services *Services) error {
	if grace <= 0 {
		grace = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), grace)
	defer shutdownCancel()

	var errs []error
	if err := services.Server.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if services.Watcher != nil {
		if err := services.Watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("manifest watcher: %w", err))
		}
		services.Watcher.Wait()
	}

	cancel()
	services.Monitor.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		errs = append(errs, fmt.Errorf("background loops did not stop within %s", grace))
	}

	if err := services.Pool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing backend clients: %w", err))
	}
	if err := services.Registry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing registry: %w", err))
	}
	logging.Info("CLI", "Shutdown complete")
	return errors.Join(errs...)
}

// notify is a no-op when not running under systemd.
func notify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		logging.Debug("CLI", "sd_notify %q failed: %v", state, err)
	}
}

package manifest

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"switchyard/pkg/logging"
)

// TriggerFunc starts a discovery cycle.
type TriggerFunc func(ctx context.Context)

// Watcher triggers discovery when descriptor files in a directory change.
//
// Bursts of events (editors write, rename and chmod in quick succession) are
// collapsed into a single trigger once the directory has been quiet for the
// debounce interval.
type Watcher struct {
	mu sync.Mutex

	// dir is the watched manifest directory
	dir string

	// debounceInterval is how long to wait for additional changes
	debounceInterval time.Duration

	// trigger is called once per debounced burst
	trigger TriggerFunc

	// watcher is the fsnotify watcher instance
	watcher *fsnotify.Watcher

	// timer is the pending debounced trigger, if any
	timer *time.Timer

	done    chan struct{}
	running bool
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, debounceInterval time.Duration, trigger TriggerFunc) *Watcher {
	if debounceInterval == 0 {
		debounceInterval = 500 * time.Millisecond
	}
	return &Watcher{
		dir:              dir,
		debounceInterval: debounceInterval,
		trigger:          trigger,
	}
}

// Start begins watching. The directory is created if it does not exist.
// Watching stops when ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.watcher = watcher
	w.done = make(chan struct{})
	w.running = true

	go w.processEvents(ctx, watcher, w.done)

	logging.Info(subsystem, "Watching %s for manifest changes", w.dir)
	return nil
}

// processEvents handles filesystem events until the watcher is closed.
func (w *Watcher) processEvents(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !IsManifestFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logging.Debug(subsystem, "Manifest change: %s %s", event.Op, event.Name)
			w.debounce(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error(subsystem, err, "Filesystem watcher error")
		}
	}
}

// debounce (re)arms the pending trigger.
func (w *Watcher) debounce(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounceInterval, func() {
		w.mu.Lock()
		w.timer = nil
		running := w.running
		w.mu.Unlock()

		if running && ctx.Err() == nil {
			logging.Info(subsystem, "Manifest directory changed, triggering discovery")
			w.trigger(ctx)
		}
	})
}

// Stop stops watching and cancels any pending trigger.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	watcher := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	if err := watcher.Close(); err != nil {
		logging.Error(subsystem, err, "Error closing filesystem watcher")
		return err
	}
	return nil
}

// Wait blocks until the event loop has exited.
func (w *Watcher) Wait() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

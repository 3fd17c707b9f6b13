package registry

import (
	"context"
	"sync"
	"time"

	"switchyard/pkg/logging"
)

const persistTimeout = 5 * time.Second

// writeBehind coalesces registry mutations per name and applies them on a
// single writer goroutine, so no registry lock is ever held across I/O. A
// nil snapshot means delete.
type writeBehind struct {
	p Persister

	mu      sync.Mutex
	pending map[string]*snapshot
	closed  bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newWriteBehind(p Persister) *writeBehind {
	w := &writeBehind{
		p:       p,
		pending: make(map[string]*snapshot),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writeBehind) schedule(name string, snap *snapshot) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.pending[name] = snap
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writeBehind) run() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.flush()
		case <-w.stop:
			w.flush()
			return
		}
	}
}

func (w *writeBehind) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]*snapshot)
	w.mu.Unlock()

	for name, snap := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		var err error
		if snap == nil {
			err = w.p.Delete(ctx, name)
		} else {
			err = w.p.Save(ctx, snap.reg, snap.health)
		}
		cancel()
		if err != nil {
			logging.Error(subsystem, err, "Failed to persist registration %s", name)
		}
	}
}

// close drains pending writes, stops the writer and closes the persister.
func (w *writeBehind) close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stop)
	<-w.done
	return w.p.Close()
}

// Package filesentry watches directory trees and delivers a coalesced,
// debounced stream of file-level change events to subscribers, built from
// a kernel-notification ingestor, an in-memory tree mirror, a pending-change
// queue, and an event debouncer.
package filesentry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mutagen-io/filesentry/internal/logging"
)

// Watcher is the library's external facade (spec.md §6.1). Callers only
// ever touch this type; everything else is internal machinery running on
// the two long-lived goroutines described in spec.md §5.
type Watcher struct {
	id     string
	logger *logging.Logger

	config  *config
	pending *pendingChangesLock
	ingest  *ingestor
	work    *worker

	shuttingDown atomic.Bool
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// New creates a Watcher and spawns its ingestor goroutine. Call Start to
// spawn the worker goroutine once handlers and roots have been configured,
// matching the teacher's construct-then-start pattern for long-lived
// background services (e.g. cmd/mutagen daemon startup).
func New() (*Watcher, error) {
	id := uuid.NewString()
	logger := logging.RootLogger.Sublogger(id)

	cfg := newConfig()
	pending := newPendingChangesLock()

	in, err := newIngestor(logger.Sublogger("ingestor"))
	if err != nil {
		return nil, errors.Wrap(err, "create kernel notification backend")
	}

	w := &Watcher{
		id:      id,
		logger:  logger,
		config:  cfg,
		pending: pending,
		ingest:  in,
	}

	w.work = newWorker(cfg, pending, in, logger, w.isShuttingDown)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		in.run(cfg, pending, w.isShuttingDown)
	}()

	return w, nil
}

func (w *Watcher) isShuttingDown() bool { return w.shuttingDown.Load() }

// Start spawns the worker goroutine (spec.md §4.5). Must be called exactly
// once, after the caller has registered its initial handlers/roots (though
// both can also be added afterward; each takes effect on the next loop
// iteration).
func (w *Watcher) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.work.run()
	}()
}

// AddRoot begins watching path, recursively if requested. The path is
// canonicalized by the caller (spec.md §6.1 assumes an already-absolute,
// symlink-resolved path; see CanonicalPath). If the active filter rejects
// the path or any of its ancestors, AddRoot logs and invokes onCrawled with
// a nil error without ever touching the kernel (spec.md §6.1, tested by
// the "Filter reject root" scenario in §8). onCrawled may be nil.
func (w *Watcher) AddRoot(path CanonicalPath, recursive bool, onCrawled func(error)) {
	filter := w.config.snapshotFilter()
	isDir := true
	if IgnorePathRec(filter, path, &isDir) {
		w.logger.Infof("root %s is ignored by filter; not watching", path)
		if onCrawled != nil {
			onCrawled(nil)
		}
		return
	}
	w.work.requestRoot(path, recursive, onCrawled)
}

// SetFilter swaps the active ignore filter. If recrawl is true, every
// watched root is fully reconciled against the new filter on the next
// worker iteration (spec.md §6.1).
func (w *Watcher) SetFilter(filter Filter, recrawl bool) {
	w.config.setFilter(filter)
	if recrawl {
		w.pending.setRecrawl()
	}
}

// SetSettleTime updates the debounce interval (default 200ms).
func (w *Watcher) SetSettleTime(d time.Duration) {
	w.config.setSettleTime(d)
}

// SetEmitTempfile controls whether a Create+Delete collapse within one
// settle window is reported as Tempfile instead of being dropped silently
// (spec.md §3.6/§9 Open Question, resolved in SPEC_FULL.md).
func (w *Watcher) SetEmitTempfile(v bool) {
	w.config.setEmitTempfile(v)
}

// AddHandler appends a handler; each handler is called with every settled
// batch until it returns false (spec.md §6.1).
func (w *Watcher) AddHandler(h Handler) {
	w.config.addHandler(h)
}

// RecrawlCount reports how many full recrawls have been triggered over the
// Watcher's lifetime (kernel queue overflow or watch invalidation).
func (w *Watcher) RecrawlCount() int64 {
	return w.work.RecrawlCount()
}

// Shutdown requests that both the ingestor and worker goroutines exit, and
// blocks until they do (spec.md §5's cancellation policy). Safe to call
// more than once; only the first call has effect.
func (w *Watcher) Shutdown() {
	w.shutdownOnce.Do(func() {
		w.shuttingDown.Store(true)
		if err := w.ingest.wake(); err != nil {
			w.logger.Warnf("failed to wake ingestor during shutdown: %v", err)
		}
		w.pending.notify()
		w.wg.Wait()
	})
}

// ShutdownGuard returns a closer that triggers Shutdown when closed
// (or when the process calls it via defer), the Go equivalent of the
// original's RAII shutdown guard (spec.md §5/§9): a careless drop of the
// Watcher value itself doesn't stop the background goroutines in Go (there
// are no destructors), so callers that want "shutdown when this scope
// exits" should defer the returned closer explicitly.
func (w *Watcher) ShutdownGuard() func() {
	var once sync.Once
	return func() {
		once.Do(w.Shutdown)
	}
}

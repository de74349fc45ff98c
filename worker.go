package filesentry

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/mutagen-io/filesentry/internal/logging"
)

// rootRequest is a control notification asking the worker to start watching
// a new root, per spec.md §4.5 step 3.
type rootRequest struct {
	path      CanonicalPath
	recursive bool
	onCrawled func(error)
}

// worker owns the FileTree and the debouncer exclusively (spec.md §5: "the
// file tree is not shared; it is mutated only by the worker thread") and
// runs the six-step loop of spec.md §4.5.
type worker struct {
	tree      *FileTree
	debouncer *eventDebouncer
	config    *config
	pending   *pendingChangesLock
	ingestor  interface {
		addWatch(CanonicalPath) error
	}

	rootsMu    sync.Mutex
	roots      []nodeID
	rootOrder  CanonicalPathSlice // kept in lockstep with roots, sorted
	recrawls   atomic.Int64
	shutdownFn func() bool

	requestsMu sync.Mutex
	requests   []rootRequest

	logger *logging.Logger
}

func newWorker(cfg *config, pending *pendingChangesLock, in interface {
	addWatch(CanonicalPath) error
}, logger *logging.Logger, shutdown func() bool) *worker {
	return &worker{
		tree:       NewFileTree(logger.Sublogger("tree")),
		debouncer:  newEventDebouncer(cfg.snapshotEmitTempfile(), logger.Sublogger("debouncer")),
		config:     cfg,
		pending:    pending,
		ingestor:   in,
		shutdownFn: shutdown,
		logger:     logger.Sublogger("worker"),
	}
}

// RecrawlCount reports how many times a full recrawl has been triggered
// (kernel queue overflow or watch invalidation), exposed for the testable
// property in spec.md §8 ("the number of observed recrawl counter
// increments is >= 1").
func (w *worker) RecrawlCount() int64 { return w.recrawls.Load() }

// requestRoot enqueues an add-root control notification and wakes the
// worker, per spec.md §6.1.
func (w *worker) requestRoot(path CanonicalPath, recursive bool, onCrawled func(error)) {
	w.requestsMu.Lock()
	w.requests = append(w.requests, rootRequest{path: path, recursive: recursive, onCrawled: onCrawled})
	w.requestsMu.Unlock()
	w.pending.signalControl()
}

func (w *worker) takeRequests() []rootRequest {
	w.requestsMu.Lock()
	defer w.requestsMu.Unlock()
	reqs := w.requests
	w.requests = nil
	return reqs
}

// run executes the worker loop of spec.md §4.5 until shutdown.
func (w *worker) run() {
	var buf pendingChanges
	for {
		var settled bool
		if w.debouncer.isEmpty() {
			// Nothing accumulated yet to settle: block indefinitely rather
			// than waking up on a timer with nothing to show for it
			// (spec.md §4.5 step 1).
			w.pending.take(&buf, w.shutdownFn)
		} else {
			settled = w.pending.takeTimeout(&buf, w.config.snapshotSettleTime(), w.shutdownFn)
		}

		if w.shutdownFn() {
			return
		}

		// Pick up any Watcher.SetEmitTempfile call made since the last pass.
		w.debouncer.emitTempfile = w.config.snapshotEmitTempfile()

		w.processRootRequests()

		if settled {
			if !w.debouncer.isEmpty() {
				w.config.dispatch(w.debouncer.take())
			}
			continue
		}

		if buf.takeRecrawl() {
			w.recrawls.Add(1)
			filter := w.config.snapshotFilter()
			w.rootsMu.Lock()
			roots := append([]nodeID(nil), w.roots...)
			w.rootsMu.Unlock()
			for _, root := range roots {
				w.tree.Crawl(root, filter, w.debouncer.add, w.ingestor.addWatch)
			}
			continue
		}

		filter := w.config.snapshotFilter()
		w.tree.ApplyTransaction(&buf, filter, w.debouncer.add, w.ingestor.addWatch)
	}
}

// processRootRequests implements spec.md §4.5 step 3.
func (w *worker) processRootRequests() {
	for _, req := range w.takeRequests() {
		id, ok := w.tree.AddRoot(req.path, req.recursive)
		if !ok {
			if req.onCrawled != nil {
				req.onCrawled(errors.Errorf("filesentry: could not add root %s", req.path))
			}
			continue
		}
		if err := w.ingestor.addWatch(req.path); err != nil {
			w.logger.Errorf("failed to watch root %s: %v", req.path, err)
		}
		filter := w.config.snapshotFilter()
		w.tree.CrawlInitial(id, req.recursive, filter, w.ingestor.addWatch)

		w.insertRoot(id, req.path, req.recursive)

		if req.onCrawled != nil {
			req.onCrawled(nil)
		}
	}
}

// insertRoot inserts id into the sorted root list, evicting any descendant
// roots when the new root is recursive (spec.md §4.5 step 3).
func (w *worker) insertRoot(id nodeID, path CanonicalPath, recursive bool) {
	w.rootsMu.Lock()
	defer w.rootsMu.Unlock()

	for _, existing := range w.rootOrder {
		if existing.Equal(path) {
			// Already tracked as a root (tree.AddRoot was an idempotent
			// recursive upgrade); nothing to insert.
			return
		}
	}

	if recursive {
		kept := w.roots[:0]
		keptPaths := w.rootOrder[:0]
		for i, existing := range w.roots {
			if path.IsParentOf(w.rootOrder[i]) {
				continue
			}
			kept = append(kept, existing)
			keptPaths = append(keptPaths, w.rootOrder[i])
		}
		w.roots = kept
		w.rootOrder = keptPaths
	}

	w.roots = append(w.roots, id)
	w.rootOrder = append(w.rootOrder, path)
	sort.Sort(rootsByPath{&w.roots, w.rootOrder})
}

// rootsByPath sorts the parallel roots/rootOrder slices together by path.
type rootsByPath struct {
	ids   *[]nodeID
	paths CanonicalPathSlice
}

func (r rootsByPath) Len() int { return len(r.paths) }
func (r rootsByPath) Less(i, j int) bool {
	return r.paths[i].Less(r.paths[j])
}
func (r rootsByPath) Swap(i, j int) {
	(*r.ids)[i], (*r.ids)[j] = (*r.ids)[j], (*r.ids)[i]
	r.paths[i], r.paths[j] = r.paths[j], r.paths[i]
}

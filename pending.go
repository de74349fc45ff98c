package filesentry

import (
	"sort"
	"sync"
	"time"
)

// PendingFlags annotate a PendingChange with the work the tree needs to do
// for it, per spec.md §3.5.
type PendingFlags uint8

const (
	// FlagNeedsRecursiveCrawl requests a recursive directory crawl rooted at
	// the change's path.
	FlagNeedsRecursiveCrawl PendingFlags = 1 << iota
	// FlagNeedsNonRecursiveCrawl requests a stat-only, single-level refresh
	// (used by watchers, e.g. FSEvents-style backends, that can only report
	// that *something* changed within a directory).
	FlagNeedsNonRecursiveCrawl
	// FlagMarkRecursive marks the node (and anything discovered under it
	// during the triggered crawl) as belonging to a recursive watch.
	FlagMarkRecursive
	// FlagOriginWatcher indicates the change was reported by the kernel
	// notification ingestor rather than synthesized by a crawl. It disables
	// the "no observable change" elision in apply_change (spec.md §4.3.3).
	FlagOriginWatcher
)

// Has reports whether all bits in other are set in f.
func (f PendingFlags) Has(other PendingFlags) bool { return f&other == other }

// PendingChange is one path with pending work, as produced by the ingestor
// or by a crawl.
type PendingChange struct {
	Path  CanonicalPath
	Flags PendingFlags
}

// consolidate ORs new flags into an existing entry. ORIGIN_WATCHER is
// stripped from the incoming flags: a change is only "origin watcher" the
// first time it's observed, per spec.md §3.5.
func (c *PendingChange) consolidate(new PendingFlags) {
	c.Flags |= new &^ FlagOriginWatcher
}

// pendingChanges is the deduplicated, path-keyed set of outstanding changes,
// plus the sticky recrawl bit (spec.md §3.5, §4.2). It is not itself
// goroutine-safe; synchronization is provided by pendingChangesLock.
type pendingChanges struct {
	byPath  map[string]int
	changes []PendingChange
	recrawl bool
}

func newPendingChanges() *pendingChanges {
	return &pendingChanges{byPath: make(map[string]int, 128)}
}

// isEmpty reports whether there is no pending work: an empty change set and
// no sticky recrawl request.
func (p *pendingChanges) isEmpty() bool {
	return len(p.changes) == 0 && !p.recrawl
}

// setRecrawl sets the sticky recrawl bit and empties the change set: once
// set, a full resync from scratch supersedes any per-path bookkeeping.
func (p *pendingChanges) setRecrawl() {
	p.byPath = make(map[string]int, 128)
	p.changes = p.changes[:0]
	p.recrawl = true
}

// takeRecrawl reads and clears the sticky recrawl bit.
func (p *pendingChanges) takeRecrawl() bool {
	r := p.recrawl
	p.recrawl = false
	return r
}

// add merges a change in, OR-ing flags if the path is already pending. A
// no-op while the sticky recrawl bit is set (spec.md §4.2).
func (p *pendingChanges) add(change PendingChange) {
	if p.recrawl {
		return
	}
	if p.byPath == nil {
		p.byPath = make(map[string]int, 128)
	}
	key := change.Path.String()
	if i, ok := p.byPath[key]; ok {
		p.changes[i].consolidate(change.Flags)
		return
	}
	p.byPath[key] = len(p.changes)
	p.changes = append(p.changes, change)
}

// addWatcher records a change originating from the kernel ingestor.
func (p *pendingChanges) addWatcher(path CanonicalPath, flags PendingFlags) {
	p.add(PendingChange{Path: path, Flags: flags | FlagOriginWatcher})
}

// drain sorts the pending changes by path (parents before children) and
// returns them, emptying the set. Callers exploit the sort to skip
// descendants of a path that was just recursively crawled (spec.md §4.3.2).
func (p *pendingChanges) drain() []PendingChange {
	p.byPath = make(map[string]int, 128)
	sort.Sort(pendingChangeSlice(p.changes))
	drained := p.changes
	p.changes = nil
	return drained
}

type pendingChangeSlice []PendingChange

func (s pendingChangeSlice) Len() int           { return len(s) }
func (s pendingChangeSlice) Less(i, j int) bool { return s[i].Path.Less(s[j].Path) }
func (s pendingChangeSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// pendingChangesLock is a thread-safe wrapper around pendingChanges with a
// condition variable, matching spec.md §4.2's take/take_timeout semantics.
type pendingChangesLock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	inner   *pendingChanges
	control bool
}

func newPendingChangesLock() *pendingChangesLock {
	l := &pendingChangesLock{inner: newPendingChanges()}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// addWatcher adds a kernel-originated change and wakes any waiter.
func (l *pendingChangesLock) addWatcher(path CanonicalPath, flags PendingFlags) {
	l.mu.Lock()
	l.inner.addWatcher(path, flags)
	l.mu.Unlock()
	l.cond.Broadcast()
}

// setRecrawl sets the sticky recrawl bit and wakes any waiter.
func (l *pendingChangesLock) setRecrawl() {
	l.mu.Lock()
	l.inner.setRecrawl()
	l.mu.Unlock()
	l.cond.Broadcast()
}

// notify wakes any waiter without mutating state. Only useful when the
// waiter's own exit condition (e.g. shutdown) has already flipped, since a
// bare broadcast doesn't change take/takeTimeout's wait condition.
func (l *pendingChangesLock) notify() {
	l.cond.Broadcast()
}

// signalControl wakes any waiter for a reason take/takeTimeout can't see in
// the pending-changes queue itself: a root request sitting in the worker's
// separate requests list. Unlike notify, this flips a flag the wait loop
// checks, so a waiter with nothing queued still returns promptly.
func (l *pendingChangesLock) signalControl() {
	l.mu.Lock()
	l.control = true
	l.mu.Unlock()
	l.cond.Broadcast()
}

// take blocks until the queue is non-empty, a control signal arrives, or
// exit() becomes true, then atomically swaps the internal queue into dst so
// the lock is released before downstream work begins.
func (l *pendingChangesLock) take(dst *pendingChanges, exit func() bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.inner.isEmpty() && !l.control && !exit() {
		l.cond.Wait()
	}
	l.control = false
	*l.inner, *dst = *dst, *l.inner
}

// takeTimeout blocks until the queue is non-empty, a control signal
// arrives, or exit() becomes true (returning false), or until timeout
// elapses without further changes (returning true: the tree has settled).
// Like take, it atomically swaps the internal queue into dst.
func (l *pendingChangesLock) takeTimeout(dst *pendingChanges, timeout time.Duration, exit func() bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for l.inner.isEmpty() && !l.control && !exit() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		woken := make(chan struct{})
		timer := time.AfterFunc(remaining, func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			close(woken)
			l.cond.Broadcast()
		})
		l.cond.Wait()
		timer.Stop()
		select {
		case <-woken:
			if l.inner.isEmpty() && !l.control && !exit() {
				return true
			}
		default:
		}
	}
	l.control = false
	*l.inner, *dst = *dst, *l.inner
	return false
}

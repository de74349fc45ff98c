package filesentry

import (
	"sync"
	"time"
)

// defaultSettleTime is the debounce window used until Watcher.SetSettleTime
// is called, per spec.md §4.5 step 1.
const defaultSettleTime = 200 * time.Millisecond

// Handler receives one settled batch of events. Returning false requests
// removal from the handler list (spec.md §6.1).
type Handler func(Events) bool

// config holds everything a running Watcher can reconfigure at runtime:
// the active filter, the settle interval, and the handler list. It is
// guarded by a single mutex, matching spec.md §5's "Configuration ... held
// under a single mutex" shared-resource policy. The ingestor takes a fresh
// snapshot of the filter before each batch of kernel events it reads rather
// than holding the lock across event processing.
type config struct {
	mu         sync.Mutex
	filter     Filter
	settleTime time.Duration
	handlers   []Handler
	// emitTempfile controls whether a Create+Delete collapse within one
	// settle window is reported as Tempfile rather than silently dropped
	// (spec.md §3.6, Open Question resolved in SPEC_FULL.md).
	emitTempfile bool
}

func newConfig() *config {
	return &config{
		filter:     DefaultFilter{},
		settleTime: defaultSettleTime,
	}
}

func (c *config) setFilter(f Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = f
}

// snapshotFilter returns the active filter without holding the lock across
// the caller's subsequent work.
func (c *config) snapshotFilter() Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

func (c *config) setSettleTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settleTime = d
}

func (c *config) snapshotSettleTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settleTime
}

func (c *config) setEmitTempfile(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitTempfile = v
}

func (c *config) snapshotEmitTempfile() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emitTempfile
}

func (c *config) addHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// dispatch invokes every handler with the batch, in registration order,
// retaining only those that ask to continue (spec.md §4.5 step 4).
func (c *config) dispatch(events Events) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.handlers[:0]
	for _, h := range c.handlers {
		if h(events) {
			kept = append(kept, h)
		}
	}
	c.handlers = kept
}

package filesentry

// EventKind identifies the semantic change that happened to a path.
type EventKind uint8

const (
	// EventCreate indicates that a path came into existence.
	EventCreate EventKind = iota
	// EventDelete indicates that a path ceased to exist.
	EventDelete
	// EventModified indicates that an existing file's contents changed.
	EventModified
	// EventTempfile indicates a Create+Delete pair that collapsed within a
	// single settle window, when the consumer has opted into tempfile
	// signaling via Watcher.SetEmitTempfile. See spec.md §3.6.
	EventTempfile
)

// String renders the event kind the way the CLI prints it.
func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "CREATE"
	case EventDelete:
		return "DELETE"
	case EventModified:
		return "MODIFIED"
	case EventTempfile:
		return "TEMPFILE"
	default:
		return "UNKNOWN"
	}
}

// Event is a single coalesced, settled change for one path.
type Event struct {
	Path CanonicalPath
	Kind EventKind
}

// Events is an immutable batch of events handed to handlers. Handlers share
// the underlying slice, so none of them may mutate it.
type Events struct {
	events []Event
}

// Len returns the number of events in the batch.
func (e Events) Len() int { return len(e.events) }

// At returns the event at index i.
func (e Events) At(i int) Event { return e.events[i] }

// All returns the events as a read-only slice. Callers must not mutate it.
func (e Events) All() []Event { return e.events }

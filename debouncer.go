package filesentry

import (
	"github.com/mutagen-io/filesentry/internal/logging"
)

// eventDebouncer merges same-path events into a single final kind before
// dispatch, per spec.md §3.6 and §4.4. It holds at most one Event per path.
type eventDebouncer struct {
	byPath       map[string]int // path -> index into events
	events       []Event
	emitTempfile bool
	logger       *logging.Logger
}

func newEventDebouncer(emitTempfile bool, logger *logging.Logger) *eventDebouncer {
	return &eventDebouncer{
		byPath:       make(map[string]int, 128),
		events:       make([]Event, 0, 8),
		emitTempfile: emitTempfile,
		logger:       logger,
	}
}

// add merges an incoming event kind for path into the table, applying the
// transition table from spec.md §3.6:
//
//	prior \ incoming   Create     Delete            Modified
//	(none)             Create     Delete            Modified
//	Create             --         drop (or Tempfile) Create
//	Modified           Create*    Delete            Modified
//	Delete             Modified   --                Delete
//
// '*' Create after Modified shouldn't occur in a correct stream; it's
// logged and the prior entry is kept, per spec.md §9.
func (d *eventDebouncer) add(path CanonicalPath, kind EventKind) {
	key := path.String()
	i, ok := d.byPath[key]
	if !ok {
		d.byPath[key] = len(d.events)
		d.events = append(d.events, Event{Path: path, Kind: kind})
		return
	}

	prior := d.events[i].Kind
	switch {
	case prior == EventCreate && kind == EventDelete:
		if d.emitTempfile {
			d.events[i].Kind = EventTempfile
		} else {
			d.remove(i)
		}
	case kind == EventDelete:
		d.events[i].Kind = EventDelete
	case prior == EventDelete && kind == EventCreate:
		d.events[i].Kind = EventModified
	case prior == EventCreate && kind == EventModified:
		// no-op: still a Create from the consumer's perspective.
	case prior == EventModified && kind == EventModified:
		// no-op.
	default:
		d.logger.Errorf("cannot merge %v->%v for %s, this should be impossible", prior, kind, path)
	}
}

// remove deletes the event at index i, fixing up byPath for the event that
// gets swapped into its place (if any).
func (d *eventDebouncer) remove(i int) {
	last := len(d.events) - 1
	delete(d.byPath, d.events[i].Path.String())
	if i != last {
		d.events[i] = d.events[last]
		d.byPath[d.events[i].Path.String()] = i
	}
	d.events = d.events[:last]
}

// take moves the accumulated events out and resets the table.
func (d *eventDebouncer) take() Events {
	events := d.events
	d.events = make([]Event, 0, 8)
	d.byPath = make(map[string]int, 128)
	return Events{events: events}
}

// isEmpty is O(1) and used by the worker to decide between timed and
// untimed waits (spec.md §4.5 step 1).
func (d *eventDebouncer) isEmpty() bool {
	return len(d.events) == 0
}

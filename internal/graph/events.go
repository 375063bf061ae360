package graph

import (
	"sort"
	"sync"

	"github.com/roach88/provenance/internal/ir"
)

// Backend change events.
const (
	EventAddNode    = "add_node"
	EventUpdateNode = "update_node"
	EventRemoveNode = "remove_node"
	EventAddEdge    = "add_edge"
	EventUpdateEdge = "update_edge"
	EventRemoveEdge = "remove_edge"
	EventClear      = "clear"
	EventRestore    = "restore"

	// EventAttr is the generic "any attribute changed" notification.
	// Per-attribute notifications are named "attr-<key>".
	EventAttr = "attr"

	// Wildcard subscribes a listener to every event.
	Wildcard = "*"
)

// AttrEvent returns the per-attribute event name for key.
func AttrEvent(key string) string {
	return EventAttr + "-" + key
}

// Event is a change notification.
type Event struct {
	Name string
	Node *Node
	Edge *Edge

	// Attr, Old and New are set for attribute change events.
	Attr string
	Old  ir.IRValue
	New  ir.IRValue

	// Args carries event-specific payload (e.g. the previous state on
	// switch_state). Its shape is documented next to each event name.
	Args []any
}

// Listener receives events synchronously on the firing goroutine.
type Listener func(Event)

type listenerEntry struct {
	seq int
	fn  Listener
}

// Emitter is a synchronous listener registry.
//
// Listeners run on the goroutine that fires the event, in registration
// order. A listener may unsubscribe itself (or others) while running.
//
// Thread-safety: On, off funcs and Fire may be called from any goroutine.
type Emitter struct {
	mu        sync.Mutex
	seq       int
	listeners map[string][]listenerEntry
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[string][]listenerEntry)}
}

// On registers fn for the named event (or Wildcard) and returns a func
// that removes the registration. Calling the returned func twice is safe.
func (e *Emitter) On(name string, fn Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[string][]listenerEntry)
	}
	e.seq++
	seq := e.seq
	e.listeners[name] = append(e.listeners[name], listenerEntry{seq: seq, fn: fn})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		entries := e.listeners[name]
		for i, entry := range entries {
			if entry.seq == seq {
				e.listeners[name] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Fire delivers ev to the listeners registered for ev.Name and to the
// wildcard listeners.
func (e *Emitter) Fire(ev Event) {
	if e == nil {
		return
	}
	e.mu.Lock()
	targets := make([]listenerEntry, 0, len(e.listeners[ev.Name])+len(e.listeners[Wildcard]))
	targets = append(targets, e.listeners[ev.Name]...)
	if ev.Name != Wildcard {
		targets = append(targets, e.listeners[Wildcard]...)
	}
	e.mu.Unlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].seq < targets[j].seq })
	for _, t := range targets {
		t.fn(ev)
	}
}

// Len returns the number of registered listeners across all events.
func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, entries := range e.listeners {
		n += len(entries)
	}
	return n
}

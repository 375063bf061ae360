package testutil

import (
	"sync"

	"github.com/roach88/provenance/internal/graph"
)

// EventRecorder collects event names fired on an emitter, in order.
//
// Thread-safety: safe for concurrent use.
type EventRecorder struct {
	mu     sync.Mutex
	events []graph.Event
	off    func()
}

// RecordEvents subscribes a recorder to every event of e.
func RecordEvents(e *graph.Emitter) *EventRecorder {
	r := &EventRecorder{}
	r.off = e.On(graph.Wildcard, func(ev graph.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
	})
	return r
}

// Names returns the recorded event names, optionally keeping only the
// listed ones.
func (r *EventRecorder) Names(only ...string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keep := make(map[string]bool, len(only))
	for _, name := range only {
		keep[name] = true
	}
	var out []string
	for _, ev := range r.events {
		if len(keep) == 0 || keep[ev.Name] {
			out = append(out, ev.Name)
		}
	}
	return out
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []graph.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]graph.Event(nil), r.events...)
}

// Count returns how often name was fired.
func (r *EventRecorder) Count(name string) int {
	return len(r.Names(name))
}

// Reset drops what was recorded so far.
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Stop unsubscribes the recorder.
func (r *EventRecorder) Stop() {
	r.off()
}

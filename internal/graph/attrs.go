package graph

import "github.com/roach88/provenance/internal/ir"

// Attrs is the base entity of the graph: a stable identity plus an open
// string-keyed attribute bag with change notification.
//
// INVARIANTS:
//   - id never changes once assigned
//   - re-assigning an equal value is a no-op unless the value is
//     sequence-typed (IRArray), which always counts as a change
type Attrs struct {
	id     int64
	values ir.IRObject
	events *Emitter
}

func newAttrs(id int64, values ir.IRObject) Attrs {
	if values == nil {
		values = ir.IRObject{}
	}
	return Attrs{id: id, values: values}
}

// ID returns the immutable identity.
func (a *Attrs) ID() int64 {
	return a.id
}

// Attr returns the value stored under key, or nil.
func (a *Attrs) Attr(key string) ir.IRValue {
	return a.values[key]
}

// HasAttr reports whether key is present.
func (a *Attrs) HasAttr(key string) bool {
	_, ok := a.values[key]
	return ok
}

// AttrString returns the string attribute under key or "".
func (a *Attrs) AttrString(key string) string {
	return a.values.String(key)
}

// AttrInt returns the integer attribute under key or 0.
func (a *Attrs) AttrInt(key string) int64 {
	return a.values.Int(key)
}

// AttrBool returns the boolean attribute under key or false.
func (a *Attrs) AttrBool(key string) bool {
	return a.values.Bool(key)
}

// AttrMap returns a deep copy of the attribute bag.
func (a *Attrs) AttrMap() ir.IRObject {
	return a.values.Clone()
}

// SetAttr stores v under key and fires "attr-<key>" followed by "attr".
// Returns false (and fires nothing) when the value did not change.
func (a *Attrs) SetAttr(key string, v ir.IRValue) bool {
	if v == nil {
		v = ir.IRNull{}
	}
	old, exists := a.values[key]
	if exists && !ir.IsSequence(v) && ir.Equal(old, v) {
		return false
	}
	if a.values == nil {
		a.values = ir.IRObject{}
	}
	a.values[key] = v

	if a.events != nil {
		ev := Event{Attr: key, Old: old, New: v}
		ev.Name = AttrEvent(key)
		a.events.Fire(ev)
		ev.Name = EventAttr
		a.events.Fire(ev)
	}
	return true
}

// RemoveAttr deletes key and fires like SetAttr with New set to nil.
// Returns false when key was absent.
func (a *Attrs) RemoveAttr(key string) bool {
	old, exists := a.values[key]
	if !exists {
		return false
	}
	delete(a.values, key)

	if a.events != nil {
		ev := Event{Attr: key, Old: old}
		ev.Name = AttrEvent(key)
		a.events.Fire(ev)
		ev.Name = EventAttr
		a.events.Fire(ev)
	}
	return true
}

// OnAttr subscribes fn to changes of key, or to every attribute change when
// key is "". The returned func unsubscribes.
func (a *Attrs) OnAttr(key string, fn Listener) func() {
	if a.events == nil {
		a.events = NewEmitter()
	}
	name := EventAttr
	if key != "" {
		name = AttrEvent(key)
	}
	return a.events.On(name, fn)
}

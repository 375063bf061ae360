package provenance

import (
	"cmp"
	"slices"
	"time"

	"github.com/roach88/provenance/internal/graph"
	"github.com/roach88/provenance/internal/ir"
)

// Node types.
const (
	TypeObject = "object"
	TypeAction = "action"
	TypeState  = "state"
	TypeSlide  = "slide"
)

// Edge types.
const (
	EdgeNext       = "next"
	EdgeResultsIn  = "resultsIn"
	EdgeRequires   = "requires"
	EdgeCreates    = "creates"
	EdgeRemoves    = "removes"
	EdgeInverses   = "inverses"
	EdgeConsistsOf = "consistsOf"
	EdgeJumpTo     = "jumpTo"
)

// Attribute keys.
const (
	attrName       = "name"
	attrCategory   = "category"
	attrHash       = "hash"
	attrOperation  = "operation"
	attrFunctionID = "f_id"
	attrParameters = "parameters"
	attrExecuted   = "executed"
	attrInverse    = "inverse"
	attrForked     = "forked"
	attrKey        = "key"
	attrTimestamp  = "ts"
	attrUser       = "user"
	attrIndex      = "index"
	attrDuration   = "duration"
	attrTransition = "transition"
	attrTextOnly   = "isTextOnly"
	attrText       = "text"
)

// Category classifies actions and objects.
type Category string

const (
	CategoryData       Category = "data"
	CategorySelection  Category = "selection"
	CategoryVisual     Category = "visual"
	CategoryLayout     Category = "layout"
	CategoryLogic      Category = "logic"
	CategoryCustom     Category = "custom"
	CategoryAnnotation Category = "annotation"
)

// Operation is the kind of change an action makes.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationRemove Operation = "remove"
)

// ActionMeta is the human-readable description of an action.
type ActionMeta struct {
	Name      string
	Category  Category
	Operation Operation

	// Timestamp and User are filled by the graph when zero.
	Timestamp time.Time
	User      string
}

// ObjectRef identifies an external value the graph should track.
//
// Resolution order: a non-zero ID names an existing object node; otherwise
// an explicit Hash or a comparable non-nil Value identifies a previously
// tracked object; otherwise a new object node is created.
type ObjectRef struct {
	ID       int64
	Name     string
	Category Category
	Hash     string
	Value    any
}

// Ref returns a reference to an existing object node.
func Ref(o ObjectNode) ObjectRef {
	return ObjectRef{ID: o.ID(), Name: o.Name(), Category: o.Category(), Hash: o.Hash()}
}

// ObjectNode is a tracked reference to an external value.
type ObjectNode struct{ *graph.Node }

func (o ObjectNode) Name() string       { return o.AttrString(attrName) }
func (o ObjectNode) Category() Category { return Category(o.AttrString(attrCategory)) }
func (o ObjectNode) Hash() string       { return o.AttrString(attrHash) }

// Value returns the current value, or nil when the object is freed or not
// yet re-hydrated after a restore.
func (o ObjectNode) Value() any { return o.Payload }

// ActionNode is a recorded command invocation.
type ActionNode struct{ *graph.Node }

func (a ActionNode) FunctionID() string { return a.AttrString(attrFunctionID) }

func (a ActionNode) Meta() ActionMeta {
	return ActionMeta{
		Name:      a.AttrString(attrName),
		Category:  Category(a.AttrString(attrCategory)),
		Operation: Operation(a.AttrString(attrOperation)),
		Timestamp: time.UnixMilli(a.AttrInt(attrTimestamp)),
		User:      a.AttrString(attrUser),
	}
}

// Parameters returns a copy of the parameter bag.
func (a ActionNode) Parameters() ir.IRObject {
	if p, ok := a.Attr(attrParameters).(ir.IRObject); ok {
		return p.Clone()
	}
	return ir.IRObject{}
}

// Executed reports whether the action ran successfully at least once.
func (a ActionNode) Executed() bool { return a.AttrBool(attrExecuted) }

// IsInverse reports whether the action was synthesized to undo another.
func (a ActionNode) IsInverse() bool { return a.AttrBool(attrInverse) }

// IsForked reports whether the action is a fork copy.
func (a ActionNode) IsForked() bool { return a.AttrBool(attrForked) }

// Requires, Creates and Removes return objects in edge index order.
func (a ActionNode) Requires() []ObjectNode { return orderedObjects(a.Node, EdgeRequires) }
func (a ActionNode) Creates() []ObjectNode  { return orderedObjects(a.Node, EdgeCreates) }
func (a ActionNode) Removes() []ObjectNode  { return orderedObjects(a.Node, EdgeRemoves) }

// ResultsIn returns the state the action produced.
func (a ActionNode) ResultsIn() (StateNode, bool) {
	targets := a.Targets(EdgeResultsIn)
	if len(targets) == 0 {
		return StateNode{}, false
	}
	return StateNode{targets[0]}, true
}

// PreviousState returns the state the action is taken from.
func (a ActionNode) PreviousState() (StateNode, bool) {
	sources := a.Sources(EdgeNext)
	if len(sources) == 0 {
		return StateNode{}, false
	}
	return StateNode{sources[0]}, true
}

// InverseAction returns the cached inverse. The inverses edge is followed
// in both directions, so the inverse of an inverse is the original action.
func (a ActionNode) InverseAction() (ActionNode, bool) {
	if t := a.Targets(EdgeInverses); len(t) > 0 {
		return ActionNode{t[0]}, true
	}
	if s := a.Sources(EdgeInverses); len(s) > 0 {
		return ActionNode{s[0]}, true
	}
	return ActionNode{}, false
}

// StateNode is a snapshot defined by the objects it consists of.
type StateNode struct{ *graph.Node }

func (s StateNode) Name() string { return s.AttrString(attrName) }

// ConsistsOf returns the member objects in edge order.
func (s StateNode) ConsistsOf() []ObjectNode {
	targets := s.Targets(EdgeConsistsOf)
	out := make([]ObjectNode, len(targets))
	for i, t := range targets {
		out[i] = ObjectNode{t}
	}
	return out
}

// Next returns the actions taken from this state.
func (s StateNode) Next() []ActionNode {
	return actionsOf(s.Targets(EdgeNext))
}

// ResultsFrom returns every action that leads to this state, including
// inverse actions.
func (s StateNode) ResultsFrom() []ActionNode {
	return actionsOf(s.Sources(EdgeResultsIn))
}

// Creators returns the non-inverse actions leading to this state.
func (s StateNode) Creators() []ActionNode {
	var out []ActionNode
	for _, a := range s.ResultsFrom() {
		if !a.IsInverse() {
			out = append(out, a)
		}
	}
	return out
}

// Slides returns the slides that jump to this state.
func (s StateNode) Slides() []SlideNode {
	sources := s.Sources(EdgeJumpTo)
	out := make([]SlideNode, len(sources))
	for i, n := range sources {
		out[i] = SlideNode{n}
	}
	return out
}

// SlideNode is a presentation pointer to a state.
type SlideNode struct{ *graph.Node }

func (s SlideNode) Name() string { return s.AttrString(attrName) }

// Duration is the time the slide is shown.
func (s SlideNode) Duration() time.Duration {
	return time.Duration(s.AttrInt(attrDuration)) * time.Millisecond
}

// Transition is the replay budget used when jumping to the slide's state.
func (s SlideNode) Transition() time.Duration {
	return time.Duration(s.AttrInt(attrTransition)) * time.Millisecond
}

func (s SlideNode) IsTextOnly() bool { return s.AttrBool(attrTextOnly) }
func (s SlideNode) Text() string     { return s.AttrString(attrText) }

// State returns the jump target.
func (s SlideNode) State() (StateNode, bool) {
	t := s.Targets(EdgeJumpTo)
	if len(t) == 0 {
		return StateNode{}, false
	}
	return StateNode{t[0]}, true
}

// NextSlide returns the following slide in the chain.
func (s SlideNode) NextSlide() (SlideNode, bool) {
	for _, t := range s.Targets(EdgeNext) {
		if t.Type() == TypeSlide {
			return SlideNode{t}, true
		}
	}
	return SlideNode{}, false
}

// PreviousSlide returns the preceding slide in the chain.
func (s SlideNode) PreviousSlide() (SlideNode, bool) {
	for _, src := range s.Sources(EdgeNext) {
		if src.Type() == TypeSlide {
			return SlideNode{src}, true
		}
	}
	return SlideNode{}, false
}

func actionsOf(nodes []*graph.Node) []ActionNode {
	out := make([]ActionNode, 0, len(nodes))
	for _, n := range nodes {
		if n.Type() == TypeAction {
			out = append(out, ActionNode{n})
		}
	}
	return out
}

func orderedObjects(n *graph.Node, edgeType string) []ObjectNode {
	edges := n.Outgoing(edgeType)
	slices.SortStableFunc(edges, func(a, b *graph.Edge) int {
		return cmp.Compare(a.AttrInt(attrIndex), b.AttrInt(attrIndex))
	})
	out := make([]ObjectNode, len(edges))
	for i, e := range edges {
		out[i] = ObjectNode{e.Target()}
	}
	return out
}

func objectIDs(objs []ObjectNode) []int64 {
	out := make([]int64, len(objs))
	for i, o := range objs {
		out[i] = o.ID()
	}
	return out
}

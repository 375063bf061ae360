package graph

import (
	"fmt"
	"slices"

	"github.com/roach88/provenance/internal/ir"
)

// Node is a typed graph vertex.
type Node struct {
	Attrs
	typ      string
	outgoing []*Edge
	incoming []*Edge

	// Payload holds runtime data that is not persisted (external object
	// values, resolved command functions). Owned by the layer above.
	Payload any
}

// NewNode creates a detached node.
func NewNode(id int64, typ string, attrs ir.IRObject) *Node {
	return &Node{Attrs: newAttrs(id, attrs), typ: typ}
}

// Type returns the node type tag.
func (n *Node) Type() string {
	return n.typ
}

// Outgoing returns the outgoing edges, filtered to the given types when any
// are passed. The result is a copy in insertion order.
func (n *Node) Outgoing(types ...string) []*Edge {
	return filterEdges(n.outgoing, types)
}

// Incoming returns the incoming edges, filtered like Outgoing.
func (n *Node) Incoming(types ...string) []*Edge {
	return filterEdges(n.incoming, types)
}

// Targets returns the targets of the outgoing edges of the given type.
func (n *Node) Targets(typ string) []*Node {
	var out []*Node
	for _, e := range n.outgoing {
		if e.typ == typ {
			out = append(out, e.target)
		}
	}
	return out
}

// Sources returns the sources of the incoming edges of the given type.
func (n *Node) Sources(typ string) []*Node {
	var out []*Node
	for _, e := range n.incoming {
		if e.typ == typ {
			out = append(out, e.source)
		}
	}
	return out
}

// Dump returns the persisted form of n.
func (n *Node) Dump() NodeDump {
	return NodeDump{Type: n.typ, ID: n.id, Attrs: n.AttrMap()}
}

func (n *Node) String() string {
	return fmt.Sprintf("%s#%d", n.typ, n.id)
}

func filterEdges(edges []*Edge, types []string) []*Edge {
	out := make([]*Edge, 0, len(edges))
	for _, e := range edges {
		if len(types) == 0 || slices.Contains(types, e.typ) {
			out = append(out, e)
		}
	}
	return out
}

// Edge is a typed, directed link between two nodes.
type Edge struct {
	Attrs
	typ    string
	source *Node
	target *Node
}

// NewEdge creates an edge and registers it in source's outgoing and target's
// incoming lists. A nil endpoint is a programming error and panics.
func NewEdge(id int64, typ string, source, target *Node, attrs ir.IRObject) *Edge {
	if source == nil || target == nil {
		panic(fmt.Sprintf("graph: edge %s#%d with nil endpoint", typ, id))
	}
	e := &Edge{Attrs: newAttrs(id, attrs), typ: typ, source: source, target: target}
	source.outgoing = append(source.outgoing, e)
	target.incoming = append(target.incoming, e)
	return e
}

// Type returns the edge type tag.
func (e *Edge) Type() string {
	return e.typ
}

// Source returns the source node.
func (e *Edge) Source() *Node {
	return e.source
}

// Target returns the target node.
func (e *Edge) Target() *Node {
	return e.target
}

// Detach removes e from its endpoints' edge lists. Safe to call twice.
func (e *Edge) Detach() {
	e.source.outgoing = removeEdge(e.source.outgoing, e)
	e.target.incoming = removeEdge(e.target.incoming, e)
}

// Dump returns the persisted form of e.
func (e *Edge) Dump() EdgeDump {
	return EdgeDump{
		Type:   e.typ,
		ID:     e.id,
		Attrs:  e.AttrMap(),
		Source: e.source.id,
		Target: e.target.id,
	}
}

func (e *Edge) String() string {
	return fmt.Sprintf("%s#%d(%d->%d)", e.typ, e.id, e.source.id, e.target.id)
}

func removeEdge(edges []*Edge, e *Edge) []*Edge {
	i := slices.Index(edges, e)
	if i < 0 {
		return edges
	}
	return slices.Delete(edges, i, i+1)
}

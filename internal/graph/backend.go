package graph

import (
	"context"
	"errors"
)

var (
	// ErrDanglingEdge is returned when an edge references a node that is
	// not part of the graph. This is a structural invariant violation.
	ErrDanglingEdge = errors.New("dangling edge")

	// ErrDuplicateID is returned when a node or edge id is added twice.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrUnknownElement is returned when updating or removing a node or
	// edge the backend does not hold.
	ErrUnknownElement = errors.New("unknown graph element")
)

// Backend persists and restores one node/edge graph.
//
// Mutators take a context because persistent implementations perform I/O.
// A mutator that cannot complete returns the failure; no implementation may
// silently drop a write. Every mutator fires its change event through the
// bound Emitter after the in-process collections are updated.
type Backend interface {
	// ID is the graph id this backend stores.
	ID() string

	Node(id int64) (*Node, bool)
	Edge(id int64) (*Edge, bool)
	// Nodes and Edges return copies in insertion order.
	Nodes() []*Node
	Edges() []*Edge
	// Size returns the node and edge counts.
	Size() (nodes, edges int)

	AddNode(ctx context.Context, n *Node) error
	UpdateNode(ctx context.Context, n *Node) error
	RemoveNode(ctx context.Context, n *Node) error
	AddEdge(ctx context.Context, e *Edge) error
	UpdateEdge(ctx context.Context, e *Edge) error
	RemoveEdge(ctx context.Context, e *Edge) error

	// Clear removes every node and edge. Observers never see a partially
	// cleared graph.
	Clear(ctx context.Context) error

	// SetCurrent records the current state and last action ids (0 = none).
	SetCurrent(ctx context.Context, act, lastAction int64) error
	Current() (act, lastAction int64)

	// Persist returns a serializable dump of the whole graph.
	Persist(ctx context.Context) (*Dump, error)

	// Restore replaces the graph contents with the dump.
	Restore(ctx context.Context, d *Dump) error

	// Bind routes change events to e. Used to hot-swap backends without
	// disturbing listeners.
	Bind(e *Emitter)
	Events() *Emitter

	Close() error
}

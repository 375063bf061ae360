package graph

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Memory is the transient backend: pure in-process collections, no I/O.
// It also serves as the in-process mirror embedded by the persistent
// backends.
//
// Thread-safety: collections are guarded by an RWMutex so readers outside
// the orchestrator loop observe either the pre- or post-mutation graph.
// Attribute bags on individual nodes are not guarded; mutate them only from
// the owning orchestrator.
type Memory struct {
	id string

	mu        sync.RWMutex
	nodes     map[int64]*Node
	edges     map[int64]*Edge
	nodeOrder []int64
	edgeOrder []int64
	act       int64
	last      int64

	events atomic.Pointer[Emitter]
}

// NewMemory creates an empty in-memory graph with its own emitter.
func NewMemory(id string) *Memory {
	m := &Memory{
		id:    id,
		nodes: make(map[int64]*Node),
		edges: make(map[int64]*Edge),
	}
	m.events.Store(NewEmitter())
	return m
}

func (m *Memory) ID() string { return m.id }

func (m *Memory) Node(id int64) (*Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	return n, ok
}

func (m *Memory) Edge(id int64) (*Edge, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.edges[id]
	return e, ok
}

func (m *Memory) Nodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Node, 0, len(m.nodeOrder))
	for _, id := range m.nodeOrder {
		out = append(out, m.nodes[id])
	}
	return out
}

func (m *Memory) Edges() []*Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Edge, 0, len(m.edgeOrder))
	for _, id := range m.edgeOrder {
		out = append(out, m.edges[id])
	}
	return out
}

func (m *Memory) Size() (int, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes), len(m.edges)
}

// NodeIDs returns the node id index in insertion order.
func (m *Memory) NodeIDs() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.nodeOrder)
}

// EdgeIDs returns the edge id index in insertion order.
func (m *Memory) EdgeIDs() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.edgeOrder)
}

func (m *Memory) AddNode(_ context.Context, n *Node) error {
	m.mu.Lock()
	if _, dup := m.nodes[n.id]; dup {
		m.mu.Unlock()
		return fmt.Errorf("add node %d: %w", n.id, ErrDuplicateID)
	}
	m.nodes[n.id] = n
	m.nodeOrder = append(m.nodeOrder, n.id)
	m.mu.Unlock()

	m.Events().Fire(Event{Name: EventAddNode, Node: n})
	return nil
}

func (m *Memory) UpdateNode(_ context.Context, n *Node) error {
	m.mu.RLock()
	_, ok := m.nodes[n.id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("update node %d: %w", n.id, ErrUnknownElement)
	}
	m.Events().Fire(Event{Name: EventUpdateNode, Node: n})
	return nil
}

// RemoveNode removes n together with every incident edge. Edge removals
// fire before the node removal.
func (m *Memory) RemoveNode(_ context.Context, n *Node) error {
	m.mu.Lock()
	if _, ok := m.nodes[n.id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("remove node %d: %w", n.id, ErrUnknownElement)
	}
	incident := append(n.Incoming(), n.Outgoing()...)
	removed := make([]*Edge, 0, len(incident))
	for _, e := range incident {
		if _, ok := m.edges[e.id]; !ok {
			continue
		}
		m.dropEdgeLocked(e)
		removed = append(removed, e)
	}
	delete(m.nodes, n.id)
	m.nodeOrder = deleteID(m.nodeOrder, n.id)
	m.mu.Unlock()

	events := m.Events()
	for _, e := range removed {
		events.Fire(Event{Name: EventRemoveEdge, Edge: e})
	}
	events.Fire(Event{Name: EventRemoveNode, Node: n})
	return nil
}

// AddEdge registers e. Both endpoints must already be part of the graph;
// a rejected edge is detached from its endpoints again.
func (m *Memory) AddEdge(_ context.Context, e *Edge) error {
	m.mu.Lock()
	if _, dup := m.edges[e.id]; dup {
		m.mu.Unlock()
		e.Detach()
		return fmt.Errorf("add edge %d: %w", e.id, ErrDuplicateID)
	}
	if m.nodes[e.source.id] != e.source || m.nodes[e.target.id] != e.target {
		m.mu.Unlock()
		e.Detach()
		return fmt.Errorf("add edge %s: %w", e, ErrDanglingEdge)
	}
	m.edges[e.id] = e
	m.edgeOrder = append(m.edgeOrder, e.id)
	m.mu.Unlock()

	m.Events().Fire(Event{Name: EventAddEdge, Edge: e})
	return nil
}

func (m *Memory) UpdateEdge(_ context.Context, e *Edge) error {
	m.mu.RLock()
	_, ok := m.edges[e.id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("update edge %d: %w", e.id, ErrUnknownElement)
	}
	m.Events().Fire(Event{Name: EventUpdateEdge, Edge: e})
	return nil
}

func (m *Memory) RemoveEdge(_ context.Context, e *Edge) error {
	m.mu.Lock()
	if _, ok := m.edges[e.id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("remove edge %d: %w", e.id, ErrUnknownElement)
	}
	m.dropEdgeLocked(e)
	m.mu.Unlock()

	m.Events().Fire(Event{Name: EventRemoveEdge, Edge: e})
	return nil
}

func (m *Memory) dropEdgeLocked(e *Edge) {
	e.Detach()
	delete(m.edges, e.id)
	m.edgeOrder = deleteID(m.edgeOrder, e.id)
}

// Clear swaps both collections in one critical section and fires a single
// clear event.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.nodes = make(map[int64]*Node)
	m.edges = make(map[int64]*Edge)
	m.nodeOrder = nil
	m.edgeOrder = nil
	m.act, m.last = 0, 0
	m.mu.Unlock()

	m.Events().Fire(Event{Name: EventClear})
	return nil
}

func (m *Memory) SetCurrent(_ context.Context, act, lastAction int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.act, m.last = act, lastAction
	return nil
}

func (m *Memory) Current() (int64, int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.act, m.last
}

func (m *Memory) Persist(_ context.Context) (*Dump, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d := &Dump{
		Root:  m.id,
		Nodes: make([]NodeDump, 0, len(m.nodeOrder)),
		Edges: make([]EdgeDump, 0, len(m.edgeOrder)),
	}
	for _, id := range m.nodeOrder {
		d.Nodes = append(d.Nodes, m.nodes[id].Dump())
	}
	for _, id := range m.edgeOrder {
		d.Edges = append(d.Edges, m.edges[id].Dump())
	}
	d.SetPointers(m.act, m.last)
	return d, nil
}

// Restore replaces the contents with d. The dump is fully validated before
// anything is swapped, so a dangling edge leaves the graph untouched.
func (m *Memory) Restore(_ context.Context, d *Dump) error {
	nodes, edges, err := Build(d)
	if err != nil {
		return fmt.Errorf("restore %s: %w", m.id, err)
	}
	m.install(nodes, edges, d)
	m.Events().Fire(Event{Name: EventRestore})
	return nil
}

func (m *Memory) install(nodes []*Node, edges []*Edge, d *Dump) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = make(map[int64]*Node, len(nodes))
	m.nodeOrder = make([]int64, 0, len(nodes))
	for _, n := range nodes {
		m.nodes[n.id] = n
		m.nodeOrder = append(m.nodeOrder, n.id)
	}
	m.edges = make(map[int64]*Edge, len(edges))
	m.edgeOrder = make([]int64, 0, len(edges))
	for _, e := range edges {
		m.edges[e.id] = e
		m.edgeOrder = append(m.edgeOrder, e.id)
	}
	m.act, m.last = d.Pointers()
}

func (m *Memory) Bind(e *Emitter) {
	if e == nil {
		e = NewEmitter()
	}
	m.events.Store(e)
}

func (m *Memory) Events() *Emitter {
	return m.events.Load()
}

func (m *Memory) Close() error { return nil }

func deleteID(ids []int64, id int64) []int64 {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(ids, i, i+1)
	}
	return ids
}

var _ Backend = (*Memory)(nil)

package graph

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/provenance/internal/ir"
)

// Dump is the persisted form of a graph.
//
//	{ "root": graphId, "nodes": [...], "edges": [...], "act": stateId|null, "lastAction": actionId|null }
//
// Round-trip contract: restoring a dump reconstructs the same node and edge
// sets, the same attribute values and the same current pointers.
type Dump struct {
	Root       string     `json:"root"`
	Nodes      []NodeDump `json:"nodes"`
	Edges      []EdgeDump `json:"edges"`
	Act        *int64     `json:"act"`
	LastAction *int64     `json:"lastAction"`
}

// NodeDump is the persisted form of a node.
type NodeDump struct {
	Type  string      `json:"type"`
	ID    int64       `json:"id"`
	Attrs ir.IRObject `json:"attrs"`
}

// EdgeDump is the persisted form of an edge.
type EdgeDump struct {
	Type   string      `json:"type"`
	ID     int64       `json:"id"`
	Attrs  ir.IRObject `json:"attrs"`
	Source int64       `json:"source"`
	Target int64       `json:"target"`
}

// MaxID returns the largest node or edge id in the dump (0 when empty).
func (d *Dump) MaxID() int64 {
	var max int64
	for _, n := range d.Nodes {
		if n.ID > max {
			max = n.ID
		}
	}
	for _, e := range d.Edges {
		if e.ID > max {
			max = e.ID
		}
	}
	return max
}

// Pointers returns the current state and last action ids (0 when unset).
func (d *Dump) Pointers() (act, lastAction int64) {
	if d.Act != nil {
		act = *d.Act
	}
	if d.LastAction != nil {
		lastAction = *d.LastAction
	}
	return act, lastAction
}

// SetPointers stores the current state and last action ids; 0 means unset.
func (d *Dump) SetPointers(act, lastAction int64) {
	d.Act, d.LastAction = nil, nil
	if act != 0 {
		d.Act = &act
	}
	if lastAction != 0 {
		d.LastAction = &lastAction
	}
}

// EncodeDump serializes d as JSON with sorted attribute keys.
func EncodeDump(d *Dump) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode dump: %w", err)
	}
	return data, nil
}

// DecodeDump parses a JSON dump.
func DecodeDump(data []byte) (*Dump, error) {
	var d Dump
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode dump: %w", err)
	}
	return &d, nil
}

// Build materializes the nodes and edges of d. Nodes are built first because
// edges need resolved endpoints; an edge whose endpoint is missing fails
// with ErrDanglingEdge.
func Build(d *Dump) ([]*Node, []*Edge, error) {
	byID := make(map[int64]*Node, len(d.Nodes))
	nodes := make([]*Node, 0, len(d.Nodes))
	for _, nd := range d.Nodes {
		if _, dup := byID[nd.ID]; dup {
			return nil, nil, fmt.Errorf("%w: node %d", ErrDuplicateID, nd.ID)
		}
		n := NewNode(nd.ID, nd.Type, nd.Attrs.Clone())
		byID[nd.ID] = n
		nodes = append(nodes, n)
	}

	edges := make([]*Edge, 0, len(d.Edges))
	seen := make(map[int64]bool, len(d.Edges))
	for _, ed := range d.Edges {
		if seen[ed.ID] {
			return nil, nil, fmt.Errorf("%w: edge %d", ErrDuplicateID, ed.ID)
		}
		seen[ed.ID] = true
		src, ok := byID[ed.Source]
		if !ok {
			return nil, nil, fmt.Errorf("%w: edge %d source %d", ErrDanglingEdge, ed.ID, ed.Source)
		}
		tgt, ok := byID[ed.Target]
		if !ok {
			return nil, nil, fmt.Errorf("%w: edge %d target %d", ErrDanglingEdge, ed.ID, ed.Target)
		}
		edges = append(edges, NewEdge(ed.ID, ed.Type, src, tgt, ed.Attrs.Clone()))
	}
	return nodes, edges, nil
}

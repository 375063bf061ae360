package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/provenance/internal/graph"
)

// Backend is a graph backend mirrored into a KV store.
//
// The embedded in-memory graph is updated first, then the batch describing
// the change is applied. A failed batch is returned to the caller; the
// in-memory graph keeps the mutation and Sync rewrites the whole graph.
type Backend struct {
	*graph.Memory
	kv KV
}

// ErrMissingPayload is returned by Open when an index lists an id whose
// payload key is absent.
var ErrMissingPayload = errors.New("index entry without payload")

type currentPointers struct {
	Act        *int64 `json:"act"`
	LastAction *int64 `json:"lastAction"`
}

// Open loads graph id from kv. A graph with no index keys opens empty.
// Nodes are rebuilt before edges; an index entry without a payload key is
// a structural error.
func Open(ctx context.Context, kv KV, id string) (*Backend, error) {
	b := &Backend{Memory: graph.NewMemory(id), kv: kv}

	d := &graph.Dump{Root: id}
	nodeIDs, err := b.readIDs(ctx, nodesKey(id))
	if err != nil {
		return nil, err
	}
	for _, nid := range nodeIDs {
		var nd graph.NodeDump
		if err := b.readJSON(ctx, nodeKey(id, nid), &nd); err != nil {
			return nil, err
		}
		d.Nodes = append(d.Nodes, nd)
	}

	edgeIDs, err := b.readIDs(ctx, edgesKey(id))
	if err != nil {
		return nil, err
	}
	for _, eid := range edgeIDs {
		var ed graph.EdgeDump
		if err := b.readJSON(ctx, edgeKey(id, eid), &ed); err != nil {
			return nil, err
		}
		d.Edges = append(d.Edges, ed)
	}

	if raw, ok, err := kv.Get(ctx, currentKey(id)); err != nil {
		return nil, fmt.Errorf("open graph %s: %w", id, err)
	} else if ok {
		var cur currentPointers
		if err := json.Unmarshal([]byte(raw), &cur); err != nil {
			return nil, fmt.Errorf("open graph %s: current: %w", id, err)
		}
		d.Act, d.LastAction = cur.Act, cur.LastAction
	}

	if err := b.Memory.Restore(ctx, d); err != nil {
		return nil, fmt.Errorf("open graph %s: %w", id, err)
	}

	slog.Debug("opened local graph",
		"graph", id,
		"nodes", len(d.Nodes),
		"edges", len(d.Edges))
	return b, nil
}

func (b *Backend) readIDs(ctx context.Context, key string) ([]int64, error) {
	raw, ok, err := b.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return ids, nil
}

func (b *Backend) readJSON(ctx context.Context, key string, v any) error {
	raw, ok, err := b.kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("read %s: %w", key, ErrMissingPayload)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	return nil
}

// batch accumulates one atomic KV write.
type batch struct {
	set map[string]string
	del []string
	err error
}

func newBatch() *batch {
	return &batch{set: make(map[string]string)}
}

func (bt *batch) put(key string, v any) {
	if bt.err != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		bt.err = fmt.Errorf("encode %s: %w", key, err)
		return
	}
	bt.set[key] = string(data)
}

func (bt *batch) remove(key string) {
	delete(bt.set, key)
	bt.del = append(bt.del, key)
}

func (b *Backend) apply(ctx context.Context, op string, bt *batch) error {
	if bt.err != nil {
		return fmt.Errorf("%s: %w", op, bt.err)
	}
	if err := b.kv.Apply(ctx, bt.set, bt.del); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *Backend) putNodeIndex(bt *batch) {
	bt.put(nodesKey(b.ID()), nonNil(b.NodeIDs()))
}

func (b *Backend) putEdgeIndex(bt *batch) {
	bt.put(edgesKey(b.ID()), nonNil(b.EdgeIDs()))
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func (b *Backend) AddNode(ctx context.Context, n *graph.Node) error {
	if err := b.Memory.AddNode(ctx, n); err != nil {
		return err
	}
	bt := newBatch()
	b.putNodeIndex(bt)
	bt.put(nodeKey(b.ID(), n.ID()), n.Dump())
	return b.apply(ctx, "add node", bt)
}

func (b *Backend) UpdateNode(ctx context.Context, n *graph.Node) error {
	if err := b.Memory.UpdateNode(ctx, n); err != nil {
		return err
	}
	bt := newBatch()
	bt.put(nodeKey(b.ID(), n.ID()), n.Dump())
	return b.apply(ctx, "update node", bt)
}

func (b *Backend) RemoveNode(ctx context.Context, n *graph.Node) error {
	incident := append(n.Incoming(), n.Outgoing()...)
	if err := b.Memory.RemoveNode(ctx, n); err != nil {
		return err
	}
	bt := newBatch()
	b.putNodeIndex(bt)
	b.putEdgeIndex(bt)
	bt.remove(nodeKey(b.ID(), n.ID()))
	for _, e := range incident {
		bt.remove(edgeKey(b.ID(), e.ID()))
	}
	return b.apply(ctx, "remove node", bt)
}

func (b *Backend) AddEdge(ctx context.Context, e *graph.Edge) error {
	if err := b.Memory.AddEdge(ctx, e); err != nil {
		return err
	}
	bt := newBatch()
	b.putEdgeIndex(bt)
	bt.put(edgeKey(b.ID(), e.ID()), e.Dump())
	return b.apply(ctx, "add edge", bt)
}

func (b *Backend) UpdateEdge(ctx context.Context, e *graph.Edge) error {
	if err := b.Memory.UpdateEdge(ctx, e); err != nil {
		return err
	}
	bt := newBatch()
	bt.put(edgeKey(b.ID(), e.ID()), e.Dump())
	return b.apply(ctx, "update edge", bt)
}

func (b *Backend) RemoveEdge(ctx context.Context, e *graph.Edge) error {
	if err := b.Memory.RemoveEdge(ctx, e); err != nil {
		return err
	}
	bt := newBatch()
	b.putEdgeIndex(bt)
	bt.remove(edgeKey(b.ID(), e.ID()))
	return b.apply(ctx, "remove edge", bt)
}

func (b *Backend) Clear(ctx context.Context) error {
	bt := newBatch()
	b.removePayloads(bt)
	if err := b.Memory.Clear(ctx); err != nil {
		return err
	}
	b.putNodeIndex(bt)
	b.putEdgeIndex(bt)
	bt.remove(currentKey(b.ID()))
	return b.apply(ctx, "clear", bt)
}

func (b *Backend) SetCurrent(ctx context.Context, act, lastAction int64) error {
	if err := b.Memory.SetCurrent(ctx, act, lastAction); err != nil {
		return err
	}
	var d graph.Dump
	d.SetPointers(act, lastAction)
	bt := newBatch()
	bt.put(currentKey(b.ID()), currentPointers{Act: d.Act, LastAction: d.LastAction})
	return b.apply(ctx, "set current", bt)
}

// Restore replaces the graph and rewrites every key, dropping payload keys
// of elements the dump no longer contains.
func (b *Backend) Restore(ctx context.Context, d *graph.Dump) error {
	bt := newBatch()
	b.removePayloads(bt)
	if err := b.Memory.Restore(ctx, d); err != nil {
		return err
	}
	b.putAll(bt)
	return b.apply(ctx, "restore", bt)
}

// Sync rewrites the whole in-memory graph into the KV store. Use it to
// recover after a failed batch.
func (b *Backend) Sync(ctx context.Context) error {
	bt := newBatch()
	b.putAll(bt)
	return b.apply(ctx, "sync", bt)
}

// Delete removes every key of the graph: payloads, both index keys and the
// current pointer. The in-memory graph is cleared.
func (b *Backend) Delete(ctx context.Context) error {
	bt := newBatch()
	b.removePayloads(bt)
	bt.remove(nodesKey(b.ID()))
	bt.remove(edgesKey(b.ID()))
	bt.remove(currentKey(b.ID()))
	if err := b.Memory.Clear(ctx); err != nil {
		return err
	}
	return b.apply(ctx, "delete graph", bt)
}

func (b *Backend) removePayloads(bt *batch) {
	for _, nid := range b.NodeIDs() {
		bt.remove(nodeKey(b.ID(), nid))
	}
	for _, eid := range b.EdgeIDs() {
		bt.remove(edgeKey(b.ID(), eid))
	}
}

func (b *Backend) putAll(bt *batch) {
	b.putNodeIndex(bt)
	b.putEdgeIndex(bt)
	for _, n := range b.Nodes() {
		bt.put(nodeKey(b.ID(), n.ID()), n.Dump())
	}
	for _, e := range b.Edges() {
		bt.put(edgeKey(b.ID(), e.ID()), e.Dump())
	}
	act, last := b.Current()
	var d graph.Dump
	d.SetPointers(act, last)
	bt.put(currentKey(b.ID()), currentPointers{Act: d.Act, LastAction: d.LastAction})
}

// Close releases nothing: the KV is shared between graphs and owned by the
// caller.
func (b *Backend) Close() error { return nil }

var _ graph.Backend = (*Backend)(nil)

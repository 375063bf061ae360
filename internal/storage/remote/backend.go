package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/provenance/internal/graph"
)

// Backend is a graph backend whose durable copy lives in a DataCache.
//
// Mutations are applied in process first and then the whole dump is
// uploaded. A failed upload is returned wrapped in ErrStorage and the
// backend stays dirty: the next successful upload, or Flush, carries the
// mutation.
type Backend struct {
	*graph.Memory
	cache DataCache

	mu    sync.Mutex
	desc  graph.Descriptor
	dirty bool
}

// Open downloads graph id from cache.
func Open(ctx context.Context, cache DataCache, id string) (*Backend, error) {
	desc, d, err := cache.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	b := &Backend{Memory: graph.NewMemory(id), cache: cache, desc: desc}
	if err := b.Memory.Restore(ctx, d); err != nil {
		return nil, fmt.Errorf("open remote graph %s: %w", id, err)
	}
	return b, nil
}

// Create uploads d as a new remote graph described by desc and returns its
// backend. A nil dump creates an empty graph.
func Create(ctx context.Context, cache DataCache, desc graph.Descriptor, d *graph.Dump) (*Backend, error) {
	b := &Backend{Memory: graph.NewMemory(desc.ID), cache: cache, desc: desc}
	if d != nil {
		if err := b.Memory.Restore(ctx, d); err != nil {
			return nil, fmt.Errorf("create remote graph %s: %w", desc.ID, err)
		}
	}
	if err := b.upload(ctx, "create"); err != nil {
		return nil, err
	}
	return b, nil
}

// Descriptor returns the descriptor uploaded with each dump.
func (b *Backend) Descriptor() graph.Descriptor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.desc
}

// SetDescriptor replaces the descriptor and uploads.
func (b *Backend) SetDescriptor(ctx context.Context, desc graph.Descriptor) error {
	b.mu.Lock()
	b.desc = desc
	b.mu.Unlock()
	return b.upload(ctx, "set descriptor")
}

// Dirty reports whether the last upload failed.
func (b *Backend) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty
}

// Flush uploads the current graph if a previous upload failed.
func (b *Backend) Flush(ctx context.Context) error {
	if !b.Dirty() {
		return nil
	}
	return b.upload(ctx, "flush")
}

func (b *Backend) upload(ctx context.Context, op string) error {
	d, err := b.Memory.Persist(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	nodes, edges := b.Size()
	b.desc.Size = [2]int{nodes, edges}
	if err := b.cache.Save(ctx, b.desc, d); err != nil {
		b.dirty = true
		slog.Warn("remote upload failed",
			"graph", b.ID(),
			"op", op,
			"error", err)
		return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}
	b.dirty = false
	return nil
}

func (b *Backend) AddNode(ctx context.Context, n *graph.Node) error {
	if err := b.Memory.AddNode(ctx, n); err != nil {
		return err
	}
	return b.upload(ctx, "add node")
}

func (b *Backend) UpdateNode(ctx context.Context, n *graph.Node) error {
	if err := b.Memory.UpdateNode(ctx, n); err != nil {
		return err
	}
	return b.upload(ctx, "update node")
}

func (b *Backend) RemoveNode(ctx context.Context, n *graph.Node) error {
	if err := b.Memory.RemoveNode(ctx, n); err != nil {
		return err
	}
	return b.upload(ctx, "remove node")
}

func (b *Backend) AddEdge(ctx context.Context, e *graph.Edge) error {
	if err := b.Memory.AddEdge(ctx, e); err != nil {
		return err
	}
	return b.upload(ctx, "add edge")
}

func (b *Backend) UpdateEdge(ctx context.Context, e *graph.Edge) error {
	if err := b.Memory.UpdateEdge(ctx, e); err != nil {
		return err
	}
	return b.upload(ctx, "update edge")
}

func (b *Backend) RemoveEdge(ctx context.Context, e *graph.Edge) error {
	if err := b.Memory.RemoveEdge(ctx, e); err != nil {
		return err
	}
	return b.upload(ctx, "remove edge")
}

func (b *Backend) Clear(ctx context.Context) error {
	if err := b.Memory.Clear(ctx); err != nil {
		return err
	}
	return b.upload(ctx, "clear")
}

func (b *Backend) SetCurrent(ctx context.Context, act, lastAction int64) error {
	if err := b.Memory.SetCurrent(ctx, act, lastAction); err != nil {
		return err
	}
	return b.upload(ctx, "set current")
}

func (b *Backend) Restore(ctx context.Context, d *graph.Dump) error {
	if err := b.Memory.Restore(ctx, d); err != nil {
		return err
	}
	return b.upload(ctx, "restore")
}

// Close flushes pending changes.
func (b *Backend) Close() error {
	return b.Flush(context.Background())
}

var _ graph.Backend = (*Backend)(nil)

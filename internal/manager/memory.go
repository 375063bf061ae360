package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/provenance/internal/graph"
)

// MemoryManager keeps graphs in process. Graphs vanish with the process.
type MemoryManager struct {
	opts options

	mu     sync.Mutex
	graphs map[string]*memoryEntry
}

type memoryEntry struct {
	desc    graph.Descriptor
	backend *graph.Memory
}

// NewMemoryManager creates an empty manager with UUIDv7 ids.
func NewMemoryManager(opts ...Option) *MemoryManager {
	return &MemoryManager{
		opts:   buildOptions(UUIDv7Generator{}, opts),
		graphs: make(map[string]*memoryEntry),
	}
}

func (m *MemoryManager) List(_ context.Context) ([]graph.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]graph.Descriptor, 0, len(m.graphs))
	for _, e := range m.graphs {
		out = append(out, withSize(e.desc, e.backend))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS < out[j].TS || (out[i].TS == out[j].TS && out[i].ID < out[j].ID) })
	return out, nil
}

func (m *MemoryManager) lookup(id string) (*memoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.graphs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

func (m *MemoryManager) Get(_ context.Context, desc graph.Descriptor) (graph.Backend, error) {
	e, err := m.lookup(desc.ID)
	if err != nil {
		return nil, err
	}
	return e.backend, nil
}

func (m *MemoryManager) Create(_ context.Context, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error) {
	desc = m.opts.prepare(desc, graph.StorageMemory, true)
	b := graph.NewMemory(desc.ID)

	m.mu.Lock()
	m.graphs[desc.ID] = &memoryEntry{desc: desc, backend: b}
	m.mu.Unlock()
	return desc, b, nil
}

func (m *MemoryManager) Delete(_ context.Context, desc graph.Descriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.graphs[desc.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, desc.ID)
	}
	delete(m.graphs, desc.ID)
	return nil
}

func (m *MemoryManager) Edit(_ context.Context, desc graph.Descriptor, changes Changes) (graph.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.graphs[desc.ID]
	if !ok {
		return graph.Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, desc.ID)
	}
	e.desc = changes.Apply(e.desc)
	return e.desc, nil
}

func (m *MemoryManager) Clone(ctx context.Context, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error) {
	e, err := m.lookup(desc.ID)
	if err != nil {
		return graph.Descriptor{}, nil, err
	}
	d, err := e.backend.Persist(ctx)
	if err != nil {
		return graph.Descriptor{}, nil, fmt.Errorf("clone %s: %w", desc.ID, err)
	}
	clone := e.desc
	clone.Name = cloneName(e.desc.Name)
	return m.Import(ctx, d, clone)
}

func (m *MemoryManager) Import(ctx context.Context, d *graph.Dump, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error) {
	desc, b, err := m.Create(ctx, desc)
	if err != nil {
		return graph.Descriptor{}, nil, err
	}
	if err := b.Restore(ctx, importDump(d, desc.ID)); err != nil {
		_ = m.Delete(ctx, desc)
		return graph.Descriptor{}, nil, fmt.Errorf("import: %w", err)
	}
	return withSize(desc, b), b, nil
}

func (m *MemoryManager) Migrate(ctx context.Context, g graph.Backend, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error) {
	d, err := g.Persist(ctx)
	if err != nil {
		return graph.Descriptor{}, nil, fmt.Errorf("migrate %s: %w", g.ID(), err)
	}
	return m.Import(ctx, d, desc)
}

var _ Manager = (*MemoryManager)(nil)

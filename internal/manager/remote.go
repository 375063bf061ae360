package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/provenance/internal/graph"
	"github.com/roach88/provenance/internal/storage/remote"
)

// RemoteManager keeps graphs in a remote data cache. Ids are ULIDs.
type RemoteManager struct {
	cache remote.DataCache
	opts  options

	mu   sync.Mutex
	open map[string]*remote.Backend
}

// NewRemoteManager creates a manager over cache.
func NewRemoteManager(cache remote.DataCache, opts ...Option) *RemoteManager {
	return &RemoteManager{
		cache: cache,
		opts:  buildOptions(ULIDGenerator{}, opts),
		open:  make(map[string]*remote.Backend),
	}
}

func notFound(id string, err error) error {
	if errors.Is(err, remote.ErrNotFound) {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, id, err)
	}
	return err
}

func (m *RemoteManager) List(ctx context.Context) ([]graph.Descriptor, error) {
	descs, err := m.cache.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", remote.ErrStorage, err)
	}
	return descs, nil
}

func (m *RemoteManager) Get(ctx context.Context, desc graph.Descriptor) (graph.Backend, error) {
	return m.backend(ctx, desc.ID)
}

func (m *RemoteManager) backend(ctx context.Context, id string) (*remote.Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.open[id]; ok {
		return b, nil
	}
	b, err := remote.Open(ctx, m.cache, id)
	if err != nil {
		return nil, notFound(id, err)
	}
	m.open[id] = b
	return b, nil
}

func (m *RemoteManager) Create(ctx context.Context, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error) {
	return m.create(ctx, desc, nil)
}

func (m *RemoteManager) create(ctx context.Context, desc graph.Descriptor, d *graph.Dump) (graph.Descriptor, graph.Backend, error) {
	desc = m.opts.prepare(desc, graph.StorageRemote, false)
	if d != nil {
		d = importDump(d, desc.ID)
	}
	b, err := remote.Create(ctx, m.cache, desc, d)
	if err != nil {
		return graph.Descriptor{}, nil, fmt.Errorf("create graph: %w", err)
	}
	m.mu.Lock()
	m.open[desc.ID] = b
	m.mu.Unlock()
	return b.Descriptor(), b, nil
}

func (m *RemoteManager) Delete(ctx context.Context, desc graph.Descriptor) error {
	if err := m.cache.Delete(ctx, desc.ID); err != nil {
		return notFound(desc.ID, fmt.Errorf("%w: %w", remote.ErrStorage, err))
	}
	m.mu.Lock()
	delete(m.open, desc.ID)
	m.mu.Unlock()
	return nil
}

func (m *RemoteManager) Edit(ctx context.Context, desc graph.Descriptor, changes Changes) (graph.Descriptor, error) {
	b, err := m.backend(ctx, desc.ID)
	if err != nil {
		return graph.Descriptor{}, err
	}
	updated := changes.Apply(b.Descriptor())
	if err := b.SetDescriptor(ctx, updated); err != nil {
		return graph.Descriptor{}, fmt.Errorf("edit graph %s: %w", desc.ID, err)
	}
	return b.Descriptor(), nil
}

func (m *RemoteManager) Clone(ctx context.Context, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error) {
	src, err := m.backend(ctx, desc.ID)
	if err != nil {
		return graph.Descriptor{}, nil, err
	}
	d, err := src.Persist(ctx)
	if err != nil {
		return graph.Descriptor{}, nil, fmt.Errorf("clone %s: %w", desc.ID, err)
	}
	clone := src.Descriptor()
	clone.Name = cloneName(clone.Name)
	return m.create(ctx, clone, d)
}

// Import uploads d as a new remote graph in a single write.
func (m *RemoteManager) Import(ctx context.Context, d *graph.Dump, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error) {
	return m.create(ctx, desc, d)
}

// Migrate uploads the full dump of g to a freshly created remote graph.
func (m *RemoteManager) Migrate(ctx context.Context, g graph.Backend, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error) {
	d, err := g.Persist(ctx)
	if err != nil {
		return graph.Descriptor{}, nil, fmt.Errorf("migrate %s: %w", g.ID(), err)
	}
	return m.create(ctx, desc, d)
}

var _ Manager = (*RemoteManager)(nil)

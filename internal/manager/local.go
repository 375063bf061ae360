package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/provenance/internal/graph"
	"github.com/roach88/provenance/internal/storage/local"
)

// LocalManager keeps graphs in a key/value store under a key prefix.
// The descriptor index lives at ${prefix}_provenance_graphs.
type LocalManager struct {
	kv      local.KV
	prefix  string
	storage graph.Storage
	opts    options

	mu   sync.Mutex
	open map[string]*local.Backend
}

// NewLocalManager creates a manager over kv. storage is recorded on every
// descriptor it creates: graph.StorageLocal for a durable KV,
// graph.StorageSession for a process-lifetime one.
func NewLocalManager(kv local.KV, prefix string, storage graph.Storage, opts ...Option) *LocalManager {
	return &LocalManager{
		kv:      kv,
		prefix:  prefix,
		storage: storage,
		opts:    buildOptions(UUIDv7Generator{}, opts),
		open:    make(map[string]*local.Backend),
	}
}

func (m *LocalManager) readIndex(ctx context.Context) ([]string, error) {
	raw, ok, err := m.kv.Get(ctx, local.GraphListKey(m.prefix))
	if err != nil {
		return nil, fmt.Errorf("read graph index: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("read graph index: %w", err)
	}
	return ids, nil
}

func (m *LocalManager) readDescriptor(ctx context.Context, id string) (graph.Descriptor, error) {
	raw, ok, err := m.kv.Get(ctx, local.DescriptorKey(m.prefix, id))
	if err != nil {
		return graph.Descriptor{}, fmt.Errorf("read descriptor %s: %w", id, err)
	}
	if !ok {
		return graph.Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var desc graph.Descriptor
	if err := json.Unmarshal([]byte(raw), &desc); err != nil {
		return graph.Descriptor{}, fmt.Errorf("read descriptor %s: %w", id, err)
	}
	return desc, nil
}

func (m *LocalManager) writeIndex(ctx context.Context, ids []string, desc *graph.Descriptor, drop string) error {
	if ids == nil {
		ids = []string{}
	}
	set := make(map[string]string, 2)
	rawIDs, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	set[local.GraphListKey(m.prefix)] = string(rawIDs)
	if desc != nil {
		rawDesc, err := json.Marshal(desc)
		if err != nil {
			return err
		}
		set[local.DescriptorKey(m.prefix, desc.ID)] = string(rawDesc)
	}
	var del []string
	if drop != "" {
		del = append(del, local.DescriptorKey(m.prefix, drop))
	}
	return m.kv.Apply(ctx, set, del)
}

func (m *LocalManager) List(ctx context.Context) ([]graph.Descriptor, error) {
	ids, err := m.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]graph.Descriptor, 0, len(ids))
	for _, id := range ids {
		desc, err := m.readDescriptor(ctx, id)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		b := m.open[id]
		m.mu.Unlock()
		if b != nil {
			desc = withSize(desc, b)
		}
		out = append(out, desc)
	}
	return out, nil
}

func (m *LocalManager) Get(ctx context.Context, desc graph.Descriptor) (graph.Backend, error) {
	return m.backend(ctx, desc.ID)
}

func (m *LocalManager) backend(ctx context.Context, id string) (*local.Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.open[id]; ok {
		return b, nil
	}
	if _, err := m.readDescriptor(ctx, id); err != nil {
		return nil, err
	}
	b, err := local.Open(ctx, m.kv, id)
	if err != nil {
		return nil, err
	}
	m.open[id] = b
	return b, nil
}

func (m *LocalManager) Create(ctx context.Context, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error) {
	desc = m.opts.prepare(desc, m.storage, true)

	ids, err := m.readIndex(ctx)
	if err != nil {
		return graph.Descriptor{}, nil, err
	}
	if err := m.writeIndex(ctx, append(ids, desc.ID), &desc, ""); err != nil {
		return graph.Descriptor{}, nil, fmt.Errorf("create graph: %w", err)
	}
	b, err := m.backend(ctx, desc.ID)
	if err != nil {
		return graph.Descriptor{}, nil, err
	}
	return desc, b, nil
}

func (m *LocalManager) Delete(ctx context.Context, desc graph.Descriptor) error {
	b, err := m.backend(ctx, desc.ID)
	if err != nil {
		return err
	}
	if err := b.Delete(ctx); err != nil {
		return fmt.Errorf("delete graph %s: %w", desc.ID, err)
	}

	ids, err := m.readIndex(ctx)
	if err != nil {
		return err
	}
	ids = slices.DeleteFunc(ids, func(id string) bool { return id == desc.ID })
	if err := m.writeIndex(ctx, ids, nil, desc.ID); err != nil {
		return fmt.Errorf("delete graph %s: %w", desc.ID, err)
	}

	m.mu.Lock()
	delete(m.open, desc.ID)
	m.mu.Unlock()
	return nil
}

func (m *LocalManager) Edit(ctx context.Context, desc graph.Descriptor, changes Changes) (graph.Descriptor, error) {
	current, err := m.readDescriptor(ctx, desc.ID)
	if err != nil {
		return graph.Descriptor{}, err
	}
	updated := changes.Apply(current)
	ids, err := m.readIndex(ctx)
	if err != nil {
		return graph.Descriptor{}, err
	}
	if err := m.writeIndex(ctx, ids, &updated, ""); err != nil {
		return graph.Descriptor{}, fmt.Errorf("edit graph %s: %w", desc.ID, err)
	}
	return updated, nil
}

func (m *LocalManager) Clone(ctx context.Context, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error) {
	src, err := m.backend(ctx, desc.ID)
	if err != nil {
		return graph.Descriptor{}, nil, err
	}
	current, err := m.readDescriptor(ctx, desc.ID)
	if err != nil {
		return graph.Descriptor{}, nil, err
	}
	d, err := src.Persist(ctx)
	if err != nil {
		return graph.Descriptor{}, nil, fmt.Errorf("clone %s: %w", desc.ID, err)
	}
	current.Name = cloneName(current.Name)
	return m.Import(ctx, d, current)
}

func (m *LocalManager) Import(ctx context.Context, d *graph.Dump, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error) {
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

func (m *LocalManager) Migrate(ctx context.Context, g graph.Backend, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error) {
	d, err := g.Persist(ctx)
	if err != nil {
		return graph.Descriptor{}, nil, fmt.Errorf("migrate %s: %w", g.ID(), err)
	}
	return m.Import(ctx, d, desc)
}

var _ Manager = (*LocalManager)(nil)

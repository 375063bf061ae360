package manager

import (
	"context"
	"fmt"

	"github.com/roach88/provenance/internal/graph"
)

// MixedManager routes each call to its local or remote manager by the
// descriptor's Local flag. List merges both, local graphs first.
type MixedManager struct {
	Local  Manager
	Remote Manager
}

// NewMixedManager creates a router over the two managers.
func NewMixedManager(local, remote Manager) *MixedManager {
	return &MixedManager{Local: local, Remote: remote}
}

func (m *MixedManager) route(desc graph.Descriptor) Manager {
	if desc.Local {
		return m.Local
	}
	return m.Remote
}

// List fails if either side fails; a remote outage is surfaced rather than
// hidden behind a partial listing.
func (m *MixedManager) List(ctx context.Context) ([]graph.Descriptor, error) {
	locals, err := m.Local.List(ctx)
	if err != nil {
		return nil, err
	}
	remotes, err := m.Remote.List(ctx)
	if err != nil {
		return nil, err
	}
	return append(locals, remotes...), nil
}

func (m *MixedManager) Get(ctx context.Context, desc graph.Descriptor) (graph.Backend, error) {
	return m.route(desc).Get(ctx, desc)
}

func (m *MixedManager) Create(ctx context.Context, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error) {
	return m.route(desc).Create(ctx, desc)
}

func (m *MixedManager) Delete(ctx context.Context, desc graph.Descriptor) error {
	return m.route(desc).Delete(ctx, desc)
}

func (m *MixedManager) Edit(ctx context.Context, desc graph.Descriptor, changes Changes) (graph.Descriptor, error) {
	return m.route(desc).Edit(ctx, desc, changes)
}

func (m *MixedManager) Clone(ctx context.Context, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error) {
	return m.route(desc).Clone(ctx, desc)
}

func (m *MixedManager) Import(ctx context.Context, d *graph.Dump, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error) {
	return m.route(desc).Import(ctx, d, desc)
}

// Migrate moves a local graph to the remote manager.
func (m *MixedManager) Migrate(ctx context.Context, g graph.Backend, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error) {
	return m.Remote.Migrate(ctx, g, desc)
}

// Find returns the descriptor with the given id from either side.
func (m *MixedManager) Find(ctx context.Context, id string) (graph.Descriptor, error) {
	return FindByID(ctx, m, id)
}

// FindByID lists mgr and returns the descriptor with id.
func FindByID(ctx context.Context, mgr Manager, id string) (graph.Descriptor, error) {
	descs, err := mgr.List(ctx)
	if err != nil {
		return graph.Descriptor{}, err
	}
	for _, d := range descs {
		if d.ID == id {
			return d, nil
		}
	}
	return graph.Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

var _ Manager = (*MixedManager)(nil)

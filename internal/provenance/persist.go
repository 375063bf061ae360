package provenance

import (
	"context"
	"log/slog"

	"github.com/roach88/provenance/internal/graph"
)

// Persist returns the dump of the graph, current pointers included.
func (g *Graph) Persist(ctx context.Context) (*graph.Dump, error) {
	var out *graph.Dump
	err := g.submit(ctx, "persist", func(ctx context.Context) error {
		d, err := g.store().Persist(ctx)
		out = d
		return opError("persist", "", err)
	})
	return out, err
}

// Restore replaces the graph with d. Object values are not part of a dump;
// they come back when the actions creating them are replayed.
func (g *Graph) Restore(ctx context.Context, d *graph.Dump) error {
	return g.submit(ctx, "restore", func(ctx context.Context) error {
		if err := g.store().Restore(ctx, d); err != nil {
			return opError("restore", "", err)
		}
		g.ids.Advance(d.MaxID())
		return opError("restore", "", g.attach(ctx))
	})
}

// Clear removes everything and starts over from a fresh root state.
func (g *Graph) Clear(ctx context.Context) error {
	return g.submit(ctx, "clear", func(ctx context.Context) error {
		if err := g.store().Clear(ctx); err != nil {
			return opError("clear", "", err)
		}
		return opError("clear", "", g.attach(ctx))
	})
}

// Migrator moves a graph to another storage. *manager.MixedManager and the
// individual managers satisfy it.
type Migrator interface {
	Migrate(ctx context.Context, g graph.Backend, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error)
}

// Migrate copies the graph into the storage of m and continues on the new
// backend. Listeners stay subscribed and object values are carried over.
// The old backend is left as it was.
func (g *Graph) Migrate(ctx context.Context, m Migrator) (graph.Descriptor, error) {
	var out graph.Descriptor
	err := g.submit(ctx, "migrate", func(ctx context.Context) error {
		old := g.store()
		desc, next, err := m.Migrate(ctx, old, g.Descriptor())
		if err != nil {
			return opError("migrate", old.ID(), err)
		}

		for _, n := range next.Nodes() {
			if prev, ok := old.Node(n.ID()); ok {
				n.Payload = prev.Payload
			}
		}
		next.Bind(g.events)
		g.backend.Store(&backendRef{next})
		g.desc.Store(&desc)
		if err := g.attach(ctx); err != nil {
			return opError("migrate", next.ID(), err)
		}

		slog.Info("provenance graph migrated",
			"from", old.ID(),
			"to", next.ID(),
			"storage", desc.Storage,
		)
		g.fire(EventMigrated, nil, desc)
		out = desc
		return nil
	})
	return out, err
}

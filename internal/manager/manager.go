// Package manager creates, lists, deletes, clones and migrates whole graph
// instances across storage backends.
//
// MemoryManager keeps graphs in process, LocalManager in a key/value store,
// RemoteManager in a remote data cache. MixedManager routes each call to
// its local or remote sub-manager by the descriptor's Local flag.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/provenance/internal/graph"
)

// ErrNotFound is returned when a graph id is unknown to the manager.
var ErrNotFound = errors.New("graph not found")

// Manager is the set of graph-level operations exposed to collaborators.
//
// Get returns the live backend for a graph; repeated calls for the same id
// return the same backend so every caller observes one timeline.
type Manager interface {
	List(ctx context.Context) ([]graph.Descriptor, error)
	Get(ctx context.Context, desc graph.Descriptor) (graph.Backend, error)
	Create(ctx context.Context, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error)
	Delete(ctx context.Context, desc graph.Descriptor) error
	Edit(ctx context.Context, desc graph.Descriptor, changes Changes) (graph.Descriptor, error)
	Clone(ctx context.Context, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error)
	Import(ctx context.Context, d *graph.Dump, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error)

	// Migrate copies the full dump of g into a fresh graph owned by this
	// manager. The source graph is left in place.
	Migrate(ctx context.Context, g graph.Backend, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error)
}

// Changes lists the descriptor fields Edit may modify. Nil fields are kept.
type Changes struct {
	Name        *string
	Description *string
	Permissions *int
	Of          *string
}

// Apply returns desc with the changes applied.
func (c Changes) Apply(desc graph.Descriptor) graph.Descriptor {
	if c.Name != nil {
		desc.Name = *c.Name
	}
	if c.Description != nil {
		desc.Description = *c.Description
	}
	if c.Permissions != nil {
		desc.Permissions = *c.Permissions
	}
	if c.Of != nil {
		desc.Attrs.Of = *c.Of
	}
	return desc
}

// Filter returns the descriptors whose name matches the doublestar glob
// pattern. An empty pattern matches everything.
func Filter(descs []graph.Descriptor, pattern string) ([]graph.Descriptor, error) {
	if pattern == "" {
		return descs, nil
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("filter: invalid pattern %q", pattern)
	}
	var out []graph.Descriptor
	for _, d := range descs {
		if ok, _ := doublestar.Match(pattern, d.Name); ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// cloneName is the display name of a cloned graph.
func cloneName(name string) string {
	return "Clone of " + name
}

// importDump rebinds a dump to a new graph id.
func importDump(d *graph.Dump, id string) *graph.Dump {
	cp := *d
	cp.Root = id
	return &cp
}

// withSize refreshes the size field from a live backend.
func withSize(desc graph.Descriptor, b graph.Backend) graph.Descriptor {
	if b != nil {
		n, e := b.Size()
		desc.Size = [2]int{n, e}
	}
	return desc
}

// Clock returns the current time. Replaceable for deterministic tests.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// Option configures a manager.
type Option func(*options)

type options struct {
	ids     IDGenerator
	clock   Clock
	creator string
}

// WithIDGenerator replaces the default id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithClock sets the clock used for descriptor timestamps.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithCreator sets the creator recorded on new descriptors.
func WithCreator(name string) Option {
	return func(o *options) { o.creator = name }
}

func buildOptions(defaultIDs IDGenerator, opts []Option) options {
	o := options{ids: defaultIDs}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// prepare assigns a fresh id and fills descriptor defaults.
func (o options) prepare(desc graph.Descriptor, storage graph.Storage, local bool) graph.Descriptor {
	desc.ID = o.ids.Generate()
	desc.TS = 0
	desc = desc.WithDefaults(o.clock.now())
	desc.Storage = storage
	desc.Local = local
	if desc.Creator == "" {
		desc.Creator = o.creator
	}
	if desc.Name == "" {
		desc.Name = "Untitled"
	}
	return desc
}

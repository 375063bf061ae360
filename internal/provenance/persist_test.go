package provenance

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provenance/internal/graph"
	"github.com/roach88/provenance/internal/storage/local"
)

func TestPersist_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rx := f.push(createCmd("X"))
	f.push(renameCmd(created(rx), "Y"))
	f.push(createCmd("Z"))
	require.NoError(t, f.g.Undo(ctx))

	d, err := f.g.Persist(ctx)
	require.NoError(t, err)
	want, err := graph.EncodeDump(d)
	require.NoError(t, err)

	other := newFixtureWith(t, graph.NewMemory("g1"))
	require.NoError(t, other.g.Restore(ctx, d))

	d2, err := other.g.Persist(ctx)
	require.NoError(t, err)
	got, err := graph.EncodeDump(d2)
	require.NoError(t, err)

	assert.JSONEq(t, string(want), string(got))
	assert.Equal(t, f.g.Act().ID(), other.g.Act().ID())
	n1, e1 := f.size()
	n2, e2 := other.size()
	assert.Equal(t, n1, n2)
	assert.Equal(t, e1, e2)

	// New ids never collide with restored ones.
	res := other.push(createCmd("W"))
	assert.Greater(t, res.Action.ID(), d.MaxID())
}

func TestClear_StartsOver(t *testing.T) {
	f := newFixture(t)
	f.push(createCmd("X"))

	require.NoError(t, f.g.Clear(context.Background()))

	require.Len(t, f.g.States(), 1)
	assert.Equal(t, RootStateName, f.g.Act().Name())
	assert.Empty(t, f.g.Actions())
	assert.Empty(t, f.g.Objects())
	assert.Equal(t, 1, f.rec.Count(graph.EventClear))
}

func TestGraph_SQLiteRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "provenance.db")

	kv, err := local.OpenSQLite(path)
	require.NoError(t, err)
	b, err := local.Open(ctx, kv, "persisted")
	require.NoError(t, err)
	f := newFixtureWith(t, b)
	res := f.push(createCmd("X"))
	nodes, edges := f.size()
	require.NoError(t, f.g.Close())
	require.NoError(t, kv.Close())

	kv2, err := local.OpenSQLite(path)
	require.NoError(t, err)
	defer kv2.Close()
	b2, err := local.Open(ctx, kv2, "persisted")
	require.NoError(t, err)
	g2, err := New(ctx, b2, f.reg)
	require.NoError(t, err)

	assert.Equal(t, res.State.ID(), g2.Act().ID())
	n, e := b2.Size()
	assert.Equal(t, nodes, n)
	assert.Equal(t, edges, e)
	x, ok := g2.ObjectByID(created(res).ID())
	require.True(t, ok)
	assert.Equal(t, "X", x.Name())
	assert.Nil(t, x.Value(), "values are not persisted")
}

// copyMigrator restores the dump into a fresh in-memory backend.
type copyMigrator struct {
	id string
}

func (m copyMigrator) Migrate(ctx context.Context, g graph.Backend, desc graph.Descriptor) (graph.Descriptor, graph.Backend, error) {
	d, err := g.Persist(ctx)
	if err != nil {
		return graph.Descriptor{}, nil, err
	}
	next := graph.NewMemory(m.id)
	if err := next.Restore(ctx, d); err != nil {
		return graph.Descriptor{}, nil, err
	}
	desc.ID = m.id
	desc.Local = false
	desc.Storage = graph.StorageRemote
	return desc, next, nil
}

func TestMigrate_SwapsBackendKeepingListeners(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.g.Backend()
	rx := f.push(createCmd("X"))
	oldNodes, _ := old.Size()

	desc, err := f.g.Migrate(ctx, copyMigrator{id: "g2"})
	require.NoError(t, err)

	assert.Equal(t, "g2", desc.ID)
	assert.Equal(t, "g2", f.g.ID())
	assert.Equal(t, graph.StorageRemote, f.g.Descriptor().Storage)
	assert.Equal(t, 1, f.rec.Count(EventMigrated))

	x, ok := f.g.ObjectByID(created(rx).ID())
	require.True(t, ok)
	assert.NotNil(t, x.Value(), "object values are carried over")

	f.rec.Reset()
	f.push(createCmd("Y"))
	assert.Equal(t, 1, f.rec.Count(EventExecutedFirst), "listeners survive the swap")

	n, _ := old.Size()
	assert.Equal(t, oldNodes, n, "the old backend is left alone")
}

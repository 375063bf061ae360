package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provenance/internal/graph"
	"github.com/roach88/provenance/internal/ir"
	"github.com/roach88/provenance/internal/provenance"
	"github.com/roach88/provenance/internal/testutil"
)

func newDemoGraph(t *testing.T, b graph.Backend) *provenance.Graph {
	t.Helper()
	reg := provenance.NewRegistry()
	require.NoError(t, RegisterDemo(reg))

	ctx, cancel := context.WithCancel(context.Background())
	g, err := provenance.New(ctx, b, reg, provenance.WithClock(testutil.NewDeterministicClock().Now))
	require.NoError(t, err)
	g.Start(ctx)
	t.Cleanup(func() {
		_ = g.Close()
		cancel()
	})
	return g
}

func TestRegisterDemo_IDs(t *testing.T) {
	reg := provenance.NewRegistry()
	require.NoError(t, RegisterDemo(reg))
	assert.Equal(t, []string{FnCreate, FnFail, FnRemove, FnRename, FnSet}, reg.IDs())
}

func TestDemo_ValuesFollowUndo(t *testing.T) {
	ctx := context.Background()
	g := newDemoGraph(t, graph.NewMemory("demo"))

	res, err := g.PushWithResult(ctx, CreateCommand("a", 1))
	require.NoError(t, err)
	obj := res.Action.Creates()[0]
	item := obj.Value().(*Item)
	assert.Equal(t, int64(1), item.Value)

	var cmd provenance.Command
	require.NoError(t, g.Do(ctx, func(context.Context) error {
		cmd = SetCommand(obj, 4)
		return nil
	}))
	assert.Equal(t, ir.IRInt(1), cmd.Parameters["from"])
	_, err = g.Push(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, int64(4), item.Value)

	require.NoError(t, g.Undo(ctx))
	assert.Equal(t, int64(1), item.Value)
}

// Restoring a dump drops run-time inverses; the registered ones take over.
func TestDemo_RegisteredInversesAfterRestore(t *testing.T) {
	ctx := context.Background()
	src := newDemoGraph(t, graph.NewMemory("src"))

	res, err := src.PushWithResult(ctx, CreateCommand("a", 0))
	require.NoError(t, err)
	obj := res.Action.Creates()[0]
	var rename provenance.Command
	require.NoError(t, src.Do(ctx, func(context.Context) error {
		rename = RenameCommand(obj, "b")
		return nil
	}))
	_, err = src.Push(ctx, rename)
	require.NoError(t, err)

	dump, err := src.Persist(ctx)
	require.NoError(t, err)

	require.NoError(t, src.Restore(ctx, dump))

	require.NoError(t, src.Undo(ctx))
	var names []string
	require.NoError(t, src.Do(ctx, func(context.Context) error {
		for _, o := range src.Act().ConsistsOf() {
			names = append(names, o.Name())
		}
		return nil
	}))
	assert.Equal(t, []string{"a"}, names)
}

func TestDemoCommand_InputCounts(t *testing.T) {
	_, err := DemoCommand(FnRename, nil, ir.IRObject{})
	assert.ErrorContains(t, err, "want 1 inputs, got 0")

	cmd, err := DemoCommand(FnCreate, nil, ir.Object(ir.O("name", ir.IRString("x")), ir.O("value", ir.IRInt(2))))
	require.NoError(t, err)
	assert.Equal(t, "Create x", cmd.Meta.Name)
	assert.Equal(t, ir.IRInt(2), cmd.Parameters["value"])

	cmd, err = DemoCommand("custom", nil, ir.IRObject{})
	require.NoError(t, err)
	assert.Equal(t, provenance.CategoryCustom, cmd.Meta.Category)
}

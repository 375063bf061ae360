package provenance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forkFixture builds
//
//	S0 -create A-> S1 -rename A-> S2 -create B-> S3
//	S0 -create C-> S4 (current)
type forkFixture struct {
	*fixture
	s0, s1, s2, s3, s4 StateNode
	createA, rename    ActionNode
	createB, createC   ActionNode
	a, b, c            ObjectNode
}

func newForkFixture(t *testing.T) *forkFixture {
	t.Helper()
	f := &forkFixture{fixture: newFixture(t)}
	ctx := context.Background()
	f.s0 = f.g.Act()

	ra := f.push(createCmd("A"))
	f.s1, f.createA, f.a = ra.State, ra.Action, created(ra)
	rr := f.push(renameCmd(f.a, "A2"))
	f.s2, f.rename = rr.State, rr.Action
	rb := f.push(createCmd("B"))
	f.s3, f.createB, f.b = rb.State, rb.Action, created(rb)

	require.NoError(t, f.g.JumpTo(ctx, f.s0.ID()))
	rc := f.push(createCmd("C"))
	f.s4, f.createC, f.c = rc.State, rc.Action, created(rc)
	return f
}

func TestFork_PrunesActionsWithMissingInputs(t *testing.T) {
	f := newForkFixture(t)
	f.rec.Reset()

	copies, err := f.g.Fork(context.Background(), f.rename.ID(), f.s4.ID(), nil)
	require.NoError(t, err)

	require.Len(t, copies, 1, "rename needs A, which does not exist below S4")
	cp := copies[0]
	assert.Equal(t, "create", cp.FunctionID())
	assert.True(t, cp.IsForked())
	assert.False(t, cp.Executed())
	assert.Equal(t, objectIDs(f.createB.Creates()), objectIDs(cp.Creates()), "copies share created objects")

	prev, ok := cp.PreviousState()
	require.True(t, ok)
	assert.Equal(t, f.s4.ID(), prev.ID(), "descendants of a pruned action attach to its parent")
	state, ok := cp.ResultsIn()
	require.True(t, ok)
	assert.Equal(t, []int64{f.c.ID(), f.b.ID()}, memberIDs(state))

	assert.Equal(t, f.s4.ID(), f.g.Act().ID(), "fork does not move the current state")
	assert.Equal(t, 1, f.rec.Count(EventForkedBranch))
}

func TestFork_WithReplacements(t *testing.T) {
	f := newForkFixture(t)

	copies, err := f.g.Fork(context.Background(), f.rename.ID(), f.s4.ID(), map[int64]int64{f.a.ID(): f.c.ID()})
	require.NoError(t, err)

	require.Len(t, copies, 2)
	assert.Equal(t, "rename", copies[0].FunctionID())
	assert.Equal(t, []int64{f.c.ID()}, objectIDs(copies[0].Requires()))
	assert.Equal(t, f.rename.Parameters(), copies[0].Parameters())

	next, ok := copies[1].PreviousState()
	require.True(t, ok)
	renamed, _ := copies[0].ResultsIn()
	assert.Equal(t, renamed.ID(), next.ID())
}

func TestFork_NoDanglingReferences(t *testing.T) {
	f := newForkFixture(t)

	copies, err := f.g.Fork(context.Background(), f.createA.ID(), f.s4.ID(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, copies)

	for _, cp := range copies {
		prev, ok := cp.PreviousState()
		require.True(t, ok)
		members := make(map[int64]bool)
		for _, o := range prev.ConsistsOf() {
			members[o.ID()] = true
		}
		for _, o := range append(cp.Requires(), cp.Removes()...) {
			assert.True(t, members[o.ID()], "%s references %s outside its ancestry", cp, o)
		}
	}
}

func TestFork_RejectsTargetInsideSubtree(t *testing.T) {
	f := newForkFixture(t)
	nodes, edges := f.size()

	for _, target := range []StateNode{f.s1, f.s2, f.s3} {
		_, err := f.g.Fork(context.Background(), f.createA.ID(), target.ID(), nil)
		assert.ErrorIs(t, err, ErrInvalidFork, "target %s", target)
	}

	n, e := f.size()
	assert.Equal(t, nodes, n, "no partial mutation")
	assert.Equal(t, edges, e)
}

func TestFork_RejectsInverseAction(t *testing.T) {
	f := newForkFixture(t)
	inv, ok := f.createB.InverseAction()
	require.True(t, ok)

	_, err := f.g.Fork(context.Background(), inv.ID(), f.s4.ID(), nil)
	assert.ErrorIs(t, err, ErrInvalidFork)
}

func TestFork_UnknownIDs(t *testing.T) {
	f := newForkFixture(t)
	ctx := context.Background()

	_, err := f.g.Fork(ctx, 9999, f.s4.ID(), nil)
	assert.True(t, IsNotFound(err))
	_, err = f.g.Fork(ctx, f.rename.ID(), 9999, nil)
	assert.True(t, IsNotFound(err))
	_, err = f.g.Fork(ctx, f.rename.ID(), f.s4.ID(), map[int64]int64{f.a.ID(): 9999})
	assert.True(t, IsNotFound(err))
}

func TestFork_JumpIntoForkedBranch(t *testing.T) {
	f := newForkFixture(t)
	ctx := context.Background()

	copies, err := f.g.Fork(ctx, f.rename.ID(), f.s4.ID(), nil)
	require.NoError(t, err)
	target, ok := copies[0].ResultsIn()
	require.True(t, ok)

	require.NoError(t, f.g.JumpTo(ctx, target.ID()))

	assert.Equal(t, target.ID(), f.g.Act().ID())
	assert.True(t, copies[0].Executed())
	assert.NotNil(t, f.b.Value())
}

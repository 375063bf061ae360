package provenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provenance/internal/graph"
	"github.com/roach88/provenance/internal/ir"
)

func TestNew_CreatesRootState(t *testing.T) {
	f := newFixture(t)

	act := f.g.Act()
	require.NotNil(t, act.Node)
	assert.Equal(t, RootStateName, act.Name())
	assert.Empty(t, act.ConsistsOf())
	assert.Len(t, f.g.States(), 1)

	_, ok := f.g.LastAction()
	assert.False(t, ok)
}

func TestNew_ResumesPersistedCurrentState(t *testing.T) {
	f := newFixture(t)
	res := f.push(createCmd("X"))

	d, err := f.g.Persist(context.Background())
	require.NoError(t, err)

	mem := graph.NewMemory("g1")
	require.NoError(t, mem.Restore(context.Background(), d))
	g2, err := New(context.Background(), mem, f.reg)
	require.NoError(t, err)

	assert.Equal(t, res.State.ID(), g2.Act().ID())
	assert.Len(t, g2.States(), 2, "no second root is created")
}

func TestGraph_ExampleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s0 := f.g.Act()

	r1 := f.push(createCmd("X"))
	s1 := r1.State
	x := created(r1)
	assert.Equal(t, []string{"X"}, memberNames(s1))

	r2 := f.push(renameCmd(x, "Y"))
	assert.Equal(t, []int64{x.ID()}, memberIDs(r2.State), "rename keeps the object node")
	assert.Equal(t, "Y", x.Name())

	require.NoError(t, f.g.Undo(ctx))
	assert.Equal(t, s1.ID(), f.g.Act().ID())
	assert.Equal(t, []string{"X"}, memberNames(f.g.Act()))
	assert.Equal(t, "X", x.Value().(*cell).name)

	require.NoError(t, f.g.JumpTo(ctx, s0.ID()))
	assert.Equal(t, s0.ID(), f.g.Act().ID())
	assert.Empty(t, f.g.Act().ConsistsOf())
	assert.Nil(t, x.Value(), "removed object is freed")
}

func TestPush_FiresEventsInOrder(t *testing.T) {
	f := newFixture(t)
	f.rec.Reset()

	f.push(createCmd("X"))

	assert.Equal(t, []string{
		EventAddAction,
		EventExecute,
		EventAddObject,
		EventAddState,
		EventSwitchState,
		EventSwitchAction,
		EventExecuted,
		EventExecutedFirst,
	}, f.rec.Names(
		EventAddAction, EventExecute, EventAddObject, EventAddState,
		EventSwitchState, EventSwitchAction, EventExecuted, EventExecutedFirst,
	))
}

func TestPush_RecordsActionAttributes(t *testing.T) {
	f := newFixture(t)

	res := f.push(createCmd("X"))
	a := res.Action

	assert.Equal(t, "create", a.FunctionID())
	assert.Equal(t, "Create X", a.Meta().Name)
	assert.Equal(t, CategoryData, a.Meta().Category)
	assert.Equal(t, OperationCreate, a.Meta().Operation)
	assert.Equal(t, "tester", a.Meta().User)
	assert.False(t, a.Meta().Timestamp.IsZero())
	assert.True(t, a.Executed())
	assert.False(t, a.IsInverse())
	assert.Equal(t, ir.IRString("X"), a.Parameters()["name"])

	prev, ok := a.PreviousState()
	require.True(t, ok)
	assert.Equal(t, RootStateName, prev.Name())
	assert.Equal(t, "Create X", res.State.Name())

	last, ok := f.g.LastAction()
	require.True(t, ok)
	assert.Equal(t, a.ID(), last.ID())
}

func TestPush_LoopReuse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.push(createCmd("X"))
	require.NoError(t, f.g.Undo(ctx))
	states := len(f.g.States())

	again := f.push(createCmd("X"))

	assert.True(t, again.Reused)
	assert.Equal(t, first.Action.ID(), again.Action.ID())
	assert.Equal(t, first.State.ID(), again.State.ID())
	assert.Len(t, f.g.States(), states, "no new state for an identical push")
	assert.NotNil(t, created(again).Value(), "replay re-hydrates the object")
}

func TestPush_DifferentParametersCreateNewState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.push(createCmd("X"))
	require.NoError(t, f.g.Undo(ctx))
	res := f.push(createCmd("Z"))

	assert.False(t, res.Reused)
	assert.Len(t, f.g.States(), 3)
}

func TestPush_CommandFailureLeavesGraphUntouched(t *testing.T) {
	f := newFixture(t)
	f.push(createCmd("X"))
	nodes, edges := f.size()
	act := f.g.Act().ID()
	last, _ := f.g.LastAction()

	_, err := f.g.Push(context.Background(), Command{
		Meta:       ActionMeta{Name: "Broken"},
		FunctionID: "fail",
		Inputs:     []ObjectRef{{Name: "fresh", Value: &cell{name: "fresh"}}},
	})

	require.Error(t, err)
	assert.True(t, IsCommandFailure(err))
	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "push", opErr.Op)
	assert.Contains(t, err.Error(), "boom")

	n, e := f.size()
	assert.Equal(t, nodes, n)
	assert.Equal(t, edges, e)
	assert.Equal(t, act, f.g.Act().ID())
	now, _ := f.g.LastAction()
	assert.Equal(t, last.ID(), now.ID())
}

func TestPush_CommandFailureRevertsHandleWrites(t *testing.T) {
	f := newFixture(t)
	o := created(f.push(createCmd("A")))
	value := o.Value()
	before, err := f.g.Persist(context.Background())
	require.NoError(t, err)

	_, err = f.g.Push(context.Background(), Command{
		FunctionID: "rename_then_fail",
		Inputs:     []ObjectRef{Ref(o)},
	})

	require.Error(t, err)
	assert.True(t, IsCommandFailure(err))
	after, err := f.g.Persist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, "A", o.Name())
	assert.Same(t, value, o.Value())
}

func TestPush_CommandFailureRestoresInputValue(t *testing.T) {
	f := newFixture(t)
	o := created(f.push(createCmd("A")))
	value := o.Value()

	_, err := f.g.Push(context.Background(), Command{
		FunctionID: "fail",
		Inputs:     []ObjectRef{{ID: o.ID(), Value: &cell{name: "other"}}},
	})

	require.Error(t, err)
	assert.Same(t, value, o.Value())
}

func TestPush_CommandPanicIsAFailure(t *testing.T) {
	f := newFixture(t)
	nodes, edges := f.size()

	_, err := f.g.Push(context.Background(), Command{FunctionID: "panic"})

	require.Error(t, err)
	assert.True(t, IsCommandFailure(err))
	assert.Contains(t, err.Error(), "kaboom")
	n, e := f.size()
	assert.Equal(t, nodes, n)
	assert.Equal(t, edges, e)
}

func TestPush_UnknownFunction(t *testing.T) {
	f := newFixture(t)
	nodes, _ := f.size()

	_, err := f.g.Push(context.Background(), Command{FunctionID: "nope"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownFunction))
	n, _ := f.size()
	assert.Equal(t, nodes, n)
}

func TestPush_SchemaValidation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.reg.Register("label", func(context.Context, *Call) (*CommandResult, error) {
		return &CommandResult{}, nil
	}, WithSchema(`{
		"type": "object",
		"required": ["text"],
		"properties": {"text": {"type": "string", "minLength": 1}}
	}`)))
	ctx := context.Background()

	_, err := f.g.Push(ctx, Command{FunctionID: "label", Parameters: ir.Object(ir.O("text", ir.IRInt(5)))})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidParameters))

	_, err = f.g.Push(ctx, Command{FunctionID: "label", Parameters: ir.Object(ir.O("text", ir.IRString("hi")))})
	require.NoError(t, err)
}

func TestRegister_InvalidSchema(t *testing.T) {
	r := NewRegistry()
	err := r.Register("bad", func(context.Context, *Call) (*CommandResult, error) {
		return nil, nil
	}, WithSchema(`{"type": 12}`))
	require.Error(t, err)
	assert.Empty(t, r.IDs())
}

func TestRegisterTyped(t *testing.T) {
	type scaleParams struct {
		Factor int64  `json:"factor"`
		Axis   string `json:"axis"`
	}
	f := newFixture(t)
	var got scaleParams
	require.NoError(t, RegisterTyped(f.reg, "scale", func(_ context.Context, _ *Call, p scaleParams) (*CommandResult, error) {
		got = p
		return &CommandResult{}, nil
	}))

	params, err := EncodeParameters(scaleParams{Factor: 3, Axis: "x"})
	require.NoError(t, err)
	_, err = f.g.Push(context.Background(), Command{FunctionID: "scale", Parameters: params})
	require.NoError(t, err)
	assert.Equal(t, scaleParams{Factor: 3, Axis: "x"}, got)

	_, err = f.g.Push(context.Background(), Command{
		FunctionID: "scale",
		Parameters: ir.Object(ir.O("factor", ir.IRString("three"))),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidParameters))
}

func TestRegistry_IDs(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{"create", "fail", "panic", "remove", "rename", "set"}, f.reg.IDs())
}

func TestObjects_FindOrAdd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := &cell{name: "v"}

	o1, err := f.g.FindOrAddObject(ctx, ObjectRef{Name: "v", Value: v})
	require.NoError(t, err)
	o2, err := f.g.FindOrAddObject(ctx, ObjectRef{Name: "v", Value: v})
	require.NoError(t, err)
	assert.Equal(t, o1.ID(), o2.ID(), "deduplicated by value")

	byHash, ok := f.g.FindObject(ObjectRef{Hash: o1.Hash()})
	require.True(t, ok)
	assert.Equal(t, o1.ID(), byHash.ID())

	o3, err := f.g.AddObject(ctx, ObjectRef{Name: "v", Value: v})
	require.NoError(t, err)
	assert.NotEqual(t, o1.ID(), o3.ID(), "AddObject never deduplicates")

	_, err = f.g.FindOrAddObject(ctx, ObjectRef{ID: 9999})
	assert.True(t, IsNotFound(err))

	_, ok = f.g.FindObject(ObjectRef{Value: []int{1}})
	assert.False(t, ok, "non-comparable values never match")
}

func TestGraph_OneCurrentStateUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, err := f.g.Push(ctx, createCmd(fmt.Sprintf("o%d-%d", i, j)))
				assert.NoError(t, err)
				if j%2 == 1 {
					assert.NoError(t, f.g.Undo(ctx))
				}
			}
		}(i)
	}
	wg.Wait()

	var act StateNode
	var last ActionNode
	var hasLast bool
	require.NoError(t, f.g.Do(ctx, func(context.Context) error {
		act = f.g.Act()
		last, hasLast = f.g.LastAction()
		return nil
	}))

	require.NotNil(t, act.Node)
	require.True(t, hasLast)
	reached, ok := last.ResultsIn()
	require.True(t, ok)
	assert.Equal(t, act.ID(), reached.ID(), "last action leads to the current state")
}

func TestGraph_DoRunsOnLoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var inside int64
	require.NoError(t, f.g.Do(ctx, func(context.Context) error {
		inside = f.g.Act().ID()
		return nil
	}))
	assert.Equal(t, f.g.Act().ID(), inside)

	want := errors.New("read failed")
	assert.ErrorIs(t, f.g.Do(ctx, func(context.Context) error { return want }), want)
}

func TestGraph_CloseRejectsRequests(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.g.Close())

	_, err := f.g.Push(context.Background(), createCmd("X"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestGraph_CloseWithoutRun(t *testing.T) {
	g, err := New(context.Background(), graph.NewMemory("idle"), nil)
	require.NoError(t, err)
	require.NoError(t, g.Close())

	assert.ErrorIs(t, g.Do(context.Background(), func(context.Context) error { return nil }), ErrClosed)
}

func TestGraph_CancelledRunFailsPending(t *testing.T) {
	g, err := New(context.Background(), graph.NewMemory("cancel"), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	require.NoError(t, g.Do(context.Background(), func(context.Context) error { return nil }))
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.ErrorIs(t, g.Do(context.Background(), func(context.Context) error { return nil }), ErrClosed)
}

func TestGraph_Descriptor(t *testing.T) {
	f := newFixture(t, WithDescriptor(graph.Descriptor{ID: "g1", Name: "Demo"}))
	f.push(createCmd("X"))

	d := f.g.Descriptor()
	n, e := f.size()
	assert.Equal(t, "Demo", d.Name)
	assert.Equal(t, [2]int{n, e}, d.Size)
}

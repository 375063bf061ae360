package provenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/provenance/internal/graph"
	"github.com/roach88/provenance/internal/ir"
	"github.com/roach88/provenance/internal/testutil"
)

// cell is the external value behind a test object.
type cell struct {
	name  string
	value int64
}

// fixture wires a graph to a small command set over cells.
type fixture struct {
	t   *testing.T
	g   *Graph
	reg *Registry
	rec *testutil.EventRecorder

	mu         sync.Mutex
	budgets    []time.Duration
	failReplay bool
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWith(t, graph.NewMemory("g1"), opts...)
}

func newFixtureWith(t *testing.T, backend graph.Backend, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{t: t, reg: NewRegistry()}
	f.registerCommands()

	clock := testutil.NewDeterministicClock()
	opts = append([]Option{WithClock(clock.Now), WithUser("tester")}, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	g, err := New(ctx, backend, f.reg, opts...)
	require.NoError(t, err)
	f.g = g
	f.rec = testutil.RecordEvents(backend.Events())
	g.Start(ctx)
	t.Cleanup(func() {
		_ = g.Close()
		cancel()
	})
	return f
}

func (f *fixture) registerCommands() {
	r := f.reg
	require.NoError(f.t, r.Register("create", f.create))
	require.NoError(f.t, r.Register("remove", f.remove))
	require.NoError(f.t, r.Register("rename", f.rename))
	require.NoError(f.t, r.Register("set", f.set))
	require.NoError(f.t, r.Register("fail", func(context.Context, *Call) (*CommandResult, error) {
		return nil, errors.New("boom")
	}))
	require.NoError(f.t, r.Register("panic", func(context.Context, *Call) (*CommandResult, error) {
		panic("kaboom")
	}))
	require.NoError(f.t, r.Register("rename_then_fail", f.renameThenFail))
	require.NoError(f.t, r.Register("flaky_rename", f.flakyRename))
}

// renameThenFail writes through the handle and then fails.
func (f *fixture) renameThenFail(_ context.Context, call *Call) (*CommandResult, error) {
	o := call.Inputs[0]
	if err := call.Graph.SetObjectName(o, "CHANGED"); err != nil {
		return nil, err
	}
	call.Graph.SetObjectValue(o, &cell{name: "CHANGED"})
	return nil, errors.New("boom")
}

// flakyRename renames like rename but fails on replay once failReplay is set.
func (f *fixture) flakyRename(ctx context.Context, call *Call) (*CommandResult, error) {
	res, err := f.rename(ctx, call)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	fail := f.failReplay
	f.mu.Unlock()
	if fail && call.Replay {
		return nil, errors.New("replay refused")
	}
	return res, nil
}

func (f *fixture) setFailReplay(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReplay = v
}

func (f *fixture) observe(call *Call) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.budgets = append(f.budgets, call.Budget)
	return call.Budget
}

func (f *fixture) create(_ context.Context, call *Call) (*CommandResult, error) {
	name := call.Parameters.String("name")
	c := &cell{name: name}
	return &CommandResult{
		Created:  []ObjectRef{{Name: name, Category: CategoryData, Value: c}},
		Consumed: f.observe(call),
		Inverse: func(_, created, _ []ObjectNode) Command {
			return removeCmd(created[0])
		},
	}, nil
}

func (f *fixture) remove(_ context.Context, call *Call) (*CommandResult, error) {
	o := call.Inputs[0]
	name := o.Name()
	return &CommandResult{
		Removed:  []ObjectRef{Ref(o)},
		Consumed: f.observe(call),
		Inverse: func(_, _, removed []ObjectNode) Command {
			return createCmd(name)
		},
	}, nil
}

func (f *fixture) rename(_ context.Context, call *Call) (*CommandResult, error) {
	o := call.Inputs[0]
	old := o.Name()
	name := call.Parameters.String("name")
	if err := call.Graph.SetObjectName(o, name); err != nil {
		return nil, err
	}
	if c, ok := o.Value().(*cell); ok {
		c.name = name
	}
	return &CommandResult{
		Consumed: f.observe(call),
		Inverse: func(inputs, _, _ []ObjectNode) Command {
			return renameCmd(inputs[0], old)
		},
	}, nil
}

func (f *fixture) set(_ context.Context, call *Call) (*CommandResult, error) {
	o := call.Inputs[0]
	c, ok := o.Value().(*cell)
	if !ok {
		return nil, errors.New("set: object has no value")
	}
	old := c.value
	c.value = call.Parameters.Int("value")
	return &CommandResult{
		Consumed: f.observe(call),
		Inverse: func(inputs, _, _ []ObjectNode) Command {
			return setCmd(inputs[0], old)
		},
	}, nil
}

func createCmd(name string) Command {
	return Command{
		Meta:       ActionMeta{Name: "Create " + name, Category: CategoryData, Operation: OperationCreate},
		FunctionID: "create",
		Parameters: ir.Object(ir.O("name", ir.IRString(name))),
	}
}

func removeCmd(o ObjectNode) Command {
	return Command{
		Meta:       ActionMeta{Name: "Remove " + o.Name(), Category: CategoryData, Operation: OperationRemove},
		FunctionID: "remove",
		Inputs:     []ObjectRef{Ref(o)},
	}
}

func renameCmd(o ObjectNode, name string) Command {
	return Command{
		Meta:       ActionMeta{Name: "Rename to " + name, Category: CategoryData, Operation: OperationUpdate},
		FunctionID: "rename",
		Inputs:     []ObjectRef{Ref(o)},
		Parameters: ir.Object(ir.O("name", ir.IRString(name))),
	}
}

func setCmd(o ObjectNode, v int64) Command {
	return Command{
		Meta:       ActionMeta{Name: "Set", Category: CategoryVisual, Operation: OperationUpdate},
		FunctionID: "set",
		Inputs:     []ObjectRef{Ref(o)},
		Parameters: ir.Object(ir.O("value", ir.IRInt(v))),
	}
}

func (f *fixture) push(cmd Command) *PushResult {
	f.t.Helper()
	res, err := f.g.PushWithResult(context.Background(), cmd)
	require.NoError(f.t, err)
	return res
}

// created returns the first object created by a push.
func created(res *PushResult) ObjectNode {
	return res.Action.Creates()[0]
}

func memberIDs(s StateNode) []int64 {
	return objectIDs(s.ConsistsOf())
}

func memberNames(s StateNode) []string {
	var out []string
	for _, o := range s.ConsistsOf() {
		out = append(out, o.Name())
	}
	return out
}

func (f *fixture) size() (int, int) {
	return f.g.Backend().Size()
}

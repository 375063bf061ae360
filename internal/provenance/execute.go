package provenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/provenance/internal/ir"
)

// PushResult describes a completed push.
type PushResult struct {
	Action ActionNode
	State  StateNode

	// Reused is true when an identical action from the same state already
	// existed and its result state was reached again.
	Reused bool

	Result *CommandResult
}

// Push records cmd as an action from the current state, executes it and
// moves the current state to the result.
//
// On command failure the graph is left as it was before the call and the
// returned error wraps ErrCommandFailed.
func (g *Graph) Push(ctx context.Context, cmd Command) (ActionNode, error) {
	res, err := g.PushWithResult(ctx, cmd)
	if err != nil {
		return ActionNode{}, err
	}
	return res.Action, nil
}

// PushWithResult is Push returning the state reached and the command result.
func (g *Graph) PushWithResult(ctx context.Context, cmd Command) (*PushResult, error) {
	var out *PushResult
	err := g.submit(ctx, "push", func(ctx context.Context) error {
		res, err := g.push(ctx, cmd)
		out = res
		return err
	})
	return out, err
}

func (g *Graph) push(ctx context.Context, cmd Command) (*PushResult, error) {
	if err := g.registry.Validate(cmd.FunctionID, cmd.Parameters); err != nil {
		return nil, opError("push", cmd.FunctionID, err)
	}
	act, ok := g.act()
	if !ok {
		return nil, opError("push", cmd.FunctionID, fmt.Errorf("current state: %w", ErrNotFound))
	}

	g.begin()
	res, err := g.pushLocked(ctx, act, cmd)
	if err != nil {
		if rbErr := g.rollback(ctx); rbErr != nil {
			slog.Error("rollback failed", "graph", g.ID(), "op", "push", "error", rbErr)
		}
		return nil, opError("push", cmd.FunctionID, err)
	}
	g.commit()
	return res, nil
}

func (g *Graph) pushLocked(ctx context.Context, act StateNode, cmd Command) (*PushResult, error) {
	inputs, err := g.resolveInputs(ctx, cmd.Inputs)
	if err != nil {
		return nil, err
	}
	params := cmd.Parameters.Clone()

	// A bag that cannot be canonicalized gets no key and is never reused.
	key, err := ir.ActionKey(cmd.FunctionID, params, objectIDs(inputs))
	if err != nil {
		slog.Debug("action key unavailable", "function", cmd.FunctionID, "error", err)
		key = ""
	}

	var action ActionNode
	reused := false
	if key != "" {
		action, reused = g.reusable(act, key)
	}
	if !reused {
		action, err = g.addAction(ctx, act, cmd.Meta, cmd.FunctionID, params, key, inputs, false)
		if err != nil {
			return nil, err
		}
	}

	result, state, err := g.execute(ctx, action, inputs, params, 0)
	if err != nil {
		return nil, err
	}
	return &PushResult{Action: action, State: state, Reused: reused, Result: result}, nil
}

// reusable finds a recorded action from act with the same key that already
// reached a state.
func (g *Graph) reusable(act StateNode, key string) (ActionNode, bool) {
	for _, a := range act.Next() {
		if a.IsInverse() || a.AttrString(attrKey) != key {
			continue
		}
		if _, ok := a.ResultsIn(); ok {
			return a, true
		}
	}
	return ActionNode{}, false
}

// addAction creates an action node taken from prev together with its next
// and requires edges.
func (g *Graph) addAction(ctx context.Context, prev StateNode, meta ActionMeta, fid string, params ir.IRObject, key string, inputs []ObjectNode, inverse bool) (ActionNode, error) {
	ts := meta.Timestamp
	if ts.IsZero() {
		ts = g.clock()
	}
	user := meta.User
	if user == "" {
		user = g.user
	}
	if params == nil {
		params = ir.IRObject{}
	}
	n, err := g.addNode(ctx, TypeAction, ir.Object(
		ir.O(attrName, ir.IRString(meta.Name)),
		ir.O(attrCategory, ir.IRString(meta.Category)),
		ir.O(attrOperation, ir.IRString(meta.Operation)),
		ir.O(attrFunctionID, ir.IRString(fid)),
		ir.O(attrParameters, params),
		ir.O(attrKey, ir.IRString(key)),
		ir.O(attrExecuted, ir.IRBool(false)),
		ir.O(attrInverse, ir.IRBool(inverse)),
		ir.O(attrTimestamp, ir.IRInt(ts.UnixMilli())),
		ir.O(attrUser, ir.IRString(user)),
	))
	if err != nil {
		return ActionNode{}, err
	}
	if _, err := g.addEdge(ctx, EdgeNext, prev.Node, n, nil); err != nil {
		return ActionNode{}, err
	}
	for i, o := range inputs {
		if _, err := g.addEdge(ctx, EdgeRequires, n, o.Node, indexAttr(i)); err != nil {
			return ActionNode{}, err
		}
	}
	g.fire(EventAddAction, n)
	return ActionNode{n}, nil
}

// replay executes a recorded action with its recorded inputs and
// parameters.
func (g *Graph) replay(ctx context.Context, a ActionNode, budget time.Duration) (*CommandResult, error) {
	result, _, err := g.execute(ctx, a, a.Requires(), a.Parameters(), budget)
	return result, err
}

// execute runs the command of a and completes the action on success.
func (g *Graph) execute(ctx context.Context, a ActionNode, inputs []ObjectNode, params ir.IRObject, budget time.Duration) (*CommandResult, StateNode, error) {
	fn, err := g.registry.Resolve(a.FunctionID())
	if err != nil {
		return nil, StateNode{}, err
	}
	g.fire(EventExecute, a.Node)

	call := &Call{
		Action:     a,
		Inputs:     inputs,
		Parameters: params.Clone(),
		Graph:      &Handle{g: g, ctx: ctx},
		Budget:     budget,
		Replay:     a.Executed(),
	}
	start := time.Now()
	result, err := invoke(ctx, fn, call)
	if err != nil {
		commandFailures.WithLabelValues(a.FunctionID()).Inc()
		return nil, StateNode{}, fmt.Errorf("%s: %w: %w", a, ErrCommandFailed, err)
	}
	if result == nil {
		result = &CommandResult{}
	}
	if result.Consumed == 0 {
		result.Consumed = time.Since(start)
	}

	state, err := g.executedAction(ctx, a, result)
	if err != nil {
		return nil, StateNode{}, err
	}
	return result, state, nil
}

// invoke calls fn, turning a panic into an error.
func invoke(ctx context.Context, fn CommandFunc, call *Call) (result *CommandResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, call)
}

// executedAction completes a successful execution: links or refreshes the
// objects, reaches the result state, caches the inverse and moves the
// current pointers.
func (g *Graph) executedAction(ctx context.Context, a ActionNode, result *CommandResult) (StateNode, error) {
	prev, ok := a.PreviousState()
	if !ok {
		return StateNode{}, fmt.Errorf("%s has no previous state: %w", a, ErrNotFound)
	}
	first := !a.Executed()

	if first && len(a.Outgoing(EdgeCreates, EdgeRemoves)) == 0 {
		if err := g.linkObjects(ctx, a, result); err != nil {
			return StateNode{}, err
		}
	} else {
		g.refreshObjects(a.Creates(), result.Created)
	}
	for _, o := range a.Removes() {
		g.setPayload(o.Node, nil)
	}

	state, ok := a.ResultsIn()
	if !ok {
		var err error
		state, err = g.addResultState(ctx, prev, a)
		if err != nil {
			return StateNode{}, err
		}
	}

	if first {
		if err := g.setAttr(ctx, a.Node, attrExecuted, ir.IRBool(true)); err != nil {
			return StateNode{}, err
		}
	}
	if err := g.updateInverse(ctx, a, result.Inverse); err != nil {
		return StateNode{}, err
	}
	if err := g.switchTo(ctx, state, a); err != nil {
		return StateNode{}, err
	}

	actionsExecuted.WithLabelValues(a.FunctionID()).Inc()
	slog.Debug("action executed",
		"graph", g.ID(),
		"action", a.ID(),
		"function", a.FunctionID(),
		"state", state.ID(),
		"first", first,
	)
	g.fire(EventExecuted, a.Node, state)
	if first {
		g.fire(EventExecutedFirst, a.Node)
	}
	return state, nil
}

// linkObjects records the creates and removes edges of a first execution.
func (g *Graph) linkObjects(ctx context.Context, a ActionNode, result *CommandResult) error {
	for i, ref := range result.Created {
		o, err := g.findOrAddObject(ctx, ref)
		if err != nil {
			return fmt.Errorf("created object %d: %w", i, err)
		}
		if _, err := g.addEdge(ctx, EdgeCreates, a.Node, o.Node, indexAttr(i)); err != nil {
			return err
		}
	}
	for i, ref := range result.Removed {
		o, ok := g.findObject(ref)
		if !ok {
			return fmt.Errorf("removed object %d: %w", i, ErrNotFound)
		}
		if _, err := g.addEdge(ctx, EdgeRemoves, a.Node, o.Node, indexAttr(i)); err != nil {
			return err
		}
	}
	return nil
}

// refreshObjects re-hydrates recorded objects from a replay result by
// position.
func (g *Graph) refreshObjects(objects []ObjectNode, refs []ObjectRef) {
	for i, o := range objects {
		if i < len(refs) && refs[i].Value != nil {
			g.setPayload(o.Node, refs[i].Value)
		}
	}
}

// addResultState creates the state reached by a: the members of prev
// without what a removes, plus what it creates.
func (g *Graph) addResultState(ctx context.Context, prev StateNode, a ActionNode) (StateNode, error) {
	state, err := g.createState(ctx, a.Meta().Name)
	if err != nil {
		return StateNode{}, err
	}
	for _, o := range membership(prev, a.Creates(), a.Removes()) {
		if _, err := g.addEdge(ctx, EdgeConsistsOf, state.Node, o.Node, nil); err != nil {
			return StateNode{}, err
		}
	}
	if _, err := g.addEdge(ctx, EdgeResultsIn, a.Node, state.Node, nil); err != nil {
		return StateNode{}, err
	}
	return state, nil
}

func membership(prev StateNode, created, removed []ObjectNode) []ObjectNode {
	drop := make(map[int64]bool, len(removed))
	for _, o := range removed {
		drop[o.ID()] = true
	}
	seen := make(map[int64]bool)
	var out []ObjectNode
	for _, list := range [][]ObjectNode{prev.ConsistsOf(), created} {
		for _, o := range list {
			if drop[o.ID()] || seen[o.ID()] {
				continue
			}
			seen[o.ID()] = true
			out = append(out, o)
		}
	}
	return out
}

func (g *Graph) createState(ctx context.Context, name string) (StateNode, error) {
	n, err := g.addNode(ctx, TypeState, ir.Object(ir.O(attrName, ir.IRString(name))))
	if err != nil {
		return StateNode{}, err
	}
	g.fire(EventAddState, n)
	return StateNode{n}, nil
}

// switchTo moves the current pointers and fires the switch events.
func (g *Graph) switchTo(ctx context.Context, state StateNode, last ActionNode) error {
	old, _ := g.act()
	oldLast, _ := g.LastAction()
	if err := g.setCurrent(ctx, state, last); err != nil {
		return err
	}
	if old.Node != state.Node {
		g.fire(EventSwitchState, state.Node, old)
	}
	if last.Node != nil && oldLast.Node != last.Node {
		g.fire(EventSwitchAction, last.Node, oldLast)
	}
	return nil
}

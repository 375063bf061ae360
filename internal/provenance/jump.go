package provenance

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/provenance/internal/compress"
	"github.com/roach88/provenance/internal/ir"
)

// ReplayOption configures JumpTo and Undo.
type ReplayOption func(*replayOptions)

type replayOptions struct {
	budget time.Duration
}

// WithBudget sets the advisory time budget shared by the steps of the
// replay chain.
func WithBudget(d time.Duration) ReplayOption {
	return func(o *replayOptions) { o.budget = d }
}

func buildReplayOptions(opts []ReplayOption) replayOptions {
	var o replayOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// JumpTo moves the graph to the state with id by reverting the actions on
// the path from the current state to the common ancestor and re-applying
// the actions on the path down to the target.
//
// A target with no common ancestor fails with ErrUnreachable and the graph
// is left untouched; no ran_chain event fires.
//
// Replay steps are not atomic as a whole. When step k of the chain fails,
// the writes of step k are rolled back but steps before it stay applied, so
// the current state is the one reached by step k-1: possibly neither the
// origin nor the target. The returned error names the failing step.
func (g *Graph) JumpTo(ctx context.Context, stateID int64, opts ...ReplayOption) error {
	o := buildReplayOptions(opts)
	return g.submit(ctx, "jump", func(ctx context.Context) error {
		target, ok := g.StateByID(stateID)
		if !ok {
			return opError("jump", fmt.Sprintf("state#%d", stateID), ErrNotFound)
		}
		return opError("jump", target.String(), g.jumpTo(ctx, target, o.budget))
	})
}

// Undo steps back from the current state to the state its creating action
// was taken from. When the inverse of that action is already linked the
// step is a jump through the cached inverse; otherwise the inverse is built
// and executed.
//
// Undoing repeatedly walks up the history; after an undo the current state
// is still a node of the history tree, so a second undo continues from there
// instead of redoing.
func (g *Graph) Undo(ctx context.Context, opts ...ReplayOption) error {
	o := buildReplayOptions(opts)
	return g.submit(ctx, "undo", func(ctx context.Context) error {
		return g.undo(ctx, o.budget)
	})
}

func (g *Graph) undo(ctx context.Context, budget time.Duration) error {
	act, ok := g.act()
	if !ok {
		return opError("undo", "", fmt.Errorf("current state: %w", ErrNotFound))
	}
	creators := act.Creators()
	switch len(creators) {
	case 0:
		return opError("undo", act.String(), fmt.Errorf("nothing to undo: %w", ErrNotFound))
	case 1:
	default:
		return opError("undo", act.String(), ErrForkedPath)
	}
	a := creators[0]

	if _, linked := a.InverseAction(); linked {
		prev, ok := a.PreviousState()
		if !ok {
			return opError("undo", a.String(), ErrNotFound)
		}
		if err := g.jumpTo(ctx, prev, budget); err != nil {
			return opError("undo", a.String(), err)
		}
		undos.Inc()
		return nil
	}

	g.begin()
	inv, err := g.getOrCreateInverse(ctx, a)
	if err == nil {
		_, err = g.replay(ctx, inv, budget)
	}
	if err != nil {
		if rbErr := g.rollback(ctx); rbErr != nil {
			slog.Error("rollback failed", "graph", g.ID(), "op", "undo", "error", rbErr)
		}
		return opError("undo", a.String(), err)
	}
	g.commit()
	undos.Inc()
	return nil
}

// jumpTo builds, compresses and replays the chain from the current state to
// target, then forces the current pointer to target.
func (g *Graph) jumpTo(ctx context.Context, target StateNode, budget time.Duration) error {
	from, ok := g.act()
	if !ok {
		return fmt.Errorf("current state: %w", ErrNotFound)
	}
	if from.Node == target.Node {
		return nil
	}

	revert, apply, err := g.path(from, target)
	if err != nil {
		return err
	}

	chain := make([]ActionNode, 0, len(revert)+len(apply))
	for _, a := range revert {
		g.begin()
		inv, err := g.getOrCreateInverse(ctx, a)
		if err != nil {
			if rbErr := g.rollback(ctx); rbErr != nil {
				slog.Error("rollback failed", "graph", g.ID(), "op", "jump", "error", rbErr)
			}
			return err
		}
		g.commit()
		chain = append(chain, inv)
	}
	chain = append(chain, apply...)

	steps := g.compress(chain)
	g.fire(EventRunChain, nil, steps)

	var spent time.Duration
	for i, a := range steps {
		share := stepBudget(budget, spent, len(steps)-i)
		g.begin()
		result, err := g.replay(ctx, a, share)
		if err != nil {
			if rbErr := g.rollback(ctx); rbErr != nil {
				slog.Error("rollback failed", "graph", g.ID(), "op", "jump", "error", rbErr)
			}
			return fmt.Errorf("replay step %d/%d: %w", i+1, len(steps), err)
		}
		g.commit()
		spent += result.Consumed
	}

	if err := g.switchTo(ctx, target, chain[len(chain)-1]); err != nil {
		return err
	}
	jumps.Inc()
	slog.Debug("jumped",
		"graph", g.ID(),
		"from", from.ID(),
		"to", target.ID(),
		"chain", len(chain),
		"replayed", len(steps),
	)
	g.fire(EventRanChain, target.Node, steps)
	return nil
}

// stepBudget splits what is left of budget evenly over the remaining steps.
func stepBudget(budget, spent time.Duration, remaining int) time.Duration {
	if budget <= 0 || remaining <= 0 {
		return 0
	}
	left := budget - spent
	if left <= 0 {
		return 0
	}
	return left / time.Duration(remaining)
}

// path returns the actions to revert (leaf first) and the actions to apply
// (ancestor first) to get from one state to another.
func (g *Graph) path(from, to StateNode) (revert, apply []ActionNode, err error) {
	fromStates, fromActions, err := creatorPath(from)
	if err != nil {
		return nil, nil, err
	}
	toStates, toActions, err := creatorPath(to)
	if err != nil {
		return nil, nil, err
	}

	index := make(map[int64]int, len(toStates))
	for j, s := range toStates {
		index[s.ID()] = j
	}
	for i, s := range fromStates {
		j, ok := index[s.ID()]
		if !ok {
			continue
		}
		revert = slices.Clone(fromActions[:i])
		apply = slices.Clone(toActions[:j])
		slices.Reverse(apply)
		return revert, apply, nil
	}
	return nil, nil, fmt.Errorf("%s and %s share no ancestor: %w", from, to, ErrUnreachable)
}

// creatorPath walks from s to its root along creating actions. states[i+1]
// is the state actions[i] was taken from.
func creatorPath(s StateNode) (states []StateNode, actions []ActionNode, err error) {
	seen := make(map[int64]bool)
	for {
		if seen[s.ID()] {
			return nil, nil, fmt.Errorf("cycle at %s: %w", s, ErrForkedPath)
		}
		seen[s.ID()] = true
		states = append(states, s)

		creators := s.Creators()
		switch len(creators) {
		case 0:
			return states, actions, nil
		case 1:
		default:
			return nil, nil, fmt.Errorf("%s has %d creating actions: %w", s, len(creators), ErrForkedPath)
		}
		a := creators[0]
		prev, ok := a.PreviousState()
		if !ok {
			return nil, nil, fmt.Errorf("%s has no previous state: %w", a, ErrNotFound)
		}
		actions = append(actions, a)
		s = prev
	}
}

// compress runs the configured strategies over chain.
func (g *Graph) compress(chain []ActionNode) []ActionNode {
	chainLength.WithLabelValues("before").Observe(float64(len(chain)))
	if g.chain == nil || g.chain.Len() == 0 {
		chainLength.WithLabelValues("after").Observe(float64(len(chain)))
		return chain
	}
	in := make([]compress.Action, len(chain))
	for i, a := range chain {
		in[i] = replayStep{a}
	}
	out := g.chain.Apply(in)
	steps := make([]ActionNode, len(out))
	for i, s := range out {
		steps[i] = s.(replayStep).ActionNode
	}
	chainLength.WithLabelValues("after").Observe(float64(len(steps)))
	return steps
}

// replayStep adapts an action node to compress.Action.
type replayStep struct {
	ActionNode
}

func (s replayStep) Parameters() ir.IRObject { return s.ActionNode.Parameters() }
func (s replayStep) Requires() []int64       { return objectIDs(s.ActionNode.Requires()) }
func (s replayStep) Creates() []int64        { return objectIDs(s.ActionNode.Creates()) }
func (s replayStep) Removes() []int64        { return objectIDs(s.ActionNode.Removes()) }

package provenance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/provenance/internal/ir"
)

// Fork grafts a copy of the history below actionID (the action and every
// action reachable from its result) onto the state targetID.
//
// replacements maps object ids used by the original branch to objects that
// stand in for them on the target branch. A copied action whose required or
// removed objects are not available in its new predecessor state, even
// after replacement, is pruned; its descendants are grafted onto the state
// the pruned action would have been taken from.
//
// A target inside the grafted subtree fails with ErrInvalidFork and leaves
// the graph untouched. The current state does not change.
func (g *Graph) Fork(ctx context.Context, actionID, targetID int64, replacements map[int64]int64) ([]ActionNode, error) {
	var out []ActionNode
	err := g.submit(ctx, "fork", func(ctx context.Context) error {
		a, ok := g.ActionByID(actionID)
		if !ok {
			return opError("fork", fmt.Sprintf("action#%d", actionID), ErrNotFound)
		}
		target, ok := g.StateByID(targetID)
		if !ok {
			return opError("fork", fmt.Sprintf("state#%d", targetID), ErrNotFound)
		}
		for from, to := range replacements {
			if _, ok := g.objectByID(to); !ok {
				return opError("fork", a.String(), fmt.Errorf("replacement for object#%d: object#%d: %w", from, to, ErrNotFound))
			}
		}

		g.begin()
		copies, err := g.fork(ctx, a, target, replacements)
		if err != nil {
			if rbErr := g.rollback(ctx); rbErr != nil {
				slog.Error("rollback failed", "graph", g.ID(), "op", "fork", "error", rbErr)
			}
			return opError("fork", a.String(), err)
		}
		g.commit()
		out = copies
		return nil
	})
	return out, err
}

type forkItem struct {
	orig   ActionNode
	parent StateNode
}

func (g *Graph) fork(ctx context.Context, a ActionNode, target StateNode, replacements map[int64]int64) ([]ActionNode, error) {
	if a.IsInverse() {
		return nil, fmt.Errorf("%s is an inverse action: %w", a, ErrInvalidFork)
	}
	if subtreeStates(a)[target.ID()] {
		return nil, fmt.Errorf("%s lies inside the grafted subtree: %w", target, ErrInvalidFork)
	}

	mapID := func(o ObjectNode) ObjectNode {
		if r, ok := replacements[o.ID()]; ok {
			if rep, ok := g.objectByID(r); ok {
				return rep
			}
		}
		return o
	}

	var copies []ActionNode
	queue := []forkItem{{orig: a, parent: target}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		requires := mapObjects(item.orig.Requires(), mapID)
		removes := mapObjects(item.orig.Removes(), mapID)
		next := item.parent

		if available(item.parent, requires, removes) {
			cp, state, err := g.copyAction(ctx, item.orig, item.parent, requires, removes)
			if err != nil {
				return nil, err
			}
			copies = append(copies, cp)
			next = state
		} else {
			slog.Debug("fork pruned action",
				"graph", g.ID(),
				"action", item.orig.ID(),
				"parent", item.parent.ID(),
			)
		}

		res, ok := item.orig.ResultsIn()
		if !ok {
			continue
		}
		for _, child := range res.Next() {
			if child.IsInverse() {
				continue
			}
			queue = append(queue, forkItem{orig: child, parent: next})
		}
	}

	g.fire(EventForkedBranch, a.Node, target, copies)
	return copies, nil
}

// subtreeStates returns the ids of the states reachable from a through
// non-inverse actions.
func subtreeStates(a ActionNode) map[int64]bool {
	seen := make(map[int64]bool)
	stack := []ActionNode{a}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		s, ok := cur.ResultsIn()
		if !ok || seen[s.ID()] {
			continue
		}
		seen[s.ID()] = true
		for _, next := range s.Next() {
			if !next.IsInverse() {
				stack = append(stack, next)
			}
		}
	}
	return seen
}

func mapObjects(objs []ObjectNode, fn func(ObjectNode) ObjectNode) []ObjectNode {
	out := make([]ObjectNode, len(objs))
	for i, o := range objs {
		out[i] = fn(o)
	}
	return out
}

// available reports whether every object in the lists is a member of s.
func available(s StateNode, lists ...[]ObjectNode) bool {
	members := make(map[int64]bool)
	for _, o := range s.ConsistsOf() {
		members[o.ID()] = true
	}
	for _, list := range lists {
		for _, o := range list {
			if !members[o.ID()] {
				return false
			}
		}
	}
	return true
}

// copyAction creates the fork copy of orig taken from parent, sharing the
// objects orig created.
func (g *Graph) copyAction(ctx context.Context, orig ActionNode, parent StateNode, requires, removes []ObjectNode) (ActionNode, StateNode, error) {
	params := orig.Parameters()
	key, err := ir.ActionKey(orig.FunctionID(), params, objectIDs(requires))
	if err != nil {
		key = ""
	}
	meta := orig.Meta()
	meta.Timestamp = g.clock()

	cp, err := g.addAction(ctx, parent, meta, orig.FunctionID(), params, key, requires, false)
	if err != nil {
		return ActionNode{}, StateNode{}, err
	}
	if err := g.setAttr(ctx, cp.Node, attrForked, ir.IRBool(true)); err != nil {
		return ActionNode{}, StateNode{}, err
	}
	for i, o := range orig.Creates() {
		if _, err := g.addEdge(ctx, EdgeCreates, cp.Node, o.Node, indexAttr(i)); err != nil {
			return ActionNode{}, StateNode{}, err
		}
	}
	for i, o := range removes {
		if _, err := g.addEdge(ctx, EdgeRemoves, cp.Node, o.Node, indexAttr(i)); err != nil {
			return ActionNode{}, StateNode{}, err
		}
	}
	state, err := g.addResultState(ctx, parent, cp)
	if err != nil {
		return ActionNode{}, StateNode{}, err
	}
	return cp, state, nil
}

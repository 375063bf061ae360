package provenance

import (
	"context"
	"fmt"

	"github.com/roach88/provenance/internal/ir"
)

// actionRuntime is the Payload of an action node.
type actionRuntime struct {
	inverse InverseFunc
}

func runtimeOf(a ActionNode) *actionRuntime {
	rt, ok := a.Payload.(*actionRuntime)
	if !ok {
		rt = &actionRuntime{}
		a.Payload = rt
	}
	return rt
}

// updateInverse caches fn for a. When the inverse action already exists its
// parameters are refreshed; the links are left alone.
func (g *Graph) updateInverse(ctx context.Context, a ActionNode, fn InverseFunc) error {
	if fn == nil {
		return nil
	}
	runtimeOf(a).inverse = fn
	if a.IsInverse() {
		return nil
	}
	inv, ok := a.InverseAction()
	if !ok {
		return nil
	}
	cmd := fn(a.Requires(), a.Creates(), a.Removes())
	params := cmd.Parameters
	if params == nil {
		params = ir.IRObject{}
	}
	return g.setAttr(ctx, inv.Node, attrParameters, params)
}

// inverseFunc returns the inverse cached at run time, or the one registered
// for the function when the action was restored from a dump.
func (g *Graph) inverseFunc(a ActionNode) InverseFunc {
	if rt, ok := a.Payload.(*actionRuntime); ok && rt.inverse != nil {
		return rt.inverse
	}
	return g.registry.staticInverse(a.FunctionID(), a.Parameters())
}

// getOrCreateInverse returns the inverse of a, building and linking it the
// first time: the inverse goes from the state a resulted in back to the
// state a was taken from, and creates what a removed and removes what a
// created.
func (g *Graph) getOrCreateInverse(ctx context.Context, a ActionNode) (ActionNode, error) {
	if inv, ok := a.InverseAction(); ok {
		return inv, nil
	}
	fn := g.inverseFunc(a)
	if fn == nil {
		return ActionNode{}, fmt.Errorf("%s (%s): %w", a, a.FunctionID(), ErrNotInvertible)
	}
	from, ok := a.ResultsIn()
	if !ok {
		return ActionNode{}, fmt.Errorf("%s was never executed: %w", a, ErrNotInvertible)
	}
	to, ok := a.PreviousState()
	if !ok {
		return ActionNode{}, fmt.Errorf("%s has no previous state: %w", a, ErrNotFound)
	}

	cmd := fn(a.Requires(), a.Creates(), a.Removes())
	if _, err := g.registry.Resolve(cmd.FunctionID); err != nil {
		return ActionNode{}, fmt.Errorf("inverse of %s: %w", a, err)
	}
	inputs, err := g.resolveInputs(ctx, cmd.Inputs)
	if err != nil {
		return ActionNode{}, fmt.Errorf("inverse of %s: %w", a, err)
	}
	params := cmd.Parameters.Clone()
	key, err := ir.ActionKey(cmd.FunctionID, params, objectIDs(inputs))
	if err != nil {
		key = ""
	}
	meta := cmd.Meta
	if meta.Name == "" {
		meta.Name = "Undo " + a.Meta().Name
	}
	if meta.Category == "" {
		meta.Category = a.Meta().Category
	}

	inv, err := g.addAction(ctx, from, meta, cmd.FunctionID, params, key, inputs, true)
	if err != nil {
		return ActionNode{}, err
	}
	if _, err := g.addEdge(ctx, EdgeInverses, a.Node, inv.Node, nil); err != nil {
		return ActionNode{}, err
	}
	for i, o := range a.Removes() {
		if _, err := g.addEdge(ctx, EdgeCreates, inv.Node, o.Node, indexAttr(i)); err != nil {
			return ActionNode{}, err
		}
	}
	for i, o := range a.Creates() {
		if _, err := g.addEdge(ctx, EdgeRemoves, inv.Node, o.Node, indexAttr(i)); err != nil {
			return ActionNode{}, err
		}
	}
	if _, err := g.addEdge(ctx, EdgeResultsIn, inv.Node, to.Node, nil); err != nil {
		return ActionNode{}, err
	}
	return inv, nil
}

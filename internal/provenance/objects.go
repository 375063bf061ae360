package provenance

import (
	"context"
	"fmt"
	"reflect"

	"github.com/roach88/provenance/internal/ir"
)

// AddObject tracks a new external value. The reference is not deduplicated.
func (g *Graph) AddObject(ctx context.Context, ref ObjectRef) (ObjectNode, error) {
	var out ObjectNode
	err := g.submit(ctx, "add_object", func(ctx context.Context) error {
		o, err := g.addObject(ctx, ref)
		out = o
		return err
	})
	return out, err
}

// FindObject resolves ref against the tracked objects without creating one.
func (g *Graph) FindObject(ref ObjectRef) (ObjectNode, bool) {
	return g.findObject(ref)
}

// FindOrAddObject resolves ref, tracking it as a new object when nothing
// matches.
func (g *Graph) FindOrAddObject(ctx context.Context, ref ObjectRef) (ObjectNode, error) {
	var out ObjectNode
	err := g.submit(ctx, "add_object", func(ctx context.Context) error {
		o, err := g.findOrAddObject(ctx, ref)
		out = o
		return err
	})
	return out, err
}

func (g *Graph) findObject(ref ObjectRef) (ObjectNode, bool) {
	if ref.ID != 0 {
		return g.objectByID(ref.ID)
	}
	if ref.Hash != "" {
		for _, o := range g.Objects() {
			if o.Hash() == ref.Hash {
				return o, true
			}
		}
		return ObjectNode{}, false
	}
	if isComparable(ref.Value) {
		for _, o := range g.Objects() {
			if o.Payload == ref.Value {
				return o, true
			}
		}
	}
	return ObjectNode{}, false
}

// isComparable reports whether v can be matched with ==.
func isComparable(v any) bool {
	if v == nil {
		return false
	}
	return reflect.TypeOf(v).Comparable()
}

func (g *Graph) findOrAddObject(ctx context.Context, ref ObjectRef) (ObjectNode, error) {
	if o, ok := g.findObject(ref); ok {
		if ref.Value != nil {
			g.setPayload(o.Node, ref.Value)
		}
		return o, nil
	}
	if ref.ID != 0 {
		return ObjectNode{}, fmt.Errorf("object#%d: %w", ref.ID, ErrNotFound)
	}
	return g.addObject(ctx, ref)
}

func (g *Graph) addObject(ctx context.Context, ref ObjectRef) (ObjectNode, error) {
	hash := ref.Hash
	if hash == "" {
		hash = ir.ObjectHash(ref.Name, string(ref.Category))
	}
	n, err := g.addNode(ctx, TypeObject, ir.Object(
		ir.O(attrName, ir.IRString(ref.Name)),
		ir.O(attrCategory, ir.IRString(ref.Category)),
		ir.O(attrHash, ir.IRString(hash)),
	))
	if err != nil {
		return ObjectNode{}, err
	}
	n.Payload = ref.Value
	g.fire(EventAddObject, n)
	return ObjectNode{n}, nil
}

func (g *Graph) resolveInputs(ctx context.Context, refs []ObjectRef) ([]ObjectNode, error) {
	out := make([]ObjectNode, 0, len(refs))
	for i, ref := range refs {
		o, err := g.findOrAddObject(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		out = append(out, o)
	}
	return out, nil
}

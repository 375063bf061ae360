package provenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/provenance/internal/graph"
	"github.com/roach88/provenance/internal/ir"
)

// SlideSpec describes a slide to create.
type SlideSpec struct {
	Name       string
	Text       string
	Duration   time.Duration
	Transition time.Duration

	// After is the slide the new one is inserted behind. Zero appends to
	// the end of the most recently started chain.
	After int64
}

// ExtractSlide creates a slide that jumps to the state with id stateID.
func (g *Graph) ExtractSlide(ctx context.Context, stateID int64, spec SlideSpec) (SlideNode, error) {
	var out SlideNode
	err := g.submit(ctx, "extract_slide", func(ctx context.Context) error {
		state, ok := g.StateByID(stateID)
		if !ok {
			return opError("extract_slide", fmt.Sprintf("state#%d", stateID), ErrNotFound)
		}
		s, err := g.addSlide(ctx, spec, state, false)
		out = s
		return opError("extract_slide", state.String(), err)
	})
	return out, err
}

// MakeTextSlide creates a slide that only shows text.
func (g *Graph) MakeTextSlide(ctx context.Context, spec SlideSpec) (SlideNode, error) {
	var out SlideNode
	err := g.submit(ctx, "text_slide", func(ctx context.Context) error {
		s, err := g.addSlide(ctx, spec, StateNode{}, false)
		out = s
		return opError("text_slide", "", err)
	})
	return out, err
}

// StartNewSlide starts a new slide chain with a slide jumping to the
// current state. spec.After is ignored.
func (g *Graph) StartNewSlide(ctx context.Context, spec SlideSpec) (SlideNode, error) {
	var out SlideNode
	err := g.submit(ctx, "start_slide", func(ctx context.Context) error {
		act, ok := g.act()
		if !ok {
			return opError("start_slide", "", fmt.Errorf("current state: %w", ErrNotFound))
		}
		s, err := g.addSlide(ctx, spec, act, true)
		out = s
		return opError("start_slide", act.String(), err)
	})
	return out, err
}

func (g *Graph) addSlide(ctx context.Context, spec SlideSpec, state StateNode, newChain bool) (SlideNode, error) {
	var after SlideNode
	if !newChain {
		var err error
		after, err = g.insertionPoint(spec.After)
		if err != nil {
			return SlideNode{}, err
		}
	}

	g.begin()
	s, err := g.createSlide(ctx, spec, state, after)
	if err != nil {
		if rbErr := g.rollback(ctx); rbErr != nil {
			slog.Error("rollback failed", "graph", g.ID(), "op", "add_slide", "error", rbErr)
		}
		return SlideNode{}, err
	}
	g.commit()
	g.fire(EventAddSlide, s.Node)
	return s, nil
}

func (g *Graph) createSlide(ctx context.Context, spec SlideSpec, state StateNode, after SlideNode) (SlideNode, error) {
	n, err := g.addNode(ctx, TypeSlide, ir.Object(
		ir.O(attrName, ir.IRString(spec.Name)),
		ir.O(attrText, ir.IRString(spec.Text)),
		ir.O(attrDuration, ir.IRInt(spec.Duration.Milliseconds())),
		ir.O(attrTransition, ir.IRInt(spec.Transition.Milliseconds())),
		ir.O(attrTextOnly, ir.IRBool(state.Node == nil)),
	))
	if err != nil {
		return SlideNode{}, err
	}
	s := SlideNode{n}
	if state.Node != nil {
		if _, err := g.addEdge(ctx, EdgeJumpTo, n, state.Node, nil); err != nil {
			return SlideNode{}, err
		}
	}
	if after.Node != nil {
		if err := g.linkAfter(ctx, s, after); err != nil {
			return SlideNode{}, err
		}
	}
	return s, nil
}

// insertionPoint resolves the slide a new slide goes behind.
func (g *Graph) insertionPoint(after int64) (SlideNode, error) {
	if after != 0 {
		s, ok := g.SlideByID(after)
		if !ok {
			return SlideNode{}, fmt.Errorf("slide#%d: %w", after, ErrNotFound)
		}
		return s, nil
	}
	chains := g.SlideChains()
	if len(chains) == 0 {
		return SlideNode{}, nil
	}
	last := chains[len(chains)-1]
	return last[len(last)-1], nil
}

// linkAfter inserts s between after and its successor.
func (g *Graph) linkAfter(ctx context.Context, s, after SlideNode) error {
	if next, ok := after.NextSlide(); ok {
		if err := g.removeSlideEdge(ctx, after.Node, next.Node); err != nil {
			return err
		}
		if _, err := g.addEdge(ctx, EdgeNext, s.Node, next.Node, nil); err != nil {
			return err
		}
	}
	_, err := g.addEdge(ctx, EdgeNext, after.Node, s.Node, nil)
	return err
}

// unlink takes s out of its chain, joining its neighbours.
func (g *Graph) unlink(ctx context.Context, s SlideNode) error {
	prev, hasPrev := s.PreviousSlide()
	next, hasNext := s.NextSlide()
	if hasPrev {
		if err := g.removeSlideEdge(ctx, prev.Node, s.Node); err != nil {
			return err
		}
	}
	if hasNext {
		if err := g.removeSlideEdge(ctx, s.Node, next.Node); err != nil {
			return err
		}
	}
	if hasPrev && hasNext {
		if _, err := g.addEdge(ctx, EdgeNext, prev.Node, next.Node, nil); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) removeSlideEdge(ctx context.Context, from, to *graph.Node) error {
	for _, e := range from.Outgoing(EdgeNext) {
		if e.Target() == to {
			return g.removeEdge(ctx, e)
		}
	}
	return nil
}

// MoveSlide moves a slide behind the slide after. An after of zero moves it
// to the front of its chain.
func (g *Graph) MoveSlide(ctx context.Context, slideID, after int64) error {
	return g.submit(ctx, "move_slide", func(ctx context.Context) error {
		s, ok := g.SlideByID(slideID)
		if !ok {
			return opError("move_slide", fmt.Sprintf("slide#%d", slideID), ErrNotFound)
		}
		if after == slideID {
			return nil
		}
		var target SlideNode
		if after != 0 {
			if target, ok = g.SlideByID(after); !ok {
				return opError("move_slide", fmt.Sprintf("slide#%d", after), ErrNotFound)
			}
		}

		head := chainOf(s)[0]
		if head.Node == s.Node {
			if next, ok := s.NextSlide(); ok {
				head = next
			} else {
				head = SlideNode{}
			}
		}

		if err := g.unlink(ctx, s); err != nil {
			return opError("move_slide", s.String(), err)
		}
		var err error
		switch {
		case target.Node != nil:
			err = g.linkAfter(ctx, s, target)
		case head.Node != nil:
			_, err = g.addEdge(ctx, EdgeNext, s.Node, head.Node, nil)
		}
		if err != nil {
			return opError("move_slide", s.String(), err)
		}
		g.fire(EventMoveSlide, s.Node, target)
		return nil
	})
}

// RemoveSlide removes one slide and closes the gap in its chain.
func (g *Graph) RemoveSlide(ctx context.Context, slideID int64) error {
	return g.submit(ctx, "remove_slide", func(ctx context.Context) error {
		s, ok := g.SlideByID(slideID)
		if !ok {
			return opError("remove_slide", fmt.Sprintf("slide#%d", slideID), ErrNotFound)
		}
		if err := g.unlink(ctx, s); err != nil {
			return opError("remove_slide", s.String(), err)
		}
		if err := g.store().RemoveNode(ctx, s.Node); err != nil {
			return opError("remove_slide", s.String(), err)
		}
		g.fire(EventRemoveSlide, s.Node)
		return nil
	})
}

// RemoveFullSlide removes the whole chain the slide belongs to.
func (g *Graph) RemoveFullSlide(ctx context.Context, slideID int64) error {
	return g.submit(ctx, "destroy_slide", func(ctx context.Context) error {
		s, ok := g.SlideByID(slideID)
		if !ok {
			return opError("destroy_slide", fmt.Sprintf("slide#%d", slideID), ErrNotFound)
		}
		chain := chainOf(s)
		for _, c := range chain {
			if err := g.store().RemoveNode(ctx, c.Node); err != nil {
				return opError("destroy_slide", c.String(), err)
			}
		}
		g.fire(EventDestroySlide, chain[0].Node)
		return nil
	})
}

// SetSlideJumpTarget points a slide at another state.
func (g *Graph) SetSlideJumpTarget(ctx context.Context, slideID, stateID int64) error {
	return g.submit(ctx, "slide_target", func(ctx context.Context) error {
		s, ok := g.SlideByID(slideID)
		if !ok {
			return opError("slide_target", fmt.Sprintf("slide#%d", slideID), ErrNotFound)
		}
		state, ok := g.StateByID(stateID)
		if !ok {
			return opError("slide_target", fmt.Sprintf("state#%d", stateID), ErrNotFound)
		}
		for _, e := range s.Outgoing(EdgeJumpTo) {
			if err := g.removeEdge(ctx, e); err != nil {
				return opError("slide_target", s.String(), err)
			}
		}
		if _, err := g.addEdge(ctx, EdgeJumpTo, s.Node, state.Node, nil); err != nil {
			return opError("slide_target", s.String(), err)
		}
		return opError("slide_target", s.String(), g.setAttr(ctx, s.Node, attrTextOnly, ir.IRBool(false)))
	})
}

// PlaySlide starts a slide: it fires start_slide and, unless the slide is
// text only, jumps to its state within the slide's transition time.
func (g *Graph) PlaySlide(ctx context.Context, slideID int64) error {
	return g.submit(ctx, "play_slide", func(ctx context.Context) error {
		s, ok := g.SlideByID(slideID)
		if !ok {
			return opError("play_slide", fmt.Sprintf("slide#%d", slideID), ErrNotFound)
		}
		g.fire(EventStartSlide, s.Node)
		state, ok := s.State()
		if s.IsTextOnly() || !ok {
			return nil
		}
		return opError("play_slide", s.String(), g.jumpTo(ctx, state, s.Transition()))
	})
}

// SlideChains returns every slide chain, head first, ordered by the
// creation of their heads.
func (g *Graph) SlideChains() [][]SlideNode {
	var out [][]SlideNode
	for _, s := range g.Slides() {
		if _, ok := s.PreviousSlide(); ok {
			continue
		}
		out = append(out, chainOf(s))
	}
	return out
}

// chainOf returns the chain containing s, head first.
func chainOf(s SlideNode) []SlideNode {
	head := s
	seen := map[int64]bool{s.ID(): true}
	for {
		prev, ok := head.PreviousSlide()
		if !ok || seen[prev.ID()] {
			break
		}
		seen[prev.ID()] = true
		head = prev
	}
	chain := []SlideNode{head}
	visited := map[int64]bool{head.ID(): true}
	for cur := head; ; {
		next, ok := cur.NextSlide()
		if !ok || visited[next.ID()] {
			return chain
		}
		visited[next.ID()] = true
		chain = append(chain, next)
		cur = next
	}
}

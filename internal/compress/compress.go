// Package compress collapses redundant actions in a replay chain before it
// is executed.
//
// Strategies never reorder the actions they keep; they only drop. Chain
// applies its strategies until the chain stops shrinking, so compressing a
// compressed chain is a no-op.
package compress

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/provenance/internal/ir"
)

// Action is the view of a recorded action that strategies need.
type Action interface {
	FunctionID() string
	Parameters() ir.IRObject
	// Requires, Creates and Removes return object ids in edge order.
	Requires() []int64
	Creates() []int64
	Removes() []int64
}

// KeyFunc derives the deduplication key of an action from its parameters.
type KeyFunc func(params ir.IRObject) string

// CanonicalKey is the default KeyFunc: the canonical JSON of the parameter
// bag. Bags that cannot be canonicalized (they contain null) fall back to
// the sorted-key JSON form.
func CanonicalKey(params ir.IRObject) string {
	if params == nil {
		params = ir.IRObject{}
	}
	if data, err := ir.MarshalCanonical(params); err == nil {
		return string(data)
	}
	data, err := params.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("%v", ir.ToGo(params))
	}
	return string(data)
}

// Strategy drops redundant actions from chain. It must return a
// subsequence of chain.
type Strategy func(chain []Action) []Action

// LastOnly keeps, for actions with the given function id, only the last
// action per key anywhere in the chain.
func LastOnly(functionID string, key KeyFunc) Strategy {
	if key == nil {
		key = CanonicalKey
	}
	return func(chain []Action) []Action {
		last := make(map[string]int)
		for i, a := range chain {
			if a.FunctionID() == functionID {
				last[key(a.Parameters())] = i
			}
		}
		out := make([]Action, 0, len(chain))
		for i, a := range chain {
			if a.FunctionID() == functionID && last[key(a.Parameters())] != i {
				continue
			}
			out = append(out, a)
		}
		return out
	}
}

// LastConsecutive collapses runs of immediately adjacent actions with the
// given function id and equal keys into the last action of the run.
func LastConsecutive(functionID string, key KeyFunc) Strategy {
	if key == nil {
		key = CanonicalKey
	}
	return func(chain []Action) []Action {
		out := make([]Action, 0, len(chain))
		for i, a := range chain {
			if i+1 < len(chain) && a.FunctionID() == functionID {
				next := chain[i+1]
				if next.FunctionID() == functionID && key(next.Parameters()) == key(a.Parameters()) {
					continue
				}
			}
			out = append(out, a)
		}
		return out
	}
}

// CreateRemove cancels a create action against a later remove action of
// everything it created, provided no action in between touches those
// objects.
func CreateRemove(createFID, removeFID string) Strategy {
	return func(chain []Action) []Action {
		out := slices.Clone(chain)
		for {
			c, r, ok := findCancellable(out, createFID, removeFID)
			if !ok {
				return out
			}
			// r > c, so delete r first to keep c's index valid.
			out = slices.Delete(out, r, r+1)
			out = slices.Delete(out, c, c+1)
		}
	}
}

func findCancellable(chain []Action, createFID, removeFID string) (int, int, bool) {
	for r, rm := range chain {
		if rm.FunctionID() != removeFID {
			continue
		}
		targets := rm.Removes()
		if len(targets) == 0 {
			targets = rm.Requires()
		}
		if len(targets) == 0 {
			continue
		}
		c := producer(chain[:r], createFID, targets[0])
		if c < 0 || !sameSet(chain[c].Creates(), targets) {
			continue
		}
		if usedBetween(chain[c+1:r], targets) {
			continue
		}
		return c, r, true
	}
	return 0, 0, false
}

// producer returns the index of the nearest preceding create action that
// created id, or -1.
func producer(chain []Action, createFID string, id int64) int {
	for i := len(chain) - 1; i >= 0; i-- {
		a := chain[i]
		if a.FunctionID() == createFID && slices.Contains(a.Creates(), id) {
			return i
		}
	}
	return -1
}

func usedBetween(between []Action, ids []int64) bool {
	for _, a := range between {
		for _, id := range ids {
			if slices.Contains(a.Requires(), id) || slices.Contains(a.Removes(), id) || slices.Contains(a.Creates(), id) {
				return true
			}
		}
	}
	return false
}

func sameSet(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for _, id := range a {
		if !slices.Contains(b, id) {
			return false
		}
	}
	return true
}

type namedStrategy struct {
	name     string
	strategy Strategy
}

// Chain is an ordered registry of strategies.
//
// Thread-safety: register strategies before sharing the Chain; Apply is
// safe for concurrent use afterwards.
type Chain struct {
	strategies []namedStrategy
}

// NewChain creates a chain with the given strategies registered under
// generated names.
func NewChain(strategies ...Strategy) *Chain {
	c := &Chain{}
	for i, s := range strategies {
		c.Register(fmt.Sprintf("strategy-%d", i), s)
	}
	return c
}

// Register appends a named strategy.
func (c *Chain) Register(name string, s Strategy) {
	c.strategies = append(c.strategies, namedStrategy{name: name, strategy: s})
}

// Len returns the number of registered strategies.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.strategies)
}

// Apply runs every strategy in registration order, repeating the pass until
// the chain stops shrinking. A nil Chain returns the input unchanged.
func (c *Chain) Apply(chain []Action) []Action {
	if c.Len() == 0 || len(chain) == 0 {
		return chain
	}
	out := chain
	for {
		before := len(out)
		for _, s := range c.strategies {
			next := s.strategy(out)
			if len(next) < len(out) {
				slog.Debug("compressed replay chain",
					"strategy", s.name,
					"before", len(out),
					"after", len(next))
			}
			out = next
		}
		if len(out) >= before {
			return out
		}
	}
}

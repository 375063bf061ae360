package testutil

import (
	"sync"
	"testing"
)

// FixedIDs returns predetermined graph ids in order.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedIDs struct {
	t   testing.TB
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDs creates a generator that hands out ids in order.
//
//	gen := NewFixedIDs(t, "g1", "g2")
//	gen.Generate() // "g1"
//	gen.Generate() // "g2"
//	gen.Generate() // "" and t is marked failed
func NewFixedIDs(t testing.TB, ids ...string) *FixedIDs {
	return &FixedIDs{t: t, ids: ids}
}

// Generate returns the next id. Once the ids are used up it reports a test
// error and returns "".
func (g *FixedIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		g.t.Errorf("fixed ids exhausted after %d", len(g.ids))
		return ""
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// Remaining returns how many ids are left.
func (g *FixedIDs) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ids) - g.idx
}

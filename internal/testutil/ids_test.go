package testutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedIDs_InOrder(t *testing.T) {
	g := NewFixedIDs(t, "a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, 1, g.Remaining())
	assert.Equal(t, "b", g.Generate())
	assert.Zero(t, g.Remaining())
}

// errorTB captures Errorf instead of failing the enclosing test.
type errorTB struct {
	testing.TB
	errors []string
}

func (e *errorTB) Errorf(format string, args ...any) {
	e.errors = append(e.errors, fmt.Sprintf(format, args...))
}

func TestFixedIDs_ExhaustedReportsError(t *testing.T) {
	tb := &errorTB{TB: t}
	g := NewFixedIDs(tb, "a")
	g.Generate()

	assert.Empty(t, g.Generate())
	assert.Equal(t, []string{"fixed ids exhausted after 1"}, tb.errors)
}

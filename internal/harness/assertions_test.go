package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertStateCount,
		Expected: "3 states",
		Actual:   "2 states",
		Trace: []TraceEvent{
			{Seq: 1, Op: OpPush, Target: "create", State: "made"},
			{Seq: 2, Op: OpUndo, State: "start", Error: "not_found"},
		},
	}
	want := "Assertion failed: state_count\n" +
		"  Expected: 3 states\n" +
		"  Actual: 2 states\n" +
		"\nFull trace:\n" +
		"  [1] push create -> made\n" +
		"  [2] undo  -> start (not_found)\n"
	assert.Equal(t, want, err.Error())
}

func TestAssertionError_NoTrace(t *testing.T) {
	err := &AssertionError{Type: AssertObjects, Expected: "objects [a]", Actual: "objects []"}
	assert.NotContains(t, err.Error(), "Full trace")
}

func TestEvaluateAssertions(t *testing.T) {
	final := snapshot{current: 7, currentName: "State 3", objects: []string{"a", "b"}, states: 3}
	states := map[string]int64{"start": 1, "made": 7, "other": 4}
	trace := []TraceEvent{{Seq: 1, Op: OpPush, Target: "create", State: "made"}}

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{"current state", Assertion{Type: AssertCurrentState, State: "made"}, ""},
		{"wrong state", Assertion{Type: AssertCurrentState, State: "other"}, `state "other" (#4)`},
		{"label never reached", Assertion{Type: AssertCurrentState, State: "nowhere"}, "label was never reached"},
		{"objects in any order", Assertion{Type: AssertObjects, Objects: []string{"b", "a"}}, ""},
		{"missing object", Assertion{Type: AssertObjects, Objects: []string{"a"}}, "objects [a b]"},
		{"state count", Assertion{Type: AssertStateCount, Count: 3}, ""},
		{"wrong state count", Assertion{Type: AssertStateCount, Count: 4}, "4 states"},
		{"unknown type", Assertion{Type: "bogus"}, `unknown assertion type "bogus"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := evaluateAssertions(final, states, []Assertion{tt.assertion}, trace)
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], "assertions[0]: ")
			assert.Contains(t, errs[0], tt.wantErr)
		})
	}
}

func TestEvaluateAssertions_EmptyObjects(t *testing.T) {
	final := snapshot{current: 1, states: 1}
	errs := evaluateAssertions(final, nil, []Assertion{{Type: AssertObjects, Objects: []string{}}}, nil)
	assert.Empty(t, errs)
}

package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s -> %s", ev.Seq, ev.Op, ev.Target, ev.State)
			if ev.Error != "" {
				fmt.Fprintf(&buf, " (%s)", ev.Error)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// evaluateAssertions checks every assertion against the final graph and
// returns one message per failure.
func evaluateAssertions(final snapshot, states map[string]int64, assertions []Assertion, trace []TraceEvent) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertCurrentState:
			err = assertCurrentState(final, states, a)
		case AssertObjects:
			err = assertObjects(final, a)
		case AssertStateCount:
			err = assertStateCount(final, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			if ae, ok := err.(*AssertionError); ok {
				ae.Trace = trace
			}
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertCurrentState checks the current state is the labelled one.
func assertCurrentState(final snapshot, states map[string]int64, a Assertion) error {
	want, ok := states[a.State]
	if !ok {
		return &AssertionError{
			Type:     AssertCurrentState,
			Expected: fmt.Sprintf("state %q", a.State),
			Actual:   "label was never reached",
		}
	}
	if final.current != want {
		return &AssertionError{
			Type:     AssertCurrentState,
			Expected: fmt.Sprintf("state %q (#%d)", a.State, want),
			Actual:   fmt.Sprintf("state %q (#%d)", final.currentName, final.current),
		}
	}
	return nil
}

// assertObjects checks the member names of the current state, ignoring
// order.
func assertObjects(final snapshot, a Assertion) error {
	want := slices.Clone(a.Objects)
	sort.Strings(want)
	if !slices.Equal(want, final.objects) {
		return &AssertionError{
			Type:     AssertObjects,
			Expected: fmt.Sprintf("objects %v", want),
			Actual:   fmt.Sprintf("objects %v", final.objects),
		}
	}
	return nil
}

// assertStateCount checks the number of states in the graph.
func assertStateCount(final snapshot, a Assertion) error {
	if final.states != a.Count {
		return &AssertionError{
			Type:     AssertStateCount,
			Expected: fmt.Sprintf("%d states", a.Count),
			Actual:   fmt.Sprintf("%d states", final.states),
		}
	}
	return nil
}

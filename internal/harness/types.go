package harness

import (
	"errors"
	"sort"

	"github.com/roach88/provenance/internal/provenance"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq int    `json:"seq"`
	Op  string `json:"op"`

	// Target is the function id (push), state label (jump) or action
	// label (fork).
	Target string `json:"target,omitempty"`

	// Events are the orchestrator events fired while the step ran.
	Events []string `json:"events"`

	// State is the label (or name, when unlabelled) of the current state
	// after the step, and Objects its member names, sorted.
	State   string   `json:"state"`
	Objects []string `json:"objects"`

	// Error is the error kind the step failed with.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step behaved as expected and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Error kinds a step can be expected to fail with.
var errorKinds = map[string]error{
	"not_found":          provenance.ErrNotFound,
	"invalid_fork":       provenance.ErrInvalidFork,
	"command_failed":     provenance.ErrCommandFailed,
	"unknown_function":   provenance.ErrUnknownFunction,
	"invalid_parameters": provenance.ErrInvalidParameters,
	"unreachable":        provenance.ErrUnreachable,
	"forked_path":        provenance.ErrForkedPath,
	"not_invertible":     provenance.ErrNotInvertible,
}

// ErrorKinds returns the accepted expect_error values, sorted.
func ErrorKinds() []string {
	out := make([]string, 0, len(errorKinds))
	for k := range errorKinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// errorKind classifies err. Unknown errors classify as "error".
func errorKind(err error) string {
	for _, kind := range ErrorKinds() {
		if errors.Is(err, errorKinds[kind]) {
			return kind
		}
	}
	return "error"
}

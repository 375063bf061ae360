package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario drives one provenance graph through a list of steps and checks
// where it ended up.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps run in order against a fresh in-memory graph.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final graph.
	// Supported types: current_state, objects, state_count
	Assertions []Assertion `yaml:"assertions"`
}

// Step is exactly one of push, undo, jump or fork.
//
//	- push: rename          # function id of a demo command
//	  inputs: [a]           # object names, looked up in the current state
//	  args: { name: b }
//	  label: renamed        # names the reached state and the action
//	- undo: true
//	- jump: renamed         # a state label
//	- fork: { action: renamed, onto: start, replace: { a: c } }
//	  expect_error: invalid_fork
type Step struct {
	Push   string         `yaml:"push,omitempty"`
	Inputs []string       `yaml:"inputs,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`

	Undo bool `yaml:"undo,omitempty"`

	Jump string `yaml:"jump,omitempty"`

	Fork *ForkStep `yaml:"fork,omitempty"`

	// Label names the state the step reaches. For a push it also names
	// the action, so later fork steps can refer to it.
	Label string `yaml:"label,omitempty"`

	// ExpectError is the error kind the step must fail with. See
	// ErrorKinds.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// ForkStep grafts the subtree below a labelled action onto a labelled
// state. Replace maps object names in the copied actions to the objects
// that stand in for them.
type ForkStep struct {
	Action  string            `yaml:"action"`
	Onto    string            `yaml:"onto"`
	Replace map[string]string `yaml:"replace,omitempty"`
}

// Step operations.
const (
	OpPush = "push"
	OpUndo = "undo"
	OpJump = "jump"
	OpFork = "fork"
)

// Op returns the operation of the step, or "" when it names none or more
// than one.
func (s Step) Op() string {
	var ops []string
	if s.Push != "" {
		ops = append(ops, OpPush)
	}
	if s.Undo {
		ops = append(ops, OpUndo)
	}
	if s.Jump != "" {
		ops = append(ops, OpJump)
	}
	if s.Fork != nil {
		ops = append(ops, OpFork)
	}
	if len(ops) != 1 {
		return ""
	}
	return ops[0]
}

// Assertion validates the final graph.
type Assertion struct {
	// Type is one of current_state, objects, state_count.
	Type string `yaml:"type"`

	// State is the expected current state label (current_state).
	State string `yaml:"state,omitempty"`

	// Objects are the expected member names of the current state, in any
	// order (objects).
	Objects []string `yaml:"objects,omitempty"`

	// Count is the expected number of states in the graph (state_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertCurrentState = "current_state"
	AssertObjects      = "objects"
	AssertStateCount   = "state_count"
)

// StartLabel names the root state of every scenario.
const StartLabel = "start"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and that labels
// are defined before they are used.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	labels := map[string]bool{StartLabel: true}
	actions := map[string]bool{}
	for i, step := range s.Steps {
		op := step.Op()
		if op == "" {
			return fmt.Errorf("steps[%d]: exactly one of push, undo, jump, fork is required", i)
		}
		if step.ExpectError != "" && !slices.Contains(ErrorKinds(), step.ExpectError) {
			return fmt.Errorf("steps[%d]: unknown expect_error %q", i, step.ExpectError)
		}
		if op != OpPush && (len(step.Inputs) > 0 || step.Args != nil) {
			return fmt.Errorf("steps[%d]: inputs and args are only valid for push", i)
		}
		switch op {
		case OpJump:
			if !labels[step.Jump] {
				return fmt.Errorf("steps[%d]: unknown state label %q", i, step.Jump)
			}
		case OpFork:
			if step.Fork.Action == "" || step.Fork.Onto == "" {
				return fmt.Errorf("steps[%d]: fork needs action and onto", i)
			}
			if !actions[step.Fork.Action] {
				return fmt.Errorf("steps[%d]: unknown action label %q", i, step.Fork.Action)
			}
			if !labels[step.Fork.Onto] {
				return fmt.Errorf("steps[%d]: unknown state label %q", i, step.Fork.Onto)
			}
		}
		if step.Label != "" {
			if labels[step.Label] {
				return fmt.Errorf("steps[%d]: label %q defined twice", i, step.Label)
			}
			labels[step.Label] = true
			if op == OpPush {
				actions[step.Label] = true
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, labels); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion, labels map[string]bool) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertCurrentState:
		if !labels[a.State] {
			return fmt.Errorf("assertions[%d]: unknown state label %q", index, a.State)
		}
	case AssertObjects:
		if a.Objects == nil {
			return fmt.Errorf("assertions[%d]: objects list is required for objects (use [] for none)", index)
		}
	case AssertStateCount:
		if a.Count <= 0 {
			return fmt.Errorf("assertions[%d]: count must be positive for state_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

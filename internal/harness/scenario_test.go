package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario_Valid(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: ok
steps:
  - push: create
    args: { name: a }
    label: made
  - undo: true
  - jump: made
  - fork: { action: made, onto: start, replace: { a: b } }
assertions:
  - type: current_state
    state: made
  - type: objects
    objects: []
  - type: state_count
    count: 2
`))
	require.NoError(t, err)
	assert.Equal(t, "ok", s.Name)
	require.Len(t, s.Steps, 4)
	assert.Equal(t, OpPush, s.Steps[0].Op())
	assert.Equal(t, map[string]any{"name": "a"}, s.Steps[0].Args)
	assert.Equal(t, OpUndo, s.Steps[1].Op())
	assert.Equal(t, OpJump, s.Steps[2].Op())
	assert.Equal(t, OpFork, s.Steps[3].Op())
	assert.Equal(t, map[string]string{"a": "b"}, s.Steps[3].Fork.Replace)
	assert.NotNil(t, s.Assertions[1].Objects)
	assert.Empty(t, s.Assertions[1].Objects)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: x\nstep: []\n", "failed to parse YAML"},
		{"no name", "steps: [{undo: true}]\nassertions: [{type: state_count, count: 1}]\n", "name is required"},
		{"no steps", "name: x\nassertions: [{type: state_count, count: 1}]\n", "steps list is required"},
		{"no assertions", "name: x\nsteps: [{undo: true}]\n", "assertions list is required"},
		{"two ops", "name: x\nsteps: [{undo: true, jump: start}]\nassertions: [{type: state_count, count: 1}]\n", "exactly one of"},
		{"no op", "name: x\nsteps: [{label: y}]\nassertions: [{type: state_count, count: 1}]\n", "exactly one of"},
		{"unknown jump label", "name: x\nsteps: [{jump: nowhere}]\nassertions: [{type: state_count, count: 1}]\n", `unknown state label "nowhere"`},
		{"fork of state label", "name: x\nsteps: [{undo: true, label: s}, {fork: {action: s, onto: start}}]\nassertions: [{type: state_count, count: 1}]\n", `unknown action label "s"`},
		{"duplicate label", "name: x\nsteps: [{undo: true, label: start}]\nassertions: [{type: state_count, count: 1}]\n", "defined twice"},
		{"args on undo", "name: x\nsteps: [{undo: true, args: {a: 1}}]\nassertions: [{type: state_count, count: 1}]\n", "only valid for push"},
		{"unknown error kind", "name: x\nsteps: [{undo: true, expect_error: boom}]\nassertions: [{type: state_count, count: 1}]\n", `unknown expect_error "boom"`},
		{"unknown assertion", "name: x\nsteps: [{undo: true}]\nassertions: [{type: trace_order}]\n", "unknown assertion type"},
		{"objects missing", "name: x\nsteps: [{undo: true}]\nassertions: [{type: objects}]\n", "objects list is required"},
		{"zero count", "name: x\nsteps: [{undo: true}]\nassertions: [{type: state_count}]\n", "count must be positive"},
		{"assert unknown label", "name: x\nsteps: [{undo: true}]\nassertions: [{type: current_state, state: y}]\n", `unknown state label "y"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_Files(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	for _, p := range paths {
		_, err := LoadScenario(p)
		assert.NoError(t, err, p)
	}
}

func TestLoadScenario_Missing(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestErrorKinds_Sorted(t *testing.T) {
	kinds := ErrorKinds()
	assert.IsIncreasing(t, kinds)
	assert.Contains(t, kinds, "invalid_fork")
	assert.Contains(t, kinds, "not_invertible")
}

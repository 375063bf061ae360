package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs every scenario under testdata/scenarios and compares
// its trace with testdata/golden/<name>.golden.
func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(p)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "file name and scenario name differ")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

// TestScenarios_Deterministic runs the same scenario twice.
func TestScenarios_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/branch_and_fork.yaml")
	require.NoError(t, err)

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(scenario.Name, first.Trace)
	require.NoError(t, err)
	b, err := MarshalTrace(scenario.Name, second.Trace)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestMarshalTrace_Canonical(t *testing.T) {
	data, err := MarshalTrace("x", []TraceEvent{
		{Seq: 1, Op: OpUndo, Events: []string{}, State: "start", Objects: []string{}, Error: "not_found"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"x","trace":[{"error":"not_found","events":[],"objects":[],"op":"undo","seq":1,"state":"start"}]}`,
		string(data))
}

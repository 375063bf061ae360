// Package harness runs YAML scenarios against a provenance graph and
// compares the resulting traces with golden files.
//
// # Scenario Format
//
//	name: rename_and_undo
//	description: "Undo restores the old name"
//	steps:
//	  - push: create
//	    args: { name: a }
//	    label: created
//	  - push: rename
//	    inputs: [a]
//	    args: { name: b }
//	  - undo: true
//	  - jump: start
//	  - fork: { action: created, onto: start }
//	    expect_error: invalid_fork
//	assertions:
//	  - type: current_state
//	    state: start
//	  - type: objects
//	    objects: []
//	  - type: state_count
//	    count: 3
//
// The root state is labelled "start". A step label names the state the
// step reached; on a push it also names the action for later fork steps.
//
// # Demo Commands
//
// Scenarios push the commands registered by RegisterDemo: create, remove,
// rename and set over Items, each with an inverse, plus fail.
//
// # Deterministic Testing
//
// Every scenario runs on a fresh in-memory graph with a
// testutil.DeterministicClock, so node ids, timestamps and traces are
// identical across runs.
package harness

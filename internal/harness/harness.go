package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/roach88/provenance/internal/graph"
	"github.com/roach88/provenance/internal/ir"
	"github.com/roach88/provenance/internal/provenance"
	"github.com/roach88/provenance/internal/testutil"
)

// orchestratorEvents are the events copied into the trace. Backend change
// events are left out.
var orchestratorEvents = []string{
	provenance.EventAddState,
	provenance.EventAddAction,
	provenance.EventAddObject,
	provenance.EventExecute,
	provenance.EventExecuted,
	provenance.EventExecutedFirst,
	provenance.EventSwitchState,
	provenance.EventSwitchAction,
	provenance.EventRunChain,
	provenance.EventRanChain,
	provenance.EventForkedBranch,
}

// Harness runs one scenario against a fresh in-memory provenance graph
// with a deterministic clock and the demo command set.
type Harness struct {
	g      *provenance.Graph
	rec    *testutil.EventRecorder
	logger *slog.Logger

	states  map[string]int64
	actions map[string]int64
	labels  map[int64]string
}

// Option configures Run.
type Option func(*runOptions)

type runOptions struct {
	logger  *slog.Logger
	backend graph.Backend
}

// WithLogger logs step progress to l. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *runOptions) { o.logger = l }
}

// WithBackend runs the scenario on b instead of a fresh in-memory graph.
// b must be empty.
func WithBackend(b graph.Backend) Option {
	return func(o *runOptions) { o.backend = b }
}

// Run executes a scenario and returns the result.
//
// A step that fails unexpectedly, or succeeds when an error was expected,
// fails the result; the remaining steps still run. Assertions are evaluated
// against the final graph.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := runOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	if o.backend == nil {
		o.backend = graph.NewMemory(scenario.Name)
	}

	reg := provenance.NewRegistry()
	if err := RegisterDemo(reg); err != nil {
		return nil, fmt.Errorf("register demo commands: %w", err)
	}
	clock := testutil.NewDeterministicClock()
	g, err := provenance.New(ctx, o.backend, reg,
		provenance.WithClock(clock.Now),
		provenance.WithUser("harness"),
	)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g.Start(runCtx)
	defer g.Close()

	h := &Harness{
		g:       g,
		rec:     testutil.RecordEvents(o.backend.Events()),
		logger:  o.logger,
		states:  map[string]int64{},
		actions: map[string]int64{},
		labels:  map[int64]string{},
	}
	defer h.rec.Stop()

	final, err := h.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	h.label(StartLabel, final.current)

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.runStep(ctx, i, step)
		if err != nil {
			return nil, err
		}
		result.Trace = append(result.Trace, ev)

		switch {
		case ev.Error != "" && step.ExpectError == "":
			result.AddError(fmt.Sprintf("steps[%d] %s failed: %s", i, ev.Op, ev.Error))
		case ev.Error != step.ExpectError:
			result.AddError(fmt.Sprintf("steps[%d] %s: expected error %q, got %q", i, ev.Op, step.ExpectError, ev.Error))
		}
	}

	final, err = h.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for _, msg := range evaluateAssertions(final, h.states, scenario.Assertions, result.Trace) {
		result.AddError(msg)
	}
	return result, nil
}

// runStep executes one step and records it. The returned error is reserved
// for harness failures; step failures are recorded in the trace.
func (h *Harness) runStep(ctx context.Context, i int, step Step) (TraceEvent, error) {
	h.rec.Reset()
	ev := TraceEvent{Seq: i + 1, Op: step.Op()}

	var reached int64
	var err error
	switch ev.Op {
	case OpPush:
		ev.Target = step.Push
		reached, err = h.push(ctx, step)
	case OpUndo:
		err = h.g.Undo(ctx)
	case OpJump:
		ev.Target = step.Jump
		err = h.g.JumpTo(ctx, h.states[step.Jump])
	case OpFork:
		ev.Target = step.Fork.Action
		reached, err = h.fork(ctx, step.Fork)
	}
	if err != nil {
		ev.Error = errorKind(err)
		h.logger.Info("step failed", "step", i, "op", ev.Op, "error", err)
	}

	snap, snapErr := h.snapshot(ctx)
	if snapErr != nil {
		return TraceEvent{}, snapErr
	}
	if err == nil && step.Label != "" {
		if reached == 0 {
			reached = snap.current
		}
		h.label(step.Label, reached)
	}

	ev.Events = h.rec.Names(orchestratorEvents...)
	if ev.Events == nil {
		ev.Events = []string{}
	}
	ev.State = h.stateName(snap.current, snap.currentName)
	ev.Objects = snap.objects

	h.logger.Info("step completed",
		"step", i,
		"op", ev.Op,
		"target", ev.Target,
		"state", ev.State,
	)
	return ev, nil
}

func (h *Harness) push(ctx context.Context, step Step) (int64, error) {
	args := ir.IRObject{}
	if step.Args != nil {
		v, err := ir.FromGo(step.Args)
		if err != nil {
			return 0, fmt.Errorf("push %s args: %w", step.Push, err)
		}
		args = v.(ir.IRObject)
	}

	var cmd provenance.Command
	err := h.g.Do(ctx, func(context.Context) error {
		members := h.g.Act().ConsistsOf()
		inputs := make([]provenance.ObjectNode, 0, len(step.Inputs))
		for _, name := range step.Inputs {
			o, ok := memberNamed(members, name)
			if !ok {
				return fmt.Errorf("input %q: %w", name, provenance.ErrNotFound)
			}
			inputs = append(inputs, o)
		}
		var err error
		cmd, err = DemoCommand(step.Push, inputs, args)
		return err
	})
	if err != nil {
		return 0, err
	}

	res, err := h.g.PushWithResult(ctx, cmd)
	if err != nil {
		return 0, err
	}
	if step.Label != "" {
		h.actions[step.Label] = res.Action.ID()
	}
	return res.State.ID(), nil
}

func (h *Harness) fork(ctx context.Context, f *ForkStep) (int64, error) {
	actionID, ok := h.actions[f.Action]
	if !ok {
		return 0, fmt.Errorf("action %q: %w", f.Action, provenance.ErrNotFound)
	}
	onto, ok := h.states[f.Onto]
	if !ok {
		return 0, fmt.Errorf("state %q: %w", f.Onto, provenance.ErrNotFound)
	}

	replacements := map[int64]int64{}
	err := h.g.Do(ctx, func(context.Context) error {
		objects := h.g.Objects()
		for from, to := range f.Replace {
			src, ok := newestNamed(objects, from)
			if !ok {
				return fmt.Errorf("replace %q: %w", from, provenance.ErrNotFound)
			}
			dst, ok := newestNamed(objects, to)
			if !ok {
				return fmt.Errorf("replace with %q: %w", to, provenance.ErrNotFound)
			}
			replacements[src.ID()] = dst.ID()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	copies, err := h.g.Fork(ctx, actionID, onto, replacements)
	if err != nil {
		return 0, err
	}
	if len(copies) == 0 {
		return 0, nil
	}
	var reached int64
	err = h.g.Do(ctx, func(context.Context) error {
		if s, ok := copies[0].ResultsIn(); ok {
			reached = s.ID()
		}
		return nil
	})
	return reached, err
}

// snapshot is what the trace and the assertions observe of the graph.
type snapshot struct {
	current     int64
	currentName string
	objects     []string
	states      int
}

func (h *Harness) snapshot(ctx context.Context) (snapshot, error) {
	var s snapshot
	err := h.g.Do(ctx, func(context.Context) error {
		act := h.g.Act()
		s.current = act.ID()
		s.currentName = act.Name()
		s.objects = []string{}
		for _, o := range act.ConsistsOf() {
			s.objects = append(s.objects, o.Name())
		}
		sort.Strings(s.objects)
		s.states = len(h.g.States())
		return nil
	})
	return s, err
}

// label names a state. The first label of a state is the one traced.
func (h *Harness) label(name string, stateID int64) {
	h.states[name] = stateID
	if _, ok := h.labels[stateID]; !ok {
		h.labels[stateID] = name
	}
}

func (h *Harness) stateName(id int64, name string) string {
	if label, ok := h.labels[id]; ok {
		return label
	}
	return name
}

func memberNamed(members []provenance.ObjectNode, name string) (provenance.ObjectNode, bool) {
	for _, o := range members {
		if o.Name() == name {
			return o, true
		}
	}
	return provenance.ObjectNode{}, false
}

// newestNamed returns the most recently added object called name.
func newestNamed(objects []provenance.ObjectNode, name string) (provenance.ObjectNode, bool) {
	var out provenance.ObjectNode
	for _, o := range objects {
		if o.Name() == name && (out.Node == nil || o.ID() > out.ID()) {
			out = o
		}
	}
	return out, out.Node != nil
}

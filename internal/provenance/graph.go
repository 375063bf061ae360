package provenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/provenance/internal/compress"
	"github.com/roach88/provenance/internal/graph"
	"github.com/roach88/provenance/internal/ir"
)

// Orchestrator events. Backend events (add_node, ..., clear) are fired on
// the same emitter.
//
// Event payloads: Node is the subject named by the event; Args holds the
// extra values listed here.
const (
	EventAddState      = "add_state"      // Node: state
	EventAddAction     = "add_action"     // Node: action
	EventAddObject     = "add_object"     // Node: object
	EventExecute       = "execute"        // Node: action
	EventExecuted      = "executed"       // Node: action, Args: [StateNode]
	EventExecutedFirst = "executed_first" // Node: action
	EventSwitchState   = "switch_state"   // Node: new state, Args: [old StateNode]
	EventSwitchAction  = "switch_action"  // Node: new action, Args: [old ActionNode]
	EventRunChain      = "run_chain"      // Args: [[]ActionNode]
	EventRanChain      = "ran_chain"      // Node: target state, Args: [[]ActionNode]
	EventForkedBranch  = "forked_branch"  // Node: forked action, Args: [StateNode, []ActionNode]
	EventAddSlide      = "add_slide"      // Node: slide
	EventMoveSlide     = "move_slide"     // Node: slide, Args: [SlideNode after]
	EventRemoveSlide   = "remove_slide"   // Node: slide
	EventDestroySlide  = "destroy_slide"  // Node: first slide of the chain
	EventStartSlide    = "start_slide"    // Node: slide
	EventMigrated      = "migrated"       // Args: [graph.Descriptor]
)

// RootStateName is the name of the state created for an empty graph.
const RootStateName = "Start"

// Graph is the provenance orchestrator for one graph instance.
//
// CRITICAL: all mutations happen in the Run loop goroutine. Public
// operations enqueue a request and block until the loop completed it.
//
// Thread-safety model:
//   - Push, Undo, JumpTo, Fork, ... : safe from any goroutine except the
//     loop itself (event listeners and command functions)
//   - Run(): must be called from exactly one goroutine
//   - lookups: see package documentation
//
// INVARIANTS:
//   - exactly one state is current once New returns
//   - the current pointers move only when an action completed
type Graph struct {
	backend  atomic.Pointer[backendRef]
	events   *graph.Emitter
	registry *Registry
	chain    *compress.Chain
	ids      *graph.IDSequence
	clock    func() time.Time
	user     string
	desc     atomic.Pointer[graph.Descriptor]

	queue   *requestQueue
	started atomic.Bool
	stopped chan struct{}

	// loop-owned
	tx *txn
}

type backendRef struct{ graph.Backend }

// Option configures a Graph.
type Option func(*Graph)

// WithCompression sets the strategies applied to replay chains.
func WithCompression(c *compress.Chain) Option {
	return func(g *Graph) { g.chain = c }
}

// WithClock sets the time source for action timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Graph) { g.clock = now }
}

// WithUser records user on every new action.
func WithUser(user string) Option {
	return func(g *Graph) { g.user = user }
}

// WithDescriptor attaches manager metadata to the graph.
func WithDescriptor(desc graph.Descriptor) Option {
	return func(g *Graph) { g.desc.Store(&desc) }
}

// New wraps backend. An empty backend gets a root state; a restored one
// resumes at its persisted current state.
//
// Call Run (or Start) before submitting operations.
func New(ctx context.Context, backend graph.Backend, registry *Registry, opts ...Option) (*Graph, error) {
	if registry == nil {
		registry = NewRegistry()
	}
	g := &Graph{
		registry: registry,
		ids:      graph.NewIDSequence(),
		clock:    time.Now,
		queue:    newRequestQueue(),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.desc.Load() == nil {
		g.desc.Store(&graph.Descriptor{ID: backend.ID()})
	}

	events := backend.Events()
	if events == nil {
		events = graph.NewEmitter()
		backend.Bind(events)
	}
	g.events = events
	g.backend.Store(&backendRef{backend})

	if err := g.attach(ctx); err != nil {
		return nil, fmt.Errorf("new provenance graph %s: %w", backend.ID(), err)
	}
	return g, nil
}

// attach seeds the id sequence and repairs the current pointers of the
// backend contents.
func (g *Graph) attach(ctx context.Context) error {
	b := g.store()
	var max int64
	for _, n := range b.Nodes() {
		max = maxInt64(max, n.ID())
	}
	for _, e := range b.Edges() {
		max = maxInt64(max, e.ID())
	}
	g.ids.Advance(max)

	if _, ok := g.act(); ok {
		return nil
	}
	if root, ok := g.root(); ok {
		_, last := b.Current()
		return b.SetCurrent(ctx, root.ID(), last)
	}
	root, err := g.createState(ctx, RootStateName)
	if err != nil {
		return err
	}
	return b.SetCurrent(ctx, root.ID(), 0)
}

func maxInt64(a, b int64) int64 {
	if b > a {
		return b
	}
	return a
}

func (g *Graph) store() graph.Backend {
	return g.backend.Load().Backend
}

// Start runs the loop in a new goroutine.
func (g *Graph) Start(ctx context.Context) {
	go func() {
		_ = g.Run(ctx)
	}()
}

// Run starts the single-writer request loop.
// Blocks until ctx is cancelled or Close is called; pending requests then
// fail with ErrClosed.
//
// ERROR HANDLING: a failed request is logged with full context and its
// error is returned to the caller that submitted it. The loop continues.
func (g *Graph) Run(ctx context.Context) error {
	if !g.started.CompareAndSwap(false, true) {
		return fmt.Errorf("provenance graph %s: Run called twice", g.ID())
	}
	defer close(g.stopped)
	slog.Info("provenance graph starting", "graph", g.ID())

	for {
		if r, ok := g.queue.TryDequeue(); ok {
			if g.queue.Closed() {
				r.done <- opError(r.op, "", ErrClosed)
				continue
			}
			g.process(r)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("provenance graph stopping: context cancelled", "graph", g.ID())
			g.queue.Close()
			g.drain()
			return ctx.Err()

		case <-g.queue.Wait():
			if g.queue.Closed() && g.queue.Len() == 0 {
				slog.Info("provenance graph stopping: closed", "graph", g.ID())
				return nil
			}
		}
	}
}

func (g *Graph) process(r *request) {
	err := r.fn(r.ctx)
	if err != nil {
		logRequestError(g.ID(), r, err)
	}
	r.done <- err
}

func (g *Graph) drain() {
	for {
		r, ok := g.queue.TryDequeue()
		if !ok {
			return
		}
		r.done <- opError(r.op, "", ErrClosed)
	}
}

// logRequestError logs a failed request with enough context to reproduce
// it manually.
func logRequestError(graphID string, r *request, err error) {
	slog.Error("provenance request failed",
		"graph", graphID,
		"op", r.op,
		"error", err,
	)
}

// Close stops the loop. The request in flight completes; queued requests
// fail with ErrClosed. Close does not close the backend.
func (g *Graph) Close() error {
	g.queue.Close()
	if g.started.Load() {
		<-g.stopped
	} else {
		g.drain()
	}
	return nil
}

// submit enqueues fn and blocks until the loop ran it. Cancelling ctx stops
// the wait, not the request: an operation that started always completes.
func (g *Graph) submit(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	r := &request{
		op:   op,
		ctx:  context.WithoutCancel(ctx),
		fn:   fn,
		done: make(chan error, 1),
	}
	if !g.queue.Enqueue(r) {
		return opError(op, "", ErrClosed)
	}
	select {
	case err := <-r.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the loop goroutine, after every request submitted before
// it. Use it for consistent reads while other goroutines push.
func (g *Graph) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return g.submit(ctx, "do", fn)
}

// On subscribes fn to the named event (or graph.Wildcard).
func (g *Graph) On(name string, fn graph.Listener) func() {
	return g.events.On(name, fn)
}

func (g *Graph) fire(name string, n *graph.Node, args ...any) {
	g.events.Fire(graph.Event{Name: name, Node: n, Args: args})
}

// ID returns the graph id.
func (g *Graph) ID() string {
	return g.store().ID()
}

// Descriptor returns the manager metadata of the graph.
func (g *Graph) Descriptor() graph.Descriptor {
	d := *g.desc.Load()
	n, e := g.store().Size()
	d.Size = [2]int{n, e}
	return d
}

// Backend returns the active backend.
func (g *Graph) Backend() graph.Backend {
	return g.store()
}

// Registry returns the command registry.
func (g *Graph) Registry() *Registry {
	return g.registry
}

// Act returns the current state.
func (g *Graph) Act() StateNode {
	s, _ := g.act()
	return s
}

func (g *Graph) act() (StateNode, bool) {
	act, _ := g.store().Current()
	n, ok := g.store().Node(act)
	if !ok || n.Type() != TypeState {
		return StateNode{}, false
	}
	return StateNode{n}, true
}

// LastAction returns the most recently executed action.
func (g *Graph) LastAction() (ActionNode, bool) {
	_, last := g.store().Current()
	return g.ActionByID(last)
}

// root returns the first state without a creating action.
func (g *Graph) root() (StateNode, bool) {
	for _, s := range g.States() {
		if len(s.Creators()) == 0 {
			return s, true
		}
	}
	return StateNode{}, false
}

func (g *Graph) nodesOf(typ string) []*graph.Node {
	var out []*graph.Node
	for _, n := range g.store().Nodes() {
		if n.Type() == typ {
			out = append(out, n)
		}
	}
	return out
}

// States returns every state in creation order.
func (g *Graph) States() []StateNode {
	nodes := g.nodesOf(TypeState)
	out := make([]StateNode, len(nodes))
	for i, n := range nodes {
		out[i] = StateNode{n}
	}
	return out
}

// Actions returns every action in creation order.
func (g *Graph) Actions() []ActionNode {
	return actionsOf(g.nodesOf(TypeAction))
}

// Objects returns every object in creation order.
func (g *Graph) Objects() []ObjectNode {
	nodes := g.nodesOf(TypeObject)
	out := make([]ObjectNode, len(nodes))
	for i, n := range nodes {
		out[i] = ObjectNode{n}
	}
	return out
}

// Slides returns every slide in creation order.
func (g *Graph) Slides() []SlideNode {
	nodes := g.nodesOf(TypeSlide)
	out := make([]SlideNode, len(nodes))
	for i, n := range nodes {
		out[i] = SlideNode{n}
	}
	return out
}

func (g *Graph) typed(id int64, typ string) (*graph.Node, bool) {
	n, ok := g.store().Node(id)
	if !ok || n.Type() != typ {
		return nil, false
	}
	return n, true
}

func (g *Graph) StateByID(id int64) (StateNode, bool) {
	n, ok := g.typed(id, TypeState)
	return StateNode{n}, ok
}

func (g *Graph) ActionByID(id int64) (ActionNode, bool) {
	n, ok := g.typed(id, TypeAction)
	return ActionNode{n}, ok
}

func (g *Graph) ObjectByID(id int64) (ObjectNode, bool) {
	return g.objectByID(id)
}

func (g *Graph) objectByID(id int64) (ObjectNode, bool) {
	n, ok := g.typed(id, TypeObject)
	return ObjectNode{n}, ok
}

func (g *Graph) SlideByID(id int64) (SlideNode, bool) {
	n, ok := g.typed(id, TypeSlide)
	return SlideNode{n}, ok
}

// txn records what the request in flight changed so a failed command can
// be rolled back: created nodes and edges, overwritten attributes and
// replaced runtime values.
type txn struct {
	nodes    []*graph.Node
	edges    []*graph.Edge
	attrs    []attrChange
	payloads []payloadChange
}

type attrChange struct {
	node    *graph.Node
	key     string
	old     ir.IRValue
	existed bool
}

type payloadChange struct {
	node *graph.Node
	old  any
}

func (g *Graph) begin() {
	g.tx = &txn{}
}

func (g *Graph) commit() {
	g.tx = nil
}

// rollback restores runtime values and attributes, then removes what the
// transaction created, newest first.
func (g *Graph) rollback(ctx context.Context) error {
	tx := g.tx
	g.tx = nil
	if tx == nil {
		return nil
	}
	b := g.store()
	for i := len(tx.payloads) - 1; i >= 0; i-- {
		tx.payloads[i].node.Payload = tx.payloads[i].old
	}
	touched := make(map[*graph.Node]bool)
	var order []*graph.Node
	for i := len(tx.attrs) - 1; i >= 0; i-- {
		c := tx.attrs[i]
		if c.existed {
			c.node.SetAttr(c.key, c.old)
		} else {
			c.node.RemoveAttr(c.key)
		}
		if !touched[c.node] {
			touched[c.node] = true
			order = append(order, c.node)
		}
	}
	for _, n := range order {
		if _, ok := b.Node(n.ID()); !ok {
			continue
		}
		if err := b.UpdateNode(ctx, n); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
	}
	for i := len(tx.edges) - 1; i >= 0; i-- {
		e := tx.edges[i]
		if _, ok := b.Edge(e.ID()); !ok {
			continue
		}
		if err := b.RemoveEdge(ctx, e); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
	}
	for i := len(tx.nodes) - 1; i >= 0; i-- {
		n := tx.nodes[i]
		if _, ok := b.Node(n.ID()); !ok {
			continue
		}
		if err := b.RemoveNode(ctx, n); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
	}
	return nil
}

func (g *Graph) addNode(ctx context.Context, typ string, attrs ir.IRObject) (*graph.Node, error) {
	n := graph.NewNode(g.ids.Next(), typ, attrs)
	if err := g.store().AddNode(ctx, n); err != nil {
		return nil, err
	}
	if g.tx != nil {
		g.tx.nodes = append(g.tx.nodes, n)
	}
	return n, nil
}

func (g *Graph) addEdge(ctx context.Context, typ string, source, target *graph.Node, attrs ir.IRObject) (*graph.Edge, error) {
	e := graph.NewEdge(g.ids.Next(), typ, source, target, attrs)
	if err := g.store().AddEdge(ctx, e); err != nil {
		return nil, err
	}
	if g.tx != nil {
		g.tx.edges = append(g.tx.edges, e)
	}
	return e, nil
}

func (g *Graph) removeEdge(ctx context.Context, e *graph.Edge) error {
	return g.store().RemoveEdge(ctx, e)
}

func (g *Graph) setAttr(ctx context.Context, n *graph.Node, key string, v ir.IRValue) error {
	old, existed := ir.CloneValue(n.Attr(key)), n.HasAttr(key)
	if !n.SetAttr(key, v) {
		return nil
	}
	if g.tx != nil {
		g.tx.attrs = append(g.tx.attrs, attrChange{node: n, key: key, old: old, existed: existed})
	}
	return g.store().UpdateNode(ctx, n)
}

func indexAttr(i int) ir.IRObject {
	return ir.Object(ir.O(attrIndex, ir.IRInt(i)))
}

// setPayload replaces the runtime value of n, journaled like setAttr.
func (g *Graph) setPayload(n *graph.Node, v any) {
	if g.tx != nil {
		g.tx.payloads = append(g.tx.payloads, payloadChange{node: n, old: n.Payload})
	}
	n.Payload = v
}

func (g *Graph) now() int64 {
	return g.clock().UnixMilli()
}

func (g *Graph) setCurrent(ctx context.Context, act StateNode, last ActionNode) error {
	var lastID int64
	if last.Node != nil {
		lastID = last.ID()
	}
	return g.store().SetCurrent(ctx, act.ID(), lastID)
}

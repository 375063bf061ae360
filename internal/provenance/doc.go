// Package provenance records user operations as reversible actions in a
// state graph and moves between states by executing, inverting and
// replaying them.
//
// The graph holds four node kinds:
//
//	object  a tracked reference to an external value
//	action  a recorded command invocation (function id + parameters)
//	state   the set of objects that exist after an action
//	slide   a presentation pointer to a state, chained with next edges
//
// and these edge kinds:
//
//	state  --next-->       action    action taken from the state
//	action --resultsIn-->  state     state the action produced
//	action --requires-->   object    ordered inputs
//	action --creates-->    object    ordered outputs
//	action --removes-->    object    ordered outputs
//	action --inverses-->   action    cached inverse
//	state  --consistsOf--> object    membership
//	slide  --jumpTo-->     state
//	slide  --next-->       slide
//
// Concurrency model: Graph is an actor. Run processes one request at a time
// in FIFO order; every public mutation enqueues a request and blocks until
// it completes, including the full replay chain of a jump. The current
// state therefore never changes while a request is observed mid-flight.
//
// Lookups (Act, States, ObjectByID, ...) read the backend directly. They
// are safe from event listeners and command functions (both run on the
// loop goroutine) and after a public operation has returned. Use Do to
// read from another goroutine while requests are in flight.
package provenance

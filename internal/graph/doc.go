// Package graph provides attributed graph primitives and the storage
// backend contract shared by every provenance graph.
//
// # Primitives
//
// Nodes and edges carry a stable int64 identity and an open IRObject
// attribute bag (Attrs). An Edge has exactly one source and one target; it
// registers itself in the endpoints' outgoing/incoming lists when created
// with NewEdge and removes itself on Detach. Endpoints never change after
// construction. Typed lookups (Outgoing, Incoming) filter by edge type, so
// the cyclic structure of a history (inverse loops, revisited states) lives
// in first-class edge records rather than ad hoc back-pointers.
//
// # Backends
//
// Backend is the persist/restore contract. Memory is the pure in-process
// implementation; storage/local and storage/remote embed it and mirror every
// mutation into a key/value store or a remote data cache. All mutators fire
// a change event through the bound Emitter.
//
// # Concurrency
//
// Backends guard their collections with a mutex so that observers (API
// handlers, managers) may read while the owning orchestrator writes. Node
// and edge attribute bags are NOT synchronized: only the single writer that
// owns the graph mutates them.
package graph

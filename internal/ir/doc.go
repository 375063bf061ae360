// Package ir provides the value model shared by every provenance package.
//
// Attribute bags on graph nodes and edges, command parameter bags and the
// persisted graph dump all use the IRValue variant defined here. ir imports
// nothing internal, so every other package can depend on it.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers. Action identity is a
//     hash over canonical JSON and floats break determinism.
//   - IRNull exists so a cleared attribute survives a persist/restore cycle.
//   - Canonical JSON (RFC 8785) is the only serialization used for hashing.
package ir

package manager

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// IDGenerator creates graph ids.
// Implemented by UUIDv7Generator and ULIDGenerator; tests use
// testutil.FixedIDs.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 graph ids.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ULIDGenerator generates lexically sortable ULIDs for remote graphs.
//
// Thread-safety: ulid.Make uses a process-wide monotonic entropy source
// and is safe for concurrent use.
type ULIDGenerator struct{}

// Generate creates a new ULID string.
func (ULIDGenerator) Generate() string {
	return ulid.Make().String()
}

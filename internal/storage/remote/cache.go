// Package remote implements the graph backend that stores whole graph dumps
// in a remote data cache.
//
// Every mutation is applied to the in-process graph and then the full dump
// is uploaded. Dumps carry a BLAKE3 checksum that is verified on load.
package remote

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/roach88/provenance/internal/graph"
)

var (
	// ErrNotFound is returned when the cache has no graph with the id.
	ErrNotFound = errors.New("remote graph not found")

	// ErrChecksumMismatch is returned when a loaded dump does not match
	// its stored checksum.
	ErrChecksumMismatch = errors.New("dump checksum mismatch")

	// ErrStorage wraps every failed remote read or write.
	ErrStorage = errors.New("remote storage failure")
)

// DataCache uploads and downloads whole graph dumps.
type DataCache interface {
	List(ctx context.Context) ([]graph.Descriptor, error)
	Load(ctx context.Context, id string) (graph.Descriptor, *graph.Dump, error)
	Save(ctx context.Context, desc graph.Descriptor, d *graph.Dump) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Checksum returns the hex BLAKE3 digest of an encoded dump.
func Checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func decodeVerified(id string, data []byte, checksum string) (*graph.Dump, error) {
	if got := Checksum(data); got != checksum {
		return nil, fmt.Errorf("load %s: %w (stored %.12s, computed %.12s)", id, ErrChecksumMismatch, checksum, got)
	}
	return graph.DecodeDump(data)
}

type memoryRecord struct {
	desc     graph.Descriptor
	data     []byte
	checksum string
}

// MemoryCache is an in-process DataCache for tests and local development.
// It stores encoded dumps so loads go through the same decode and checksum
// path as a real remote.
type MemoryCache struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	failure error
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{records: make(map[string]memoryRecord)}
}

func (c *MemoryCache) List(_ context.Context) ([]graph.Descriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]graph.Descriptor, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *MemoryCache) Load(_ context.Context, id string) (graph.Descriptor, *graph.Dump, error) {
	c.mu.RLock()
	r, ok := c.records[id]
	c.mu.RUnlock()
	if !ok {
		return graph.Descriptor{}, nil, fmt.Errorf("load %s: %w", id, ErrNotFound)
	}
	d, err := decodeVerified(id, r.data, r.checksum)
	if err != nil {
		return graph.Descriptor{}, nil, err
	}
	return r.desc, d, nil
}

func (c *MemoryCache) Save(_ context.Context, desc graph.Descriptor, d *graph.Dump) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure != nil {
		return c.failure
	}
	data, err := graph.EncodeDump(d)
	if err != nil {
		return err
	}
	c.records[desc.ID] = memoryRecord{desc: desc, data: data, checksum: Checksum(data)}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	delete(c.records, id)
	return nil
}

// SetFailure makes every Save fail with err until cleared with nil.
func (c *MemoryCache) SetFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failure = err
}

// corrupt flips a byte of the stored dump. Used for testing.
func (c *MemoryCache) corrupt(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.records[id]
	if len(r.data) > 0 {
		r.data = append([]byte(nil), r.data...)
		r.data[len(r.data)/2] ^= 0x01
	}
	c.records[id] = r
}

func (c *MemoryCache) Close() error { return nil }

var _ DataCache = (*MemoryCache)(nil)

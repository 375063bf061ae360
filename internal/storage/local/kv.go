package local

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// KV is a string key/value store with atomic batch writes.
type KV interface {
	// Get returns the value under key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Keys returns every key with the given prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Apply deletes del and then writes set, atomically. Deleting a
	// missing key is not an error.
	Apply(ctx context.Context, set map[string]string, del []string) error

	Close() error
}

// SessionKV is a process-memory KV.
type SessionKV struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewSessionKV creates an empty session store.
func NewSessionKV() *SessionKV {
	return &SessionKV{values: make(map[string]string)}
}

func (s *SessionKV) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *SessionKV) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *SessionKV) Apply(ctx context.Context, set map[string]string, del []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range del {
		delete(s.values, k)
	}
	for k, v := range set {
		s.values[k] = v
	}
	return nil
}

// Len returns the number of stored keys.
func (s *SessionKV) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

func (s *SessionKV) Close() error { return nil }

var (
	_ KV = (*SessionKV)(nil)
	_ KV = (*SQLiteKV)(nil)
)

package graph

import "sync/atomic"

// IDSequence allocates node and edge ids.
//
// Ids are strictly increasing and never reused, so a restored graph seeded
// with Advance(dump.MaxID()) keeps allocating fresh ids.
//
// Thread-safety: safe for concurrent use (atomic operations).
type IDSequence struct {
	seq atomic.Int64
}

// NewIDSequence creates a sequence whose first id is 1.
func NewIDSequence() *IDSequence {
	return &IDSequence{}
}

// Next returns the next id.
func (s *IDSequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last allocated id.
func (s *IDSequence) Current() int64 {
	return s.seq.Load()
}

// Advance moves the sequence forward so the next id is greater than to.
// It never moves backwards.
func (s *IDSequence) Advance(to int64) {
	for {
		cur := s.seq.Load()
		if cur >= to || s.seq.CompareAndSwap(cur, to) {
			return
		}
	}
}

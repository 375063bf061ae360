// Package stream fans provenance graph events out to outbound transports.
//
// A Broadcaster is fed from a graph listener, which runs on the graph's
// request loop. Publish never blocks: a subscriber whose buffer is full
// misses the message. Transports (the MQTT publisher, the websocket
// endpoint) read from their own subscription on their own goroutine.
package stream

import (
	"sync"
	"time"

	"github.com/roach88/provenance/internal/graph"
)

const (
	// subscriberBuffer is the per-subscriber channel capacity.
	subscriberBuffer = 64

	// DefaultHistory is the number of messages kept for late subscribers.
	DefaultHistory = 256
)

// Message is the wire form of one graph event.
type Message struct {
	Graph string `json:"graph"`
	Event string `json:"event"`
	Node  int64  `json:"node,omitempty"`
	Type  string `json:"type,omitempty"`
	Edge  int64  `json:"edge,omitempty"`
	Attr  string `json:"attr,omitempty"`
	TS    int64  `json:"ts"`
}

// FromEvent converts ev into its wire form.
func FromEvent(graphID string, ev graph.Event, now time.Time) Message {
	m := Message{Graph: graphID, Event: ev.Name, Attr: ev.Attr, TS: now.UnixMilli()}
	if ev.Node != nil {
		m.Node = ev.Node.ID()
		m.Type = ev.Node.Type()
	}
	if ev.Edge != nil {
		m.Edge = ev.Edge.ID()
		if m.Type == "" {
			m.Type = ev.Edge.Type()
		}
	}
	return m
}

// Subscriber receives broadcast messages.
type Subscriber chan Message

// Broadcaster distributes messages to subscribers and keeps a bounded
// history.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
	history     *ring
	clock       func() time.Time
}

// NewBroadcaster creates a broadcaster remembering the last history
// messages (DefaultHistory when history <= 0).
func NewBroadcaster(history int) *Broadcaster {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Broadcaster{
		subscribers: make(map[Subscriber]struct{}),
		history:     newRing(history),
		clock:       time.Now,
	}
}

// Subscribe adds a subscriber and returns its channel.
func (b *Broadcaster) Subscribe() Subscriber {
	ch := make(Subscriber, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes sub and closes its channel. Unknown subscribers are
// ignored.
func (b *Broadcaster) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Close unsubscribes everyone.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Len returns the number of subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish records m and offers it to every subscriber.
func (b *Broadcaster) Publish(m Message) {
	b.history.add(m)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- m:
		default:
		}
	}
}

// Recent returns up to n of the newest messages, oldest first. n <= 0
// returns the whole history.
func (b *Broadcaster) Recent(n int) []Message {
	all := b.history.snapshot()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Source is an event source identified by a graph id.
type Source interface {
	ID() string
	On(name string, fn graph.Listener) func()
}

// Attach forwards every event of src to b and returns the detach func.
func (b *Broadcaster) Attach(src Source) func() {
	return src.On(graph.Wildcard, func(ev graph.Event) {
		b.Publish(FromEvent(src.ID(), ev, b.clock()))
	})
}

// ring is a fixed-size message history.
type ring struct {
	mu    sync.Mutex
	buf   []Message
	next  int
	count int
}

func newRing(size int) *ring {
	return &ring{buf: make([]Message, size)}
}

func (r *ring) add(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = m
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *ring) snapshot() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, 0, r.count)
	start := (r.next - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

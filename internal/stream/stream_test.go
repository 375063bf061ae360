package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provenance/internal/graph"
)

type fakeSource struct {
	*graph.Emitter
	id string
}

func (s fakeSource) ID() string { return s.id }

func TestFromEvent(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	s := graph.NewNode(3, "state", nil)
	a := graph.NewNode(4, "action", nil)
	e := graph.NewEdge(9, "resultsIn", a, s, nil)

	m := FromEvent("g1", graph.Event{Name: "add_state", Node: s}, now)
	assert.Equal(t, Message{Graph: "g1", Event: "add_state", Node: 3, Type: "state", TS: 1700000000000}, m)

	m = FromEvent("g1", graph.Event{Name: graph.EventAddEdge, Edge: e}, now)
	assert.Equal(t, int64(9), m.Edge)
	assert.Equal(t, "resultsIn", m.Type)
	assert.Zero(t, m.Node)
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(0)
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	require.Equal(t, 2, b.Len())

	b.Publish(Message{Event: "executed"})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case m := <-sub:
			assert.Equal(t, "executed", m.Event)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	}

	b.Unsubscribe(sub1)
	_, ok := <-sub1
	assert.False(t, ok, "unsubscribe closes the channel")
	b.Unsubscribe(sub1)
	assert.Equal(t, 1, b.Len())

	b.Close()
	_, ok = <-sub2
	assert.False(t, ok)
	assert.Zero(t, b.Len())
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster(4)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(Message{TS: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, sub, subscriberBuffer)
}

func TestBroadcaster_Recent(t *testing.T) {
	b := NewBroadcaster(3)
	for i := 1; i <= 5; i++ {
		b.Publish(Message{TS: int64(i)})
	}

	ts := func(ms []Message) []int64 {
		out := make([]int64, len(ms))
		for i, m := range ms {
			out[i] = m.TS
		}
		return out
	}
	assert.Equal(t, []int64{3, 4, 5}, ts(b.Recent(0)))
	assert.Equal(t, []int64{4, 5}, ts(b.Recent(2)))
	assert.Equal(t, []int64{3, 4, 5}, ts(b.Recent(10)))
}

func TestBroadcaster_Attach(t *testing.T) {
	src := fakeSource{Emitter: graph.NewEmitter(), id: "g7"}
	b := NewBroadcaster(0)
	b.clock = func() time.Time { return time.UnixMilli(42) }
	sub := b.Subscribe()

	detach := b.Attach(src)
	src.Fire(graph.Event{Name: "switch_state", Node: graph.NewNode(1, "state", nil)})
	detach()
	src.Fire(graph.Event{Name: "ignored"})

	require.Len(t, sub, 1)
	m := <-sub
	assert.Equal(t, Message{Graph: "g7", Event: "switch_state", Node: 1, Type: "state", TS: 42}, m)
}

package graph

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitter_RegistrationOrderAcrossWildcard(t *testing.T) {
	e := NewEmitter()

	var order []string
	e.On("add_node", func(Event) { order = append(order, "first") })
	e.On(Wildcard, func(Event) { order = append(order, "wildcard") })
	e.On("add_node", func(Event) { order = append(order, "third") })
	e.On("remove_node", func(Event) { order = append(order, "other") })

	e.Fire(Event{Name: "add_node"})

	assert.Equal(t, []string{"first", "wildcard", "third"}, order)
}

func TestEmitter_UnsubscribeDuringFire(t *testing.T) {
	e := NewEmitter()

	calls := 0
	var off func()
	off = e.On("clear", func(Event) {
		calls++
		off()
	})

	e.Fire(Event{Name: "clear"})
	e.Fire(Event{Name: "clear"})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, e.Len())
}

func TestEmitter_NilSafe(t *testing.T) {
	var e *Emitter
	assert.NotPanics(t, func() { e.Fire(Event{Name: "x"}) })
}

func TestEmitter_ConcurrentOnAndFire(t *testing.T) {
	e := NewEmitter()

	var mu sync.Mutex
	count := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			off := e.On("tick", func(Event) {
				mu.Lock()
				count++
				mu.Unlock()
			})
			e.Fire(Event{Name: "tick"})
			off()
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, count, 10)
	assert.Equal(t, 0, e.Len())
}

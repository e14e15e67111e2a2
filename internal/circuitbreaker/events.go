package circuitbreaker

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event describes one state transition.
type Event struct {
	Service string
	From    State
	To      State
	At      time.Time
	// Counts is the rolling window as it stood just before the transition.
	Counts Counts
}

// eventBus fans state changes out to subscribers without ever blocking the
// publisher.
type eventBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  uint64
	dropped atomic.Uint64
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[uint64]chan Event)}
}

func (e *eventBus) subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = ch
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
			close(ch)
		})
	}
}

func (e *eventBus) publish(ev Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.dropped.Add(1)
		}
	}
}

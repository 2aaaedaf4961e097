package event

import (
	"reflect"
	"sync"
)

// Bus is a double-buffered publish/subscribe bus for game events. Emit
// appends to the back buffer; SwapBuffers plus DispatchAll delivers the
// previous interval's events in emission order. Handlers therefore never
// run in the middle of the operation that emitted the event.
type Bus struct {
	mu       sync.Mutex
	handlers map[reflect.Type][]func(any)
	back     []any
	front    []any
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]func(any))}
}

// Subscribe registers fn for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	var zero T
	t := reflect.TypeOf(zero)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

// Emit queues an event for the next dispatch.
func (b *Bus) Emit(ev any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.back = append(b.back, ev)
}

// SwapBuffers moves queued events into the dispatch buffer.
func (b *Bus) SwapBuffers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.front = b.back
	b.back = nil
}

// DispatchAll delivers every event in the dispatch buffer. Handlers run
// without the bus lock held, so they may emit further events.
func (b *Bus) DispatchAll() {
	b.mu.Lock()
	events := b.front
	b.front = nil
	b.mu.Unlock()

	for _, ev := range events {
		b.mu.Lock()
		hs := b.handlers[reflect.TypeOf(ev)]
		b.mu.Unlock()
		for _, h := range hs {
			h(ev)
		}
	}
}

package device

import (
	"sync"

	"firestige.xyz/tanalyzer/internal/core"
)

// Events keeps the handler registrations of a device. Implementations embed
// it to satisfy OnPacketArrival and OnCaptureStopped.
type Events struct {
	mu       sync.RWMutex
	nextID   int
	arrivals map[int]ArrivalHandler
	stopped  map[int]StoppedHandler
}

func (e *Events) OnPacketArrival(h ArrivalHandler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.arrivals == nil {
		e.arrivals = make(map[int]ArrivalHandler)
	}
	id := e.nextID
	e.nextID++
	e.arrivals[id] = h
	return func() {
		e.mu.Lock()
		delete(e.arrivals, id)
		e.mu.Unlock()
	}
}

func (e *Events) OnCaptureStopped(h StoppedHandler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped == nil {
		e.stopped = make(map[int]StoppedHandler)
	}
	id := e.nextID
	e.nextID++
	e.stopped[id] = h
	return func() {
		e.mu.Lock()
		delete(e.stopped, id)
		e.mu.Unlock()
	}
}

func (e *Events) DispatchArrival(frame core.RawFrame, dev Device) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, h := range e.arrivals {
		h(frame, dev)
	}
}

func (e *Events) DispatchStopped(err error) {
	e.mu.RLock()
	handlers := make([]StoppedHandler, 0, len(e.stopped))
	for _, h := range e.stopped {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()
	for _, h := range handlers {
		h(err)
	}
}

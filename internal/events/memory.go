package events

import (
	"context"
	"sync"
)

// Recorder is an in-process emitter that keeps every event and calls
// subscribers synchronously.
type Recorder struct {
	mu       sync.RWMutex
	handlers []func(context.Context, Event)
	events   []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit records event and delivers it to all subscribers.
// Handlers run after the lock is released so they may call back into the Recorder.
func (r *Recorder) Emit(ctx context.Context, event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	handlers := make([]func(context.Context, Event), len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.Unlock()

	for _, h := range handlers {
		h(ctx, event)
	}
}

// Subscribe registers a handler for events.
func (r *Recorder) Subscribe(handler func(context.Context, Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, handler)
}

// Events returns all emitted events.
func (r *Recorder) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(eventType string) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Event
	for _, e := range r.events {
		if e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}

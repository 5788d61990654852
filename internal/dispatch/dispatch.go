// Package dispatch is the pub/sub registry that fans decoded gateway events
// out to application handlers.
package dispatch

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Handler processes one decoded application event.
type Handler func(eventType string, data json.RawMessage)

type registration struct {
	fn   Handler
	once bool
}

// Registry maps event types to handlers. Handlers run asynchronously in their
// own goroutines, so a slow handler never blocks the gateway read loop; no
// execution order is guaranteed between handlers.
type Registry struct {
	log *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]*registration
	catchAll []*registration
}

func New(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		log:      log,
		handlers: make(map[string][]*registration),
	}
}

// On registers a handler for an event type.
func (r *Registry) On(event string, h Handler) {
	r.mu.Lock()
	r.handlers[event] = append(r.handlers[event], &registration{fn: h})
	r.mu.Unlock()
}

// Once registers a handler that fires for the first matching event only.
func (r *Registry) Once(event string, h Handler) {
	r.mu.Lock()
	r.handlers[event] = append(r.handlers[event], &registration{fn: h, once: true})
	r.mu.Unlock()
}

// OnAny registers a handler receiving every event regardless of type.
func (r *Registry) OnAny(h Handler) {
	r.mu.Lock()
	r.catchAll = append(r.catchAll, &registration{fn: h})
	r.mu.Unlock()
}

// HandlerCount reports how many handlers are registered for an event type.
func (r *Registry) HandlerCount(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[event])
}

// Emit fans an event out to its handlers and the catch-all set. Once
// handlers are removed before their goroutine starts, so they fire at most
// once even under concurrent emits.
func (r *Registry) Emit(event string, data json.RawMessage) {
	r.mu.Lock()
	regs := r.handlers[event]
	fire := make([]*registration, 0, len(regs)+len(r.catchAll))
	kept := regs[:0]
	for _, reg := range regs {
		fire = append(fire, reg)
		if !reg.once {
			kept = append(kept, reg)
		}
	}
	if len(kept) == 0 {
		delete(r.handlers, event)
	} else {
		r.handlers[event] = kept
	}
	fire = append(fire, r.catchAll...)
	r.mu.Unlock()

	for _, reg := range fire {
		go reg.fn(event, data)
	}
}

package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Router is a handler-oriented facade over a Bus. Registrations made before
// Setup are queued and mounted together; registrations made after Setup
// mount immediately. Clear tears everything down and returns the router to
// its pre-setup state so the orchestrator can be restarted.
//
// Every handler is wrapped so that a panic inside handler code is recovered
// and translated into an error for the bus to log; handlers never need that
// boilerplate themselves.
type Router struct {
	bus *Bus

	mu      sync.Mutex
	pending []registration
	mounted []*Subscription
	active  bool
}

type registration struct {
	eventType string
	handler   Handler
	priority  int
}

// NewRouter returns a Router over bus.
func NewRouter(bus *Bus) *Router {
	return &Router{bus: bus}
}

// Register queues (or, after Setup, immediately mounts) handler for
// eventType and returns the router for chaining.
func (r *Router) Register(eventType string, handler Handler, priority int) *Router {
	wrapped := wrapHandler(eventType, handler)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		r.mounted = append(r.mounted, r.bus.Subscribe(eventType, wrapped, priority))
		return r
	}
	r.pending = append(r.pending, registration{eventType: eventType, handler: wrapped, priority: priority})
	return r
}

// Setup mounts all pending registrations on the bus and marks the router
// active. Calling Setup on an active router is a no-op.
func (r *Router) Setup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return
	}
	for _, reg := range r.pending {
		r.mounted = append(r.mounted, r.bus.Subscribe(reg.eventType, reg.handler, reg.priority))
	}
	r.pending = nil
	r.active = true
}

// Active reports whether Setup has been called without a subsequent Clear.
func (r *Router) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Clear cancels every mounted subscription and resets the router to its
// pre-setup state, discarding pending registrations as well.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.mounted {
		r.bus.Unsubscribe(sub)
	}
	r.mounted = nil
	r.pending = nil
	r.active = false
}

// wrapHandler translates panics in handler code into errors so one broken
// handler cannot take down a turn.
func wrapHandler(eventType string, handler Handler) Handler {
	return func(ctx context.Context, ev Event) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("handler for %q panicked: %v", eventType, rec)
				slog.Error("recovered handler panic", "event_type", eventType, "panic", rec)
			}
		}()
		return handler(ctx, ev)
	}
}

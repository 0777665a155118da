// Package eventbus implements the in-process publish/subscribe fabric that
// carries one session's turn events from the pipelines to the sink handlers.
//
// This is deliberately not a message queue: Emit fans out synchronously in
// the caller's goroutine, awaiting each handler in turn, with no persistence
// and no backpressure. One bus belongs to one orchestrator; there is no
// cross-session bus.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
)

// Event type names shared between the pipelines, the orchestrator, and the
// sink handlers.
const (
	TypeSentence            = "sentence"
	TypeToolCall            = "tool_call"
	TypeAudio               = "audio"
	TypeAudioWithExpression = "audio_with_expression"
	TypeExpression          = "expression"
	TypeUserTranscript      = "user-transcript"
	TypeError               = "error"
)

// Event is the unit of dispatch. Data semantics depend on Type; Seq is the
// per-turn sequence number assigned by the output pipeline (zero for events
// outside the sequenced stream).
type Event struct {
	Type     string
	Data     any
	Seq      int
	Metadata map[string]any
}

// Handler consumes one event. A returned error is logged by the bus and
// excluded from the completed-handler count, but never stops dispatch.
type Handler func(ctx context.Context, ev Event) error

// Subscription is the handle returned by Subscribe/SubscribeAll. Marking it
// inactive via Unsubscribe is the sole cancellation mechanism.
type Subscription struct {
	eventType string // empty for global subscriptions
	handler   Handler
	priority  int
	active    bool
}

// Bus is an in-process event bus with priority-ordered dispatch.
//
// The subscription lists are guarded by a mutex; dispatch runs on a snapshot
// so handlers may subscribe or unsubscribe freely. Emit must not be
// re-entered from within a handler of the same bus on the same goroutine.
type Bus struct {
	mu     sync.Mutex
	byType map[string][]*Subscription
	global []*Subscription
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{byType: make(map[string][]*Subscription)}
}

// Subscribe registers handler for events of eventType. Within a dispatch,
// higher priority runs first; equal priorities run in registration order.
func (b *Bus) Subscribe(eventType string, handler Handler, priority int) *Subscription {
	sub := &Subscription{eventType: eventType, handler: handler, priority: priority, active: true}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byType[eventType] = insertByPriority(b.byType[eventType], sub)
	return sub
}

// SubscribeAll registers handler for every event regardless of type.
func (b *Bus) SubscribeAll(handler Handler, priority int) *Subscription {
	sub := &Subscription{handler: handler, priority: priority, active: true}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = insertByPriority(b.global, sub)
	return sub
}

// Unsubscribe marks sub inactive and removes it from its dispatch list.
// Safe to call more than once and with subscriptions from other buses (a
// no-op if not found).
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	sub.active = false
	if sub.eventType != "" {
		b.byType[sub.eventType] = removeSub(b.byType[sub.eventType], sub)
		if len(b.byType[sub.eventType]) == 0 {
			delete(b.byType, sub.eventType)
		}
	} else {
		b.global = removeSub(b.global, sub)
	}
}

// Emit dispatches ev to all matching subscriptions: first the per-type list,
// then the global list, each in descending priority. A handler error is
// logged and dispatch continues. Emit returns the number of handlers that
// completed without error.
func (b *Bus) Emit(ctx context.Context, ev Event) int {
	b.mu.Lock()
	snapshot := make([]*Subscription, 0, len(b.byType[ev.Type])+len(b.global))
	snapshot = append(snapshot, b.byType[ev.Type]...)
	snapshot = append(snapshot, b.global...)
	b.mu.Unlock()

	completed := 0
	for _, sub := range snapshot {
		b.mu.Lock()
		active := sub.active
		b.mu.Unlock()
		if !active {
			continue
		}
		if err := sub.handler(ctx, ev); err != nil {
			slog.Error("event handler failed", "event_type", ev.Type, "seq", ev.Seq, "error", err)
			continue
		}
		completed++
	}
	return completed
}

// SubscriberCount returns the number of active subscriptions for eventType,
// excluding global subscribers.
func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byType[eventType])
}

// insertByPriority inserts sub keeping subs sorted by descending priority,
// with stable order for equal priorities.
func insertByPriority(subs []*Subscription, sub *Subscription) []*Subscription {
	i := len(subs)
	for ; i > 0; i-- {
		if subs[i-1].priority >= sub.priority {
			break
		}
	}
	subs = append(subs, nil)
	copy(subs[i+1:], subs[i:])
	subs[i] = sub
	return subs
}

func removeSub(subs []*Subscription, sub *Subscription) []*Subscription {
	for i, s := range subs {
		if s == sub {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

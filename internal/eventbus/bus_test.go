package eventbus_test

import (
	"context"
	"errors"
	"testing"

	"github.com/anima-voice/anima/internal/eventbus"
)

func TestEmit_DescendingPriorityOrder(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()

	var order []string
	record := func(name string) eventbus.Handler {
		return func(context.Context, eventbus.Event) error {
			order = append(order, name)
			return nil
		}
	}

	bus.Subscribe("sentence", record("low"), 1)
	bus.Subscribe("sentence", record("high"), 10)
	bus.Subscribe("sentence", record("mid"), 5)

	bus.Emit(context.Background(), eventbus.Event{Type: "sentence"})

	want := []string{"high", "mid", "low"}
	if len(order) != len(want) {
		t.Fatalf("got %d handler calls, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestEmit_EqualPriorityKeepsRegistrationOrder(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		bus.Subscribe("sentence", func(context.Context, eventbus.Event) error {
			order = append(order, name)
			return nil
		}, 3)
	}

	bus.Emit(context.Background(), eventbus.Event{Type: "sentence"})

	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Errorf("dispatch order = %v, want registration order", order)
	}
}

func TestEmit_HandlerErrorDoesNotStopOthers(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()

	lowCalled := 0
	bus.Subscribe("sentence", func(context.Context, eventbus.Event) error {
		return errors.New("boom")
	}, 10)
	bus.Subscribe("sentence", func(context.Context, eventbus.Event) error {
		lowCalled++
		return nil
	}, 1)

	completed := bus.Emit(context.Background(), eventbus.Event{Type: "sentence"})

	if lowCalled != 1 {
		t.Errorf("lower-priority handler called %d times, want 1", lowCalled)
	}
	if completed != 1 {
		t.Errorf("completed count = %d, want 1 (failing handler excluded)", completed)
	}
}

func TestEmit_GlobalSubscribersSeeEveryType(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()

	var seen []string
	bus.SubscribeAll(func(_ context.Context, ev eventbus.Event) error {
		seen = append(seen, ev.Type)
		return nil
	}, 0)

	bus.Emit(context.Background(), eventbus.Event{Type: "sentence"})
	bus.Emit(context.Background(), eventbus.Event{Type: "audio"})

	if len(seen) != 2 || seen[0] != "sentence" || seen[1] != "audio" {
		t.Errorf("global handler saw %v, want [sentence audio]", seen)
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()

	calls := 0
	sub := bus.Subscribe("sentence", func(context.Context, eventbus.Event) error {
		calls++
		return nil
	}, 0)

	bus.Emit(context.Background(), eventbus.Event{Type: "sentence"})
	bus.Unsubscribe(sub)
	bus.Emit(context.Background(), eventbus.Event{Type: "sentence"})

	if calls != 1 {
		t.Errorf("handler called %d times, want 1 (no delivery after unsubscribe)", calls)
	}
	if n := bus.SubscriberCount("sentence"); n != 0 {
		t.Errorf("SubscriberCount = %d after unsubscribe, want 0", n)
	}
}

func TestEmit_NoSubscribersReturnsZero(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	if completed := bus.Emit(context.Background(), eventbus.Event{Type: "nothing"}); completed != 0 {
		t.Errorf("Emit with no subscribers = %d, want 0", completed)
	}
}

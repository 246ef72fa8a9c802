package notify

import (
	"log/slog"
	"testing"
	"time"

	"haven/cmd/internal/inbox"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestHub_PublishReachesAllUserSubscribers(t *testing.T) {
	t.Parallel()

	hub := NewHub(testLogger(), 4)
	a := hub.Subscribe("u1")
	b := hub.Subscribe("u1")
	other := hub.Subscribe("u2")

	hub.Publish("u1", Event{Type: EventInboxUpdated, Count: 2})

	for _, sub := range []*Subscriber{a, b} {
		select {
		case ev := <-sub.Events():
			if ev.Type != EventInboxUpdated || ev.Count != 2 {
				t.Fatalf("unexpected event: %+v", ev)
			}
		default:
			t.Fatalf("subscriber did not receive event")
		}
	}

	select {
	case ev := <-other.Events():
		t.Fatalf("u2 received u1's event: %+v", ev)
	default:
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	hub := NewHub(testLogger(), 4)
	sub := hub.Subscribe("u1")
	hub.Unsubscribe(sub)

	select {
	case <-sub.Done():
	default:
		t.Fatalf("expected Done closed after unsubscribe")
	}

	hub.Publish("u1", Event{Type: EventInboxUpdated, Count: 1})
	select {
	case ev := <-sub.Events():
		t.Fatalf("unsubscribed client received event: %+v", ev)
	default:
	}
}

func TestHub_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()

	hub := NewHub(testLogger(), 1)
	sub := hub.Subscribe("u1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Publish("u1", Event{Type: EventInboxUpdated, Count: 1})
		hub.Publish("u1", Event{Type: EventInboxUpdated, Count: 2})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on full queue")
	}

	if ev := <-sub.Events(); ev.Count != 1 {
		t.Fatalf("expected first event kept, got %+v", ev)
	}
}

func TestHub_RunFinishedPushesOnlySuccess(t *testing.T) {
	t.Parallel()

	hub := NewHub(testLogger(), 4)
	sub := hub.Subscribe("u1")

	hub.RunFinished("u1", inbox.Result{Status: inbox.StatusSkipped, Reason: inbox.ReasonQueueFull})
	hub.RunFinished("u1", inbox.Result{Status: inbox.StatusError, Reason: inbox.ReasonAgentFailure})
	select {
	case ev := <-sub.Events():
		t.Fatalf("non-success outcome pushed: %+v", ev)
	default:
	}

	hub.RunFinished("u1", inbox.Result{
		Status:   inbox.StatusSuccess,
		Inserted: []inbox.InsertedItem{{ID: "01A"}, {ID: "01B"}},
	})

	select {
	case ev := <-sub.Events():
		if ev.Type != EventInboxUpdated || ev.Count != 2 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("success outcome not pushed")
	}
}

// Package notify pushes inbox-update events to connected clients over
// WebSocket. Delivery is best-effort: a slow or absent client never affects
// the pipeline outcome.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"haven/cmd/internal/inbox"
)

// Event is the wire payload pushed to clients.
type Event struct {
	Type  string    `json:"type"`
	Count int       `json:"count,omitempty"`
	At    time.Time `json:"at"`
}

// EventInboxUpdated announces newly delivered inbox items.
const EventInboxUpdated = "inbox.updated"

// Subscriber is one connected client with a bounded send queue.
type Subscriber struct {
	userID string
	ch     chan Event

	done      chan struct{}
	closeOnce sync.Once
}

// Events returns the subscriber's receive channel.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Done is closed when the subscriber is shutting down.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// close signals shutdown (idempotent). The event channel is never closed,
// so concurrent publishers stay panic-free.
func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Hub fans events out to every subscriber of a user.
type Hub struct {
	log       *slog.Logger
	queueSize int

	mu   sync.RWMutex
	subs map[string]map[*Subscriber]struct{}
}

// NewHub constructs a Hub with the given per-subscriber queue size.
func NewHub(log *slog.Logger, queueSize int) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Hub{
		log:       log,
		queueSize: queueSize,
		subs:      make(map[string]map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber for userID.
func (h *Hub) Subscribe(userID string) *Subscriber {
	sub := &Subscriber{
		userID: userID,
		ch:     make(chan Event, h.queueSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[userID]
	if set == nil {
		set = make(map[*Subscriber]struct{})
		h.subs[userID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes and shuts down a subscriber.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	if set := h.subs[sub.userID]; set != nil {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.userID)
		}
	}
	h.mu.Unlock()

	sub.close()
}

// Publish delivers an event to every subscriber of userID. A full queue
// drops the event for that subscriber rather than blocking the publisher.
func (h *Hub) Publish(userID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[userID] {
		select {
		case sub.ch <- ev:
		default:
			h.log.Info("notify.drop", "user_id", userID, "type", ev.Type)
		}
	}
}

// RunFinished implements inbox.Observer: successful deliveries become an
// inbox.updated push for the affected user.
func (h *Hub) RunFinished(userID string, res inbox.Result) {
	if res.Status != inbox.StatusSuccess || len(res.Inserted) == 0 {
		return
	}
	h.Publish(userID, Event{
		Type:  EventInboxUpdated,
		Count: len(res.Inserted),
		At:    time.Now().UTC(),
	})
}

// AgentCalled implements inbox.Observer; agent latency is not pushed.
func (h *Hub) AgentCalled(_ string, _ time.Duration, _ error) {}

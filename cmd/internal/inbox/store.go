package inbox

import (
	"context"
	"time"
)

// ItemStatusPending is the initial status of every delivered item.
// Downstream consumers own later transitions (read, dismissed, actioned);
// this pipeline never mutates an item after insert.
const ItemStatusPending = "pending"

// QueueSnapshot reports current queue occupancy for one user.
// It is derived per request, never stored.
//
// Invariants: Available = max(0, Limit-Total); HasCapacity = Available > 0.
type QueueSnapshot struct {
	Total       int
	Available   int
	Limit       int
	HasCapacity bool
}

// NewQueueSnapshot derives a snapshot from an outstanding-item count and a
// configured limit, enforcing the capacity invariant.
func NewQueueSnapshot(total, limit int) QueueSnapshot {
	available := limit - total
	if available < 0 {
		available = 0
	}
	return QueueSnapshot{
		Total:       total,
		Available:   available,
		Limit:       limit,
		HasCapacity: available > 0,
	}
}

// HistoryEntry is a read-only projection of a previously delivered item
// inside the dedupe lookback window.
type HistoryEntry struct {
	ID           string
	CreatedAt    time.Time
	SemanticHash *string
	Title        string
	Summary      string
}

// InsertedItem summarizes a persisted item. Created once on successful
// insert; never mutated by this subsystem.
type InsertedItem struct {
	ID           string
	Kind         Kind
	Title        string
	SemanticHash string
	Status       string
	CreatedAt    time.Time
}

// InsertItemsInput describes one atomic batch insert.
type InsertItemsInput struct {
	UserID string
	Items  []HashedCandidate

	// BatchID ties the audit event of every inserted item back to the
	// generation cycle that produced it.
	BatchID  string
	Metadata map[string]string
	Now      time.Time
}

// Store abstracts per-user persistence for the delivery pipeline.
//
// Requirements:
//   - Every operation is scoped by user id; one user can never read or
//     affect another user's queue or history.
//   - InsertItems is atomic: either all items and their audit events are
//     persisted, or none are.
type Store interface {
	// QueueSnapshot counts currently outstanding (pending) items and derives
	// occupancy against limit. No side effects, no internal retries.
	QueueSnapshot(ctx context.Context, userID string, limit int) (QueueSnapshot, error)

	// RecentHistory returns items created within [now-lookback, now], most
	// recent first with a stable order, annotated with their semantic hash
	// when one was stored at creation time.
	RecentHistory(ctx context.Context, userID string, lookback time.Duration) ([]HistoryEntry, error)

	// InsertItems persists a batch of candidates with initial status
	// "pending" and one audit event per item, in a single atomic unit.
	InsertItems(ctx context.Context, in InsertItemsInput) ([]InsertedItem, error)
}

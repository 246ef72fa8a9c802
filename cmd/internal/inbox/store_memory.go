package inbox

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// InMemoryStore is a dev/test fallback when DB is not configured.
// It keeps every inserted item (plus its audit events) per user and serves
// queue snapshots and history windows from memory.
type InMemoryStore struct {
	mu    sync.Mutex
	users map[string]*memUser
}

type memUser struct {
	items  []memItem
	events []memEvent
}

type memItem struct {
	InsertedItem
	Summary string
}

type memEvent struct {
	ID        string
	ItemID    string
	BatchID   string
	Action    string
	CreatedAt time.Time
	Meta      map[string]string
}

// NewInMemoryStore constructs an empty in-memory Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]*memUser)}
}

// QueueSnapshot counts pending items for the user.
func (s *InMemoryStore) QueueSnapshot(ctx context.Context, userID string, limit int) (QueueSnapshot, error) {
	if strings.TrimSpace(userID) == "" {
		return QueueSnapshot{}, ErrMissingUser
	}
	if err := ctx.Err(); err != nil {
		return QueueSnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	if u := s.users[userID]; u != nil {
		for _, it := range u.items {
			if it.Status == ItemStatusPending {
				total++
			}
		}
	}
	return NewQueueSnapshot(total, limit), nil
}

// RecentHistory returns items created within the lookback window, most
// recent first (ties broken by id for a stable order).
func (s *InMemoryStore) RecentHistory(ctx context.Context, userID string, lookback time.Duration) ([]HistoryEntry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUser
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-lookback)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []HistoryEntry
	if u := s.users[userID]; u != nil {
		for _, it := range u.items {
			if it.CreatedAt.Before(cutoff) {
				continue
			}
			hash := it.SemanticHash
			entry := HistoryEntry{
				ID:        it.ID,
				CreatedAt: it.CreatedAt,
				Title:     it.Title,
				Summary:   it.Summary,
			}
			if hash != "" {
				entry.SemanticHash = &hash
			}
			out = append(out, entry)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// InsertItems appends the batch and its audit events under one lock, which
// makes the insert atomic from the caller's perspective.
func (s *InMemoryStore) InsertItems(ctx context.Context, in InsertItemsInput) ([]InsertedItem, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, ErrMissingUser
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, nil
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.users[in.UserID]
	if u == nil {
		u = &memUser{}
		s.users[in.UserID] = u
	}

	inserted := make([]InsertedItem, 0, len(in.Items))
	for _, c := range in.Items {
		item := InsertedItem{
			ID:           ulid.Make().String(),
			Kind:         c.Kind,
			Title:        strings.TrimSpace(c.Title),
			SemanticHash: c.SemanticHash,
			Status:       ItemStatusPending,
			CreatedAt:    now,
		}
		u.items = append(u.items, memItem{InsertedItem: item, Summary: strings.TrimSpace(c.Summary)})
		u.events = append(u.events, memEvent{
			ID:        ulid.Make().String(),
			ItemID:    item.ID,
			BatchID:   in.BatchID,
			Action:    "inbox.item.delivered",
			CreatedAt: now,
			Meta:      in.Metadata,
		})
		inserted = append(inserted, item)
	}

	return inserted, nil
}

// events returns a copy of the audit events recorded for a user.
// Test hook; the engine never reads events back.
func (s *InMemoryStore) events(userID string) []memEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.users[userID]
	if u == nil {
		return nil
	}
	out := make([]memEvent, len(u.events))
	copy(out, u.events)
	return out
}

package inbox

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests are enabled when HAVEN_DATABASE_URL is set.
// This keeps local "go test ./..." fast and deterministic without Postgres.

func TestPostgresStore_InsertAndSnapshot(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplySchema(t, pool, schema)

	store := mustNewStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	userID := "it-user-" + strings.ToLower(ulid.Make().String())

	snap, err := store.QueueSnapshot(ctx, userID, 5)
	if err != nil {
		t.Fatalf("snapshot empty: %v", err)
	}
	if snap.Total != 0 || snap.Available != 5 || !snap.HasCapacity {
		t.Fatalf("unexpected empty snapshot: %+v", snap)
	}

	conf := 0.6
	c := Candidate{
		Kind:           KindObservation,
		Title:          "Morning entries read calmer than evening ones",
		Summary:        "Across this window, entries written before noon use noticeably softer language.",
		Body:           "Seen in five of seven entries.",
		Evidence:       []Evidence{{Type: "journal", ID: "e1", Context: "tone shift"}},
		Tags:           []string{"tone", "rhythm"},
		RelatedPartIDs: []string{"p1"},
		SourceEntryIDs: []string{"e1", "e2"},
		Confidence:     &conf,
	}

	inserted, err := store.InsertItems(ctx, InsertItemsInput{
		UserID:   userID,
		Items:    []HashedCandidate{{Candidate: c, SemanticHash: SemanticHash(c)}},
		BatchID:  ulid.Make().String(),
		Metadata: map[string]string{"job_run_id": "it-job-1"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(inserted) != 1 {
		t.Fatalf("expected 1 inserted, got %d", len(inserted))
	}
	if inserted[0].Status != ItemStatusPending {
		t.Fatalf("expected pending, got %q", inserted[0].Status)
	}

	snap, err = store.QueueSnapshot(ctx, userID, 5)
	if err != nil {
		t.Fatalf("snapshot after insert: %v", err)
	}
	if snap.Total != 1 || snap.Available != 4 {
		t.Fatalf("unexpected snapshot after insert: %+v", snap)
	}

	// One audit event per inserted item.
	var eventCount int
	err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+pgIdent(schema, "inbox_events")+` WHERE user_id = $1`, userID).Scan(&eventCount)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if eventCount != 1 {
		t.Fatalf("expected 1 audit event, got %d", eventCount)
	}
}

func TestPostgresStore_HistoryWindowScopedAndOrdered(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplySchema(t, pool, schema)

	store := mustNewStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	userID := "it-user-" + strings.ToLower(ulid.Make().String())
	otherID := "it-other-" + strings.ToLower(ulid.Make().String())

	insertAt := func(user, title string, at time.Time) {
		t.Helper()
		c := namedCandidate(title)
		if _, err := store.InsertItems(ctx, InsertItemsInput{
			UserID: user,
			Items:  []HashedCandidate{{Candidate: c, SemanticHash: SemanticHash(c)}},
			Now:    at,
		}); err != nil {
			t.Fatalf("insert %q: %v", title, err)
		}
	}

	now := time.Now().UTC()
	insertAt(userID, "Thirty days ago", now.Add(-30*24*time.Hour))
	insertAt(userID, "Three days ago", now.Add(-3*24*time.Hour))
	insertAt(userID, "One day ago", now.Add(-24*time.Hour))
	insertAt(otherID, "Someone else entirely", now.Add(-24*time.Hour))

	hist, err := store.RecentHistory(ctx, userID, 14*24*time.Hour)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 entries in window, got %d", len(hist))
	}
	if hist[0].Title != "One day ago" || hist[1].Title != "Three days ago" {
		t.Fatalf("expected most recent first, got %q then %q", hist[0].Title, hist[1].Title)
	}
	if hist[0].SemanticHash == nil || *hist[0].SemanticHash == "" {
		t.Fatalf("expected stored semantic hash")
	}
}

func TestPostgresStore_BatchInsertIsAtomic(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplySchema(t, pool, schema)

	store := mustNewStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	userID := "it-user-" + strings.ToLower(ulid.Make().String())

	good := namedCandidate("Fits the schema")
	// Violates the kind CHECK constraint at the DB layer; the whole batch
	// must roll back, including the valid first row and all events.
	bad := namedCandidate("Breaks the constraint")
	bad.Kind = Kind("forbidden")

	_, err := store.InsertItems(ctx, InsertItemsInput{
		UserID: userID,
		Items: []HashedCandidate{
			{Candidate: good, SemanticHash: SemanticHash(good)},
			{Candidate: bad, SemanticHash: SemanticHash(bad)},
		},
	})
	if err == nil {
		t.Fatalf("expected constraint violation")
	}

	var items, events int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+pgIdent(schema, "inbox_items")+` WHERE user_id = $1`, userID).Scan(&items); err != nil {
		t.Fatalf("count items: %v", err)
	}
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+pgIdent(schema, "inbox_events")+` WHERE user_id = $1`, userID).Scan(&events); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if items != 0 || events != 0 {
		t.Fatalf("expected full rollback, got items=%d events=%d", items, events)
	}
}

func mustNewStore(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresStore {
	t.Helper()

	st, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new postgres store: %v", err)
	}
	return st
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("HAVEN_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: HAVEN_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse HAVEN_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := "haven_it_" + strings.ToLower(ulid.Make().String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}

func mustApplySchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	items := pgIdent(schema, "inbox_items")
	events := pgIdent(schema, "inbox_events")

	// Minimal schema required by PostgresStore.
	// Must remain semantically aligned with infra/db/schema.sql.
	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id               TEXT PRIMARY KEY,
  user_id          TEXT NOT NULL,
  kind             TEXT NOT NULL CHECK (kind IN ('summary', 'nudge', 'followup', 'observation', 'question', 'pattern')),
  title            TEXT NOT NULL CHECK (char_length(title) > 0),
  summary          TEXT NOT NULL CHECK (char_length(summary) > 0),
  body             TEXT,
  inference        TEXT,
  confidence       DOUBLE PRECISION CHECK (confidence IS NULL OR (confidence >= 0 AND confidence <= 1)),
  evidence         JSONB,
  tags             JSONB,
  related_part_ids JSONB,
  source_entry_ids JSONB,
  semantic_hash    TEXT,
  status           TEXT NOT NULL DEFAULT 'pending',
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_inbox_items_user_created ON %s (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS %s (
  id         TEXT PRIMARY KEY,
  item_id    TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  user_id    TEXT NOT NULL,
  action     TEXT NOT NULL,
  batch_id   TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  meta       JSONB
);
`, items, items, events, items)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

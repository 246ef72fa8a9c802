package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

const deliveredAction = "inbox.item.delivered"

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
//   - PostgresStore does NOT own the pgx pool. The caller must close it.
//
// Atomicity model:
//   - InsertItems writes all item rows and their audit events inside one
//     transaction, so a failed batch inserts nothing. This includes event
//     rows: an event-insert failure rolls back the whole batch.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	sb     sq.StatementBuilderType
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "haven").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("inbox: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("inbox: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "haven",
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("inbox: nil pool")
	}
	return st, nil
}

// QueueSnapshot counts pending items for the user and derives occupancy.
func (s *PostgresStore) QueueSnapshot(ctx context.Context, userID string, limit int) (QueueSnapshot, error) {
	if strings.TrimSpace(userID) == "" {
		return QueueSnapshot{}, ErrMissingUser
	}

	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM `+s.itemsTable()+`
		WHERE user_id = $1 AND status = $2
	`, userID, ItemStatusPending).Scan(&total)
	if err != nil {
		return QueueSnapshot{}, fmt.Errorf("count pending items: %w", err)
	}

	return NewQueueSnapshot(total, limit), nil
}

// RecentHistory returns items created within the lookback window, most
// recent first (ties broken by id so the order is stable).
func (s *PostgresStore) RecentHistory(ctx context.Context, userID string, lookback time.Duration) ([]HistoryEntry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUser
	}

	cutoff := time.Now().UTC().Add(-lookback)

	query, args, err := s.sb.
		Select("id", "created_at", "semantic_hash", "title", "summary").
		From(s.itemsTable()).
		Where(sq.Eq{"user_id": userID}).
		Where(sq.GtOrEq{"created_at": cutoff}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.SemanticHash, &e.Title, &e.Summary); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	return out, nil
}

// InsertItems persists the batch and its audit events in one transaction.
func (s *PostgresStore) InsertItems(ctx context.Context, in InsertItemsInput) ([]InsertedItem, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, ErrMissingUser
	}
	if len(in.Items) == 0 {
		return nil, nil
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	metaJSON, err := marshalMeta(in.Metadata, in.BatchID)
	if err != nil {
		return nil, fmt.Errorf("marshal event meta: %w", err)
	}

	itemsInsert := s.sb.Insert(s.itemsTable()).Columns(
		"id", "user_id", "kind", "title", "summary",
		"body", "inference", "confidence",
		"evidence", "tags", "related_part_ids", "source_entry_ids",
		"semantic_hash", "status", "created_at",
	)
	eventsInsert := s.sb.Insert(s.eventsTable()).Columns(
		"id", "item_id", "user_id", "action", "batch_id", "created_at", "meta",
	)

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

		evidence, err := jsonOrNil(c.Evidence)
		if err != nil {
			return nil, fmt.Errorf("marshal evidence: %w", err)
		}

		itemsInsert = itemsInsert.Values(
			item.ID, in.UserID, string(c.Kind), item.Title, strings.TrimSpace(c.Summary),
			nilIfEmpty(c.Body), nilIfEmpty(c.Inference), c.Confidence,
			evidence, stringList(c.Tags), stringList(c.RelatedPartIDs), stringList(c.SourceEntryIDs),
			item.SemanticHash, item.Status, now,
		)
		eventsInsert = eventsInsert.Values(
			ulid.Make().String(), item.ID, in.UserID, deliveredAction, nilIfEmpty(in.BatchID), now, metaJSON,
		)

		inserted = append(inserted, item)
	}

	itemsSQL, itemsArgs, err := itemsInsert.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build items insert: %w", err)
	}
	eventsSQL, eventsArgs, err := eventsInsert.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build events insert: %w", err)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, itemsSQL, itemsArgs...); err != nil {
		return nil, fmt.Errorf("insert items: %w", err)
	}
	if _, err := tx.Exec(ctx, eventsSQL, eventsArgs...); err != nil {
		return nil, fmt.Errorf("insert events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return inserted, nil
}

func (s *PostgresStore) itemsTable() string  { return pgIdent(s.schema, "inbox_items") }
func (s *PostgresStore) eventsTable() string { return pgIdent(s.schema, "inbox_events") }

var pgIdentRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func isValidPGIdent(s string) bool { return pgIdentRe.MatchString(s) }

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

func nilIfEmpty(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}

// stringList normalizes a list for a jsonb column; empty lists store NULL.
func stringList(in []string) any {
	if len(in) == 0 {
		return nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil
	}
	return string(b)
}

func jsonOrNil(v []Evidence) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func marshalMeta(meta map[string]string, batchID string) (any, error) {
	m := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		m[k] = v
	}
	if batchID != "" {
		m["batch_id"] = batchID
	}
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRecorder persists batch run reports to haven.job_runs.
// The recorder does not own the pool.
type PostgresRecorder struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresRecorder constructs a Postgres-backed Recorder.
func NewPostgresRecorder(pool *pgxpool.Pool, schema string) (*PostgresRecorder, error) {
	if pool == nil {
		return nil, errors.New("job: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "haven"
	}
	return &PostgresRecorder{pool: pool, schema: schema}, nil
}

// Record inserts one job_runs row with per-user outcomes as jsonb.
func (r *PostgresRecorder) Record(ctx context.Context, report Report) error {
	users, err := json.Marshal(report.Users)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO `+pgx.Identifier{r.schema, "job_runs"}.Sanitize()+` (
			id, started_at, finished_at, status,
			success_count, skipped_count, error_count, users
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
	`,
		report.ID, report.StartedAt, report.FinishedAt, report.Status,
		report.SuccessCount, report.SkippedCount, report.ErrorCount, string(users),
	)
	if err != nil {
		return fmt.Errorf("insert job run: %w", err)
	}
	return nil
}

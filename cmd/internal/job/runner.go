// Package job drives the inbox delivery engine across a list of users as
// one recorded batch run.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"haven/cmd/internal/inbox"

	"github.com/oklog/ulid/v2"
)

// ErrNoUsers is returned when a run is requested with no user ids.
// This is the only wrapper-level fatal condition: there is nothing to run.
var ErrNoUsers = errors.New("no user ids provided")

// Engine is the per-user delivery capability consumed by the runner.
// Satisfied by *inbox.Engine.
type Engine interface {
	Run(ctx context.Context, userID string) inbox.Result
}

// UserOutcome is one user's result inside a batch run.
type UserOutcome struct {
	UserID   string
	Status   inbox.Status
	Reason   inbox.Reason
	Inserted int
	Err      string
}

// Report summarizes a completed batch run.
type Report struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time

	// Status is "failed" if any per-user error occurred, else "success".
	Status string

	SuccessCount int
	SkippedCount int
	ErrorCount   int

	Users []UserOutcome
}

// Recorder persists batch run reports.
type Recorder interface {
	Record(ctx context.Context, report Report) error
}

// NoopRecorder discards reports. Used when DB is not configured.
type NoopRecorder struct{}

// Record discards the report.
func (NoopRecorder) Record(_ context.Context, _ Report) error { return nil }

// Runner executes the engine once per user, sequentially, so load on the
// shared agent and store stays bounded. One user's failure never blocks the
// rest of the batch.
type Runner struct {
	engine Engine
	rec    Recorder
	log    *slog.Logger
	now    func() time.Time
}

// NewRunner constructs a Runner. A nil recorder records nothing.
func NewRunner(engine Engine, rec Recorder, log *slog.Logger) (*Runner, error) {
	if engine == nil {
		return nil, errors.New("job: nil engine")
	}
	if rec == nil {
		rec = NoopRecorder{}
	}
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Runner{
		engine: engine,
		rec:    rec,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run processes every user and returns the aggregate report.
//
// The returned error is non-nil only for the ErrNoUsers precondition;
// per-user failures are folded into the report. A recorder failure is
// logged but does not change the report or fail the run: the outcomes
// themselves already happened.
func (r *Runner) Run(ctx context.Context, userIDs []string) (Report, error) {
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if v := strings.TrimSpace(id); v != "" {
			ids = append(ids, v)
		}
	}
	if len(ids) == 0 {
		return Report{}, ErrNoUsers
	}

	report := Report{
		ID:        ulid.Make().String(),
		StartedAt: r.now(),
		Users:     make([]UserOutcome, 0, len(ids)),
	}

	r.log.Info("job.run.start", "job_id", report.ID, "users", len(ids))

	for _, userID := range ids {
		outcome := r.runOne(ctx, userID)
		report.Users = append(report.Users, outcome)

		switch outcome.Status {
		case inbox.StatusSuccess:
			report.SuccessCount++
		case inbox.StatusSkipped:
			report.SkippedCount++
		case inbox.StatusError:
			report.ErrorCount++
			r.log.Error("job.run.user.fail",
				"job_id", report.ID,
				"user_id", userID,
				"reason", outcome.Reason,
				"err", outcome.Err,
			)
		}
	}

	report.FinishedAt = r.now()
	report.Status = "success"
	if report.ErrorCount > 0 {
		report.Status = "failed"
	}

	r.log.Info("job.run.done",
		"job_id", report.ID,
		"status", report.Status,
		"success", report.SuccessCount,
		"skipped", report.SkippedCount,
		"errors", report.ErrorCount,
		"elapsed_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)

	if err := r.rec.Record(ctx, report); err != nil {
		r.log.Error("job.record.fail", "job_id", report.ID, "err", err)
	}

	return report, nil
}

// runOne shields the batch from anything a single user's run throws,
// including panics from engine bugs.
func (r *Runner) runOne(ctx context.Context, userID string) (outcome UserOutcome) {
	outcome = UserOutcome{UserID: userID}

	defer func() {
		if rec := recover(); rec != nil {
			outcome.Status = inbox.StatusError
			outcome.Reason = inbox.ReasonEngineException
			outcome.Err = fmt.Sprintf("panic: %v", rec)
		}
	}()

	res := r.engine.Run(ctx, userID)
	outcome.Status = res.Status
	outcome.Reason = res.Reason
	outcome.Inserted = len(res.Inserted)
	if res.Err != nil {
		outcome.Err = res.Err.Error()
	}
	return outcome
}

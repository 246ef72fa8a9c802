package inbox

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
)

// Raw payloads are logged for contract-drift diagnosis but size-capped so a
// runaway agent cannot flood the log sink.
const logPayloadCapBytes = 2048

// Observer receives pipeline telemetry. Implementations must be fast and
// must not fail; the engine never checks for errors from an observer.
type Observer interface {
	// RunFinished fires exactly once per Engine.Run, for every outcome.
	RunFinished(userID string, res Result)

	// AgentCalled fires after each agent invocation with its duration.
	AgentCalled(userID string, elapsed time.Duration, err error)
}

// Engine orchestrates one delivery cycle per Run call: capacity check,
// history fetch, agent invocation, validation, dedupe, persistence.
//
// Concurrency: a run is a sequential pipeline with no internal parallelism.
// Two concurrent runs for the same user can both observe capacity and both
// insert; the nominal queue limit is a soft bound, not a hard invariant.
type Engine struct {
	cfg       Config
	store     Store
	agent     Agent
	log       *slog.Logger
	observers []Observer

	now func() time.Time
}

// EngineOption configures optional Engine dependencies.
type EngineOption func(*Engine)

// WithObserver registers a telemetry observer.
func WithObserver(obs Observer) EngineOption {
	return func(e *Engine) {
		if e == nil || obs == nil {
			return
		}
		e.observers = append(e.observers, obs)
	}
}

// WithClock overrides the engine clock (tests).
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if e == nil || now == nil {
			return
		}
		e.now = now
	}
}

// NewEngine constructs an Engine from explicit config and capabilities.
func NewEngine(cfg Config, store Store, agent Agent, log *slog.Logger, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("inbox: nil store")
	}
	if agent == nil {
		return nil, errors.New("inbox: nil agent")
	}
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	e := &Engine{
		cfg:   cfg,
		store: store,
		agent: agent,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(e)
	}
	return e, nil
}

// Run executes one delivery cycle for userID. It never returns an error:
// every outcome, including store and agent failures, resolves to a Result.
//
// Steps execute strictly in order, each an early-return point:
// capacity -> history -> prompt -> agent -> validate -> dedupe -> persist.
func (e *Engine) Run(ctx context.Context, userID string) Result {
	res := e.run(ctx, userID)
	for _, obs := range e.observers {
		obs.RunFinished(userID, res)
	}
	return res
}

func (e *Engine) run(ctx context.Context, userID string) Result {
	now := e.now()

	// Step 1: capacity check.
	queue, err := e.store.QueueSnapshot(ctx, userID, e.cfg.QueueLimit)
	if err != nil {
		e.log.Error("inbox.run.queue.fail", "user_id", userID, "err", err)
		return errorResult(ReasonPersistenceFailure, QueueSnapshot{}, 0, err)
	}
	if !queue.HasCapacity {
		e.log.Info("inbox.run.skip", "user_id", userID, "reason", ReasonQueueFull, "total", queue.Total, "limit", queue.Limit)
		return skippedResult(ReasonQueueFull, queue, 0)
	}

	// Step 2: dedupe window.
	history, err := e.store.RecentHistory(ctx, userID, e.cfg.Lookback())
	if err != nil {
		e.log.Error("inbox.run.history.fail", "user_id", userID, "err", err)
		return errorResult(ReasonPersistenceFailure, queue, 0, err)
	}
	historyHashes := HistoryHashSet(history)

	remaining := queue.Available
	if e.cfg.QueueLimit < remaining {
		remaining = e.cfg.QueueLimit
	}
	if remaining <= 0 {
		return skippedResult(ReasonQueueFull, queue, len(history))
	}

	// Step 3: agent invocation, bounded by the configured timeout since it
	// is the only unbounded-latency external call.
	input := buildAgentInput(now, remaining, history)

	agentCtx, cancel := context.WithTimeout(ctx, e.cfg.AgentTimeout)
	defer cancel()

	started := time.Now()
	resp, err := e.agent.Run(agentCtx, AgentRequest{
		Input:    input,
		UserID:   userID,
		MaxItems: remaining,
		Metadata: e.cfg.Metadata,
	})
	elapsed := time.Since(started)
	for _, obs := range e.observers {
		obs.AgentCalled(userID, elapsed, err)
	}
	if err != nil {
		e.log.Error("inbox.run.agent.fail", "user_id", userID, "err", err, "elapsed_ms", elapsed.Milliseconds())
		return errorResult(ReasonAgentFailure, queue, len(history), err)
	}
	if resp.Status != AgentStatusOK || len(resp.Output) == 0 {
		e.log.Info("inbox.run.skip", "user_id", userID, "reason", ReasonAgentEmpty, "agent_status", resp.Status)
		return skippedResult(ReasonAgentEmpty, queue, len(history))
	}

	// Step 4: trust boundary.
	batch, err := ValidateBatch(resp.Output, e.cfg.MaxBatchItems)
	if err != nil {
		e.log.Error("inbox.run.payload.invalid",
			"user_id", userID,
			"err", err,
			"payload", capPayload(resp.Output),
		)
		return errorResult(ReasonInvalidPayload, queue, len(history), err)
	}

	// Step 5: hard dedupe against history and within the batch.
	kept := FilterDuplicates(batch.Items, historyHashes, remaining)
	if len(kept) == 0 {
		e.log.Info("inbox.run.skip", "user_id", userID, "reason", ReasonNoCandidates, "candidates", len(batch.Items))
		return skippedResult(ReasonNoCandidates, queue, len(history))
	}

	// Step 6: atomic persist (items + audit events).
	batchID := ulid.Make().String()
	inserted, err := e.store.InsertItems(ctx, InsertItemsInput{
		UserID:   userID,
		Items:    kept,
		BatchID:  batchID,
		Metadata: e.cfg.Metadata,
		Now:      now,
	})
	if err != nil {
		e.log.Error("inbox.run.insert.fail", "user_id", userID, "batch_id", batchID, "err", err)
		return errorResult(ReasonPersistenceFailure, queue, len(history), err)
	}

	e.log.Info("inbox.run.success",
		"user_id", userID,
		"batch_id", batchID,
		"inserted", len(inserted),
		"candidates", len(batch.Items),
		"history", len(history),
	)

	return Result{
		Status:       StatusSuccess,
		Queue:        queue,
		Inserted:     inserted,
		HistoryCount: len(history),
	}
}

func capPayload(raw []byte) string {
	if len(raw) <= logPayloadCapBytes {
		return string(raw)
	}
	return string(raw[:logPayloadCapBytes]) + "...(truncated)"
}

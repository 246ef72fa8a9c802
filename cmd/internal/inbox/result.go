package inbox

// Status classifies the outcome of one engine run.
type Status string

const (
	// StatusSuccess means at least one item was delivered.
	StatusSuccess Status = "success"
	// StatusSkipped means there was nothing to do; expected steady state.
	StatusSkipped Status = "skipped"
	// StatusError means something broke; callers may alert on frequency.
	StatusError Status = "error"
)

// Reason explains a skipped or error outcome.
type Reason string

const (
	// ReasonQueueFull: capacity exhausted; not an error.
	ReasonQueueFull Reason = "queue_full"
	// ReasonAgentEmpty: agent returned no usable output; not an error.
	ReasonAgentEmpty Reason = "agent_empty"
	// ReasonAgentFailure: the agent call threw, rejected, or timed out.
	ReasonAgentFailure Reason = "agent_failure"
	// ReasonInvalidPayload: agent output failed schema validation;
	// indicates contract drift between generator and consumer.
	ReasonInvalidPayload Reason = "invalid_agent_payload"
	// ReasonNoCandidates: every generated candidate was a duplicate or
	// excess; not an error.
	ReasonNoCandidates Reason = "no_candidates"
	// ReasonPersistenceFailure: a store operation failed; retryable by
	// re-running the whole pipeline (dedupe suppresses re-sent duplicates).
	ReasonPersistenceFailure Reason = "persistence_failure"
	// ReasonEngineException: an uncategorized per-user failure surfaced by
	// the batch job wrapper, never by the engine itself.
	ReasonEngineException Reason = "engine_exception"
)

// Result is the sole external contract of the pipeline. Every Engine.Run
// invocation returns exactly one Result; Err is diagnostic detail and is
// never a substitute for Status.
type Result struct {
	Status       Status
	Reason       Reason
	Queue        QueueSnapshot
	Inserted     []InsertedItem
	HistoryCount int
	Err          error
}

func skippedResult(reason Reason, queue QueueSnapshot, historyCount int) Result {
	return Result{
		Status:       StatusSkipped,
		Reason:       reason,
		Queue:        queue,
		Inserted:     []InsertedItem{},
		HistoryCount: historyCount,
	}
}

func errorResult(reason Reason, queue QueueSnapshot, historyCount int, err error) Result {
	return Result{
		Status:       StatusError,
		Reason:       reason,
		Queue:        queue,
		Inserted:     []InsertedItem{},
		HistoryCount: historyCount,
		Err:          err,
	}
}

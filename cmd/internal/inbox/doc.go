// Package inbox implements Haven's inbox delivery pipeline.
//
// The pipeline takes a batch of candidate insight items proposed by an
// external generating agent, validates it at the trust boundary,
// deduplicates it against recently delivered items using content hashing,
// respects a bounded per-user delivery queue, and persists survivors
// together with audit events.
//
// The sole external contract is Result: every Engine.Run invocation
// resolves to exactly one Result and never propagates an error across the
// boundary.
package inbox

package inbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Kind enumerates the closed set of deliverable item kinds.
type Kind string

const (
	// KindSummary is a recap of recent journaling activity.
	KindSummary Kind = "summary"
	// KindNudge is a gentle prompt to revisit or continue something.
	KindNudge Kind = "nudge"
	// KindFollowup asks about a previously surfaced topic.
	KindFollowup Kind = "followup"
	// KindObservation points out something noticed in recent entries.
	KindObservation Kind = "observation"
	// KindQuestion is an open reflective question.
	KindQuestion Kind = "question"
	// KindPattern describes a recurring theme across entries.
	KindPattern Kind = "pattern"
)

// ValidKind reports whether k is a member of the closed kind set.
func ValidKind(k Kind) bool {
	switch k {
	case KindSummary, KindNudge, KindFollowup, KindObservation, KindQuestion, KindPattern:
		return true
	}
	return false
}

// Field length and batch limits.
// Keep these aligned with the agent prompt contract.
const (
	minTitleChars   = 4
	maxTitleChars   = 140
	minSummaryChars = 10
	maxSummaryChars = 400

	// DefaultMaxBatchItems caps candidates accepted per generation cycle.
	DefaultMaxBatchItems = 6
)

// Evidence references a source record supporting a candidate.
type Evidence struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Context string `json:"context,omitempty"`
}

// Candidate is an unvalidated, unpersisted item proposed by the agent for
// one delivery cycle. Optional fields are pointers or zero-able slices so
// absence is distinguishable from an empty value.
type Candidate struct {
	Kind    Kind   `json:"type"`
	Title   string `json:"title"`
	Summary string `json:"summary"`

	Body           string     `json:"body,omitempty"`
	Inference      string     `json:"inference,omitempty"`
	Evidence       []Evidence `json:"evidence,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	RelatedPartIDs []string   `json:"relatedPartIds,omitempty"`
	SourceEntryIDs []string   `json:"sourceEntryIds,omitempty"`
	Confidence     *float64   `json:"confidence,omitempty"`
}

// Batch is the top-level shape the agent must produce.
type Batch struct {
	Items []Candidate `json:"items"`
	Notes string      `json:"notes,omitempty"`
}

// ValidateBatch decodes and validates raw agent output.
//
// This is a trust boundary: the input originates from a non-deterministic
// external generator and is never assumed well-formed. Decoding is strict
// (unknown fields rejected, no trailing data) and every structural rule is
// enforced; any violation returns a *ValidationError.
func ValidateBatch(raw []byte, maxItems int) (Batch, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxBatchItems
	}

	var batch Batch
	if len(bytes.TrimSpace(raw)) == 0 {
		return Batch{}, &ValidationError{Issues: []string{"empty payload"}}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&batch); err != nil {
		return Batch{}, &ValidationError{Issues: []string{"malformed JSON: " + err.Error()}}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Batch{}, &ValidationError{Issues: []string{"extra data after batch object"}}
	}

	var issues []string
	if len(batch.Items) > maxItems {
		issues = append(issues, fmt.Sprintf("items: %d exceeds batch cap %d", len(batch.Items), maxItems))
	}

	for i := range batch.Items {
		issues = append(issues, validateCandidate(i, batch.Items[i])...)
	}

	if len(issues) > 0 {
		return Batch{}, &ValidationError{Issues: issues}
	}
	return batch, nil
}

func validateCandidate(i int, c Candidate) []string {
	var issues []string

	at := func(field, msg string) string {
		return fmt.Sprintf("items[%d].%s: %s", i, field, msg)
	}

	if !ValidKind(c.Kind) {
		issues = append(issues, at("type", fmt.Sprintf("unknown kind %q", string(c.Kind))))
	}

	title := strings.TrimSpace(c.Title)
	if n := utf8.RuneCountInString(title); n < minTitleChars || n > maxTitleChars {
		issues = append(issues, at("title", fmt.Sprintf("length %d outside [%d,%d]", n, minTitleChars, maxTitleChars)))
	}

	summary := strings.TrimSpace(c.Summary)
	if n := utf8.RuneCountInString(summary); n < minSummaryChars || n > maxSummaryChars {
		issues = append(issues, at("summary", fmt.Sprintf("length %d outside [%d,%d]", n, minSummaryChars, maxSummaryChars)))
	}

	for j, ev := range c.Evidence {
		if strings.TrimSpace(ev.Type) == "" || strings.TrimSpace(ev.ID) == "" {
			issues = append(issues, at(fmt.Sprintf("evidence[%d]", j), "type and id are required"))
		}
	}

	for j, tag := range c.Tags {
		if strings.TrimSpace(tag) == "" {
			issues = append(issues, at(fmt.Sprintf("tags[%d]", j), "empty tag"))
		}
	}

	if c.Confidence != nil && (*c.Confidence < 0 || *c.Confidence > 1) {
		issues = append(issues, at("confidence", fmt.Sprintf("%v outside [0,1]", *c.Confidence)))
	}

	return issues
}

package inbox

import (
	"errors"
	"strings"
	"testing"
)

func validBatchJSON() string {
	return `{
		"items": [
			{
				"type": "observation",
				"title": "A recurring tension around deadlines",
				"summary": "Entries from this week mention deadline pressure three times, each followed by self-criticism.",
				"evidence": [{"type": "journal", "id": "e1"}],
				"tags": ["work", "pressure"],
				"confidence": 0.8
			}
		],
		"notes": "focused on the last seven days"
	}`
}

func TestValidateBatch_Valid(t *testing.T) {
	t.Parallel()

	batch, err := ValidateBatch([]byte(validBatchJSON()), DefaultMaxBatchItems)
	if err != nil {
		t.Fatalf("ValidateBatch: %v", err)
	}
	if len(batch.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(batch.Items))
	}
	if batch.Items[0].Kind != KindObservation {
		t.Fatalf("expected kind observation, got %q", batch.Items[0].Kind)
	}
	if batch.Notes == "" {
		t.Fatalf("expected notes to survive decode")
	}
}

func TestValidateBatch_Rejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "empty payload",
			raw:  "   ",
			want: "empty payload",
		},
		{
			name: "malformed json",
			raw:  `{"items": [`,
			want: "malformed JSON",
		},
		{
			name: "unknown top-level field",
			raw:  `{"items": [], "surprise": true}`,
			want: "malformed JSON",
		},
		{
			name: "unknown item field",
			raw:  `{"items": [{"type": "nudge", "title": "Take a pause", "summary": "A short breathing break before your next entry.", "rank": 3}]}`,
			want: "malformed JSON",
		},
		{
			name: "trailing data",
			raw:  `{"items": []} {"items": []}`,
			want: "extra data",
		},
		{
			name: "unknown kind",
			raw:  `{"items": [{"type": "prophecy", "title": "Take a pause", "summary": "A short breathing break before your next entry."}]}`,
			want: "unknown kind",
		},
		{
			name: "title too short",
			raw:  `{"items": [{"type": "nudge", "title": "Hi", "summary": "A short breathing break before your next entry."}]}`,
			want: "items[0].title",
		},
		{
			name: "summary too short",
			raw:  `{"items": [{"type": "nudge", "title": "Take a pause", "summary": "short"}]}`,
			want: "items[0].summary",
		},
		{
			name: "confidence out of range",
			raw:  `{"items": [{"type": "nudge", "title": "Take a pause", "summary": "A short breathing break before your next entry.", "confidence": 1.5}]}`,
			want: "confidence",
		},
		{
			name: "evidence missing id",
			raw:  `{"items": [{"type": "nudge", "title": "Take a pause", "summary": "A short breathing break before your next entry.", "evidence": [{"type": "journal", "id": ""}]}]}`,
			want: "evidence[0]",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := ValidateBatch([]byte(tc.raw), DefaultMaxBatchItems)
			if err == nil {
				t.Fatalf("expected rejection")
			}
			if !errors.Is(err, ErrInvalidBatch) {
				t.Fatalf("expected ErrInvalidBatch, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.want)
			}
		})
	}
}

func TestValidateBatch_BatchCap(t *testing.T) {
	t.Parallel()

	item := `{"type": "question", "title": "What felt heavy today?", "summary": "An open question about the weight you described carrying this week."}`
	raw := `{"items": [` + strings.Repeat(item+",", 6) + item + `]}`

	_, err := ValidateBatch([]byte(raw), 6)
	if err == nil {
		t.Fatalf("expected batch cap rejection")
	}
	if !strings.Contains(err.Error(), "exceeds batch cap") {
		t.Fatalf("unexpected error: %v", err)
	}

	// All issues are collected, not just the first.
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
}

func TestValidateBatch_CollectsAllIssues(t *testing.T) {
	t.Parallel()

	raw := `{"items": [
		{"type": "prophecy", "title": "Hi", "summary": "short"},
		{"type": "nudge", "title": "Take a pause", "summary": "A short breathing break before your next entry.", "confidence": -1}
	]}`

	_, err := ValidateBatch([]byte(raw), DefaultMaxBatchItems)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Issues) != 4 {
		t.Fatalf("expected 4 issues, got %d: %v", len(verr.Issues), verr.Issues)
	}
}

func TestValidKind_ClosedSet(t *testing.T) {
	t.Parallel()

	for _, k := range []Kind{KindSummary, KindNudge, KindFollowup, KindObservation, KindQuestion, KindPattern} {
		if !ValidKind(k) {
			t.Fatalf("expected %q valid", k)
		}
	}
	if ValidKind(Kind("insight")) {
		t.Fatalf("expected unknown kind rejected")
	}
}

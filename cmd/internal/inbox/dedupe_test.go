package inbox

import "testing"

func namedCandidate(title string) Candidate {
	return Candidate{
		Kind:    KindNudge,
		Title:   title,
		Summary: "A gentle reminder related to " + title + " from your recent entries.",
	}
}

func TestFilterDuplicates_AllInHistory(t *testing.T) {
	t.Parallel()

	cands := []Candidate{namedCandidate("First topic"), namedCandidate("Second topic")}
	history := map[string]struct{}{
		SemanticHash(cands[0]): {},
		SemanticHash(cands[1]): {},
	}

	if got := FilterDuplicates(cands, history, 5); len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
}

func TestFilterDuplicates_WithinBatch(t *testing.T) {
	t.Parallel()

	cands := []Candidate{
		namedCandidate("Repeated topic"),
		namedCandidate("Repeated topic"),
		namedCandidate("Fresh topic"),
	}

	got := FilterDuplicates(cands, nil, 5)
	if len(got) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(got))
	}
	if got[0].Title != "Repeated topic" || got[1].Title != "Fresh topic" {
		t.Fatalf("expected first occurrence kept in order, got %q, %q", got[0].Title, got[1].Title)
	}
}

func TestFilterDuplicates_CapRespected(t *testing.T) {
	t.Parallel()

	cands := []Candidate{
		namedCandidate("One"), namedCandidate("Two"),
		namedCandidate("Three"), namedCandidate("Four"),
	}

	got := FilterDuplicates(cands, map[string]struct{}{}, 2)
	if len(got) != 2 {
		t.Fatalf("expected cap of 2, got %d", len(got))
	}
	// Generation order is the only priority; no re-sorting.
	if got[0].Title != "One" || got[1].Title != "Two" {
		t.Fatalf("expected stable order, got %q, %q", got[0].Title, got[1].Title)
	}
}

func TestFilterDuplicates_AnnotatesHash(t *testing.T) {
	t.Parallel()

	c := namedCandidate("Annotated")
	got := FilterDuplicates([]Candidate{c}, nil, 1)
	if len(got) != 1 {
		t.Fatalf("expected 1 survivor")
	}
	if got[0].SemanticHash != SemanticHash(c) {
		t.Fatalf("survivor not annotated with its hash")
	}
}

func TestFilterDuplicates_ZeroCap(t *testing.T) {
	t.Parallel()

	if got := FilterDuplicates([]Candidate{namedCandidate("One")}, nil, 0); got != nil {
		t.Fatalf("expected nil for zero cap, got %v", got)
	}
}

func TestHistoryHashSet_SkipsMissingHashes(t *testing.T) {
	t.Parallel()

	h1 := "abc"
	empty := ""
	entries := []HistoryEntry{
		{ID: "1", SemanticHash: &h1},
		{ID: "2", SemanticHash: nil},
		{ID: "3", SemanticHash: &empty},
	}

	set := HistoryHashSet(entries)
	if len(set) != 1 {
		t.Fatalf("expected 1 hash, got %d", len(set))
	}
	if _, ok := set["abc"]; !ok {
		t.Fatalf("expected hash retained")
	}
}

package inbox

import (
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Unit separator keeps adjacent fields from colliding after concatenation.
const hashFieldSep = "\x1f"

// SemanticHash computes a stable content fingerprint for a candidate.
//
// The digest covers kind, trimmed title/summary/body/inference, and the
// sorted tag, related-part, and evidence lists. Sorting makes the hash
// order-independent for list-valued fields: two candidates with identical
// normalized content hash identically regardless of field ordering.
func SemanticHash(c Candidate) string {
	parts := []string{
		string(c.Kind),
		strings.TrimSpace(c.Title),
		strings.TrimSpace(c.Summary),
		strings.TrimSpace(c.Body),
		strings.TrimSpace(c.Inference),
		joinSorted(c.Tags),
		joinSorted(c.RelatedPartIDs),
		joinSorted(evidencePairs(c.Evidence)),
	}

	sum := blake2b.Sum256([]byte(strings.Join(parts, hashFieldSep)))
	return hex.EncodeToString(sum[:])
}

// HashedCandidate is a validated candidate annotated with its fingerprint.
type HashedCandidate struct {
	Candidate
	SemanticHash string
}

func joinSorted(in []string) string {
	if len(in) == 0 {
		return ""
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.TrimSpace(s))
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

func evidencePairs(evs []Evidence) []string {
	if len(evs) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(evs))
	for _, ev := range evs {
		pairs = append(pairs, strings.TrimSpace(ev.Type)+":"+strings.TrimSpace(ev.ID))
	}
	return pairs
}

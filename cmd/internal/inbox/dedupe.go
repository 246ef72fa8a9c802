package inbox

// FilterDuplicates drops candidates whose semantic hash matches recent
// history or an earlier candidate in the same batch, and caps the survivors
// at maxCount.
//
// The filter is greedy, single-pass, and stable: generation order is the
// only priority, there is no re-sorting and no backtracking. A batch where
// everything is a duplicate yields an empty result, which callers must
// treat as "nothing to deliver", not as a failure.
func FilterDuplicates(candidates []Candidate, historyHashes map[string]struct{}, maxCount int) []HashedCandidate {
	if maxCount <= 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(candidates))
	result := make([]HashedCandidate, 0, min(len(candidates), maxCount))

	for _, c := range candidates {
		if len(result) >= maxCount {
			break
		}

		h := SemanticHash(c)
		if _, dup := historyHashes[h]; dup {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}

		seen[h] = struct{}{}
		result = append(result, HashedCandidate{Candidate: c, SemanticHash: h})
	}

	return result
}

// HistoryHashSet collects the non-empty semantic hashes of history entries.
func HistoryHashSet(entries []HistoryEntry) map[string]struct{} {
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.SemanticHash != nil && *e.SemanticHash != "" {
			set[*e.SemanticHash] = struct{}{}
		}
	}
	return set
}

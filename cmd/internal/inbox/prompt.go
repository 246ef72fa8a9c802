package inbox

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Prompt digest limits. The history digest is a soft repetition hint for
// the agent; hard dedupe happens after generation via semantic hashes.
const (
	promptMaxHistoryEntries = 12
	promptMaxSummaryChars   = 80
)

// buildAgentInput renders the generation context: current time, how many
// delivery slots remain, and a compact digest of recently delivered items.
// Output is deterministic for a given history order.
func buildAgentInput(now time.Time, remaining int, history []HistoryEntry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Current time: %s\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Open inbox slots: %d\n", remaining)

	if len(history) == 0 {
		b.WriteString("Recently delivered: none\n")
		return b.String()
	}

	b.WriteString("Recently delivered (avoid repeating these):\n")
	for i, e := range history {
		if i >= promptMaxHistoryEntries {
			fmt.Fprintf(&b, "... and %d more\n", len(history)-promptMaxHistoryEntries)
			break
		}
		fmt.Fprintf(&b, "- %s: %s\n", strings.TrimSpace(e.Title), truncateRunes(strings.TrimSpace(e.Summary), promptMaxSummaryChars))
	}

	return b.String()
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "…"
}

package cache

import (
	"sort"
	"strings"

	"github.com/amp-proto/amp/internal/objects"
)

// maxSummaryTokens bounds the synthesized block summary (§4.3 step 2 of
// compact: "≤ ~200 tokens").
const maxSummaryTokens = 200

// synthesizeSummary builds a deterministic block summary by
// concatenating items in descending importance order and truncating to
// maxSummaryTokens, mirroring the contract's rule-based option rather
// than calling out to an LLM.
func synthesizeSummary(items []objects.CacheItem) string {
	if len(items) == 0 {
		return ""
	}
	ordered := make([]objects.CacheItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Importance > ordered[j].Importance
	})

	var b strings.Builder
	budget := maxSummaryTokens * 4 // back to an approximate char budget
	for _, it := range ordered {
		line := strings.TrimSpace(it.Content)
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" | ")
		}
		remaining := budget - b.Len()
		if remaining <= 0 {
			break
		}
		if len(line) > remaining {
			line = line[:remaining]
		}
		b.WriteString(line)
	}
	return b.String()
}

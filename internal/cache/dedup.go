package cache

import (
	"strings"

	"github.com/amp-proto/amp/internal/objects"
	"github.com/amp-proto/amp/internal/store"
)

// dedupThreshold is the cosine similarity above which an incoming item
// is folded into an existing one instead of appended (§4.3 step 2).
const dedupThreshold = 0.92

// bestMatch returns the index of the embedded item in items whose
// embedding is most similar to incoming, and the similarity score. It
// returns (-1, 0) if incoming has no embedding or none of items do.
func bestMatch(items []objects.CacheItem, incoming objects.CacheItem) (int, float64) {
	if len(incoming.Embedding) == 0 {
		return -1, 0
	}
	best := -1
	bestScore := 0.0
	for i, it := range items {
		if len(it.Embedding) == 0 {
			continue
		}
		score := store.CosineSimilarity(it.Embedding, incoming.Embedding)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return best, bestScore
}

// mergeInto folds incoming into existing in place: importance takes the
// higher of the two, and incoming's content is appended only if it
// isn't already a substring of the merged content (no duplication).
func mergeInto(existing *objects.CacheItem, incoming objects.CacheItem) {
	if incoming.Importance > existing.Importance {
		existing.Importance = incoming.Importance
	}
	if !strings.Contains(existing.Content, incoming.Content) {
		existing.Content = existing.Content + "\n" + incoming.Content
	}
	if incoming.FileRef != "" {
		existing.FileRef = incoming.FileRef
	}
	if incoming.CreatedAt.After(existing.CreatedAt) {
		existing.CreatedAt = incoming.CreatedAt
	}
}

package query

import (
	"sort"

	"github.com/amp-proto/amp/internal/store"
)

// rrfK is the Reciprocal Rank Fusion constant fixed by §4.2.
const rrfK = 60

// streamRank is one contributing stream's rank (1-based) and raw score
// for a single object id, kept for the explanation field.
type streamRank struct {
	name  string
	rank  int
	score float64
}

// fuse computes Reciprocal Rank Fusion over any number of ranked
// streams (text, vector, graph). Items present in multiple streams
// accrue additive boost. The returned scores are normalized so the top
// result is 1.0, keeping the overall [0,1] contract while preserving
// RRF's relative ordering.
func fuse(streams map[string][]store.ScoredID) (map[string]float64, map[string][]streamRank) {
	rrfScores := make(map[string]float64)
	explain := make(map[string][]streamRank)

	for name, hits := range streams {
		for i, hit := range hits {
			rank := i + 1
			rrfScores[hit.ID] += 1.0 / float64(rrfK+rank)
			explain[hit.ID] = append(explain[hit.ID], streamRank{name: name, rank: rank, score: hit.Score})
		}
	}

	maxScore := 0.0
	for _, s := range rrfScores {
		if s > maxScore {
			maxScore = s
		}
	}
	if maxScore > 0 {
		for id := range rrfScores {
			rrfScores[id] /= maxScore
		}
	}
	return rrfScores, explain
}

// rankedIDs returns the ids from scores sorted by score descending,
// ties broken by (recency, then id) per §4.2 — recency is supplied by
// the caller via createdAt since fuse itself only sees bare ids.
func rankedIDs(scores map[string]float64, createdAt map[string]int64) []string {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if scores[a] != scores[b] {
			return scores[a] > scores[b]
		}
		if createdAt[a] != createdAt[b] {
			return createdAt[a] > createdAt[b]
		}
		return a < b
	})
	return ids
}

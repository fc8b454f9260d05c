package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-proto/amp/internal/store"
)

func TestFuseBoostsItemsPresentInMultipleStreams(t *testing.T) {
	streams := map[string][]store.ScoredID{
		"text":   {{ID: "x", Score: 0.9}, {ID: "y", Score: 0.5}},
		"vector": {{ID: "y", Score: 0.8}, {ID: "x", Score: 0.3}},
	}
	scores, explain := fuse(streams)

	require.Contains(t, scores, "x")
	require.Contains(t, scores, "y")
	// x is rank 1 in text and rank 2 in vector; y is rank 2 in text and
	// rank 1 in vector — symmetric, so their fused scores should match.
	assert.InDelta(t, scores["x"], scores["y"], 1e-9)
	assert.Len(t, explain["x"], 2)
	assert.Len(t, explain["y"], 2)
}

func TestFuseNormalizesTopScoreToOne(t *testing.T) {
	streams := map[string][]store.ScoredID{
		"text": {{ID: "a", Score: 1}, {ID: "b", Score: 0.5}},
	}
	scores, _ := fuse(streams)
	assert.Equal(t, 1.0, scores["a"])
	assert.Less(t, scores["b"], scores["a"])
}

func TestFuseEmptyStreamsProducesEmptyScores(t *testing.T) {
	scores, explain := fuse(map[string][]store.ScoredID{})
	assert.Empty(t, scores)
	assert.Empty(t, explain)
}

func TestRankedIDsBreaksTiesByRecencyThenID(t *testing.T) {
	scores := map[string]float64{"a": 0.5, "b": 0.5, "c": 0.9}
	createdAt := map[string]int64{"a": 100, "b": 200, "c": 0}
	ordered := rankedIDs(scores, createdAt)
	assert.Equal(t, []string{"c", "b", "a"}, ordered)
}

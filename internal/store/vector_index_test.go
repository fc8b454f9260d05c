package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarityIdenticalVectors(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 0.0001)
}

func TestCosineSimilarityOrthogonalVectors(t *testing.T) {
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.0001)
}

func TestBruteForceIndexRanksBySimilarity(t *testing.T) {
	idx := NewBruteForceIndex(2)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "close", []float32{1, 0.01}))
	require.NoError(t, idx.Upsert(ctx, "far", []float32{0, 1}))

	results, err := idx.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "close", results[0].ID)
}

func TestBruteForceIndexRejectsDimensionMismatch(t *testing.T) {
	idx := NewBruteForceIndex(3)
	err := idx.Upsert(context.Background(), "x", []float32{1, 2})
	require.Error(t, err)
}

func TestBruteForceIndexDeleteRemovesVector(t *testing.T) {
	idx := NewBruteForceIndex(0)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 1}))
	require.NoError(t, idx.Delete(ctx, "a"))

	results, err := idx.Search(ctx, []float32{1, 1}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

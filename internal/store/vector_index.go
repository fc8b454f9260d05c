package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/amp-proto/amp/internal/amperrors"
)

// BruteForceIndex is a dimension-typed O(n) cosine-similarity scan.
// It backs the memory store when cmd/server knows no embedding
// dimension, and always backs the sqlite and postgres stores.
type BruteForceIndex struct {
	mu        sync.RWMutex
	dimension int
	vectors   map[string][]float32
}

// NewBruteForceIndex constructs an index fixed to dimension, or to the
// dimension of the first upserted vector when dimension is 0.
func NewBruteForceIndex(dimension int) *BruteForceIndex {
	return &BruteForceIndex{dimension: dimension, vectors: make(map[string][]float32)}
}

func (idx *BruteForceIndex) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dimension
}

func (idx *BruteForceIndex) Upsert(ctx context.Context, id string, vector []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.dimension == 0 {
		idx.dimension = len(vector)
	}
	if len(vector) != idx.dimension {
		return amperrors.EmbeddingShapeMismatch(idx.dimension, len(vector))
	}
	idx.vectors[id] = vector
	return nil
}

func (idx *BruteForceIndex) Delete(ctx context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.vectors, id)
	return nil
}

func (idx *BruteForceIndex) Search(ctx context.Context, query []float32, topK int) ([]ScoredID, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.dimension != 0 && len(query) != idx.dimension {
		return nil, amperrors.EmbeddingShapeMismatch(idx.dimension, len(query))
	}
	scored := make([]ScoredID, 0, len(idx.vectors))
	for id, v := range idx.vectors {
		scored = append(scored, ScoredID{ID: id, Score: CosineSimilarity(query, v)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// CosineSimilarity computes the cosine of the angle between a and b,
// returning 0 for zero-length or mismatched-length vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

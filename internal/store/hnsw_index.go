package store

import (
	"context"
	"sync"

	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/coder/hnsw"
)

// HNSWIndex is the default in-process ANN vector index, selected for
// database_url=memory when a dimension is known at startup. It trades
// the BruteForceIndex's exactness for sublinear search at scale.
type HNSWIndex struct {
	mu        sync.RWMutex
	graph     *hnsw.Graph[uint64]
	dimension int

	idToKey map[string]uint64
	keyToID map[uint64]string
	nextKey uint64
}

// NewHNSWIndex constructs an ANN index fixed to dimension (0 to infer
// it from the first upserted vector).
func NewHNSWIndex(dimension int) *HNSWIndex {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	return &HNSWIndex{
		graph:     g,
		dimension: dimension,
		idToKey:   make(map[string]uint64),
		keyToID:   make(map[uint64]string),
	}
}

func (idx *HNSWIndex) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dimension
}

func (idx *HNSWIndex) Upsert(ctx context.Context, id string, vector []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.dimension == 0 {
		idx.dimension = len(vector)
	}
	if len(vector) != idx.dimension {
		return amperrors.EmbeddingShapeMismatch(idx.dimension, len(vector))
	}

	// Lazy deletion on overwrite: coder/hnsw's Graph.Delete is unsafe to
	// call on the last remaining node, so a stale key is simply orphaned
	// from the id<->key maps and excluded from future search results.
	if oldKey, exists := idx.idToKey[id]; exists {
		delete(idx.keyToID, oldKey)
	}

	key := idx.nextKey
	idx.nextKey++
	vec := make([]float32, len(vector))
	copy(vec, vector)

	idx.graph.Add(hnsw.MakeNode(key, vec))
	idx.idToKey[id] = key
	idx.keyToID[key] = id
	return nil
}

func (idx *HNSWIndex) Delete(ctx context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if key, exists := idx.idToKey[id]; exists {
		delete(idx.keyToID, key)
		delete(idx.idToKey, id)
	}
	return nil
}

func (idx *HNSWIndex) Search(ctx context.Context, query []float32, topK int) ([]ScoredID, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.dimension != 0 && len(query) != idx.dimension {
		return nil, amperrors.EmbeddingShapeMismatch(idx.dimension, len(query))
	}
	if idx.graph.Len() == 0 {
		return nil, nil
	}

	nodes := idx.graph.Search(query, topK+len(idx.keyToID)-len(idx.idToKey)+topK)
	out := make([]ScoredID, 0, topK)
	for _, node := range nodes {
		id, ok := idx.keyToID[node.Key]
		if !ok {
			continue // orphaned by a prior overwrite
		}
		distance := idx.graph.Distance(query, node.Value)
		out = append(out, ScoredID{ID: id, Score: 1 - float64(distance)/2})
		if len(out) >= topK {
			break
		}
	}
	return out, nil
}

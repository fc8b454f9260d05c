package store

import (
	"context"
	"fmt"

	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/amp-proto/amp/internal/logging"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantIndex is a remote ANN VectorIndex over a Qdrant collection. No
// database_url value selects it: cmd/server's buildStore gives the
// memory store an HNSWIndex or BruteForceIndex, and the sqlite and
// postgres stores build their own BruteForceIndex.
type QdrantIndex struct {
	client         *qdrant.Client
	collectionName string
	dimension      int
	log            logging.Logger
}

// NewQdrantIndex dials host:port and ensures the named collection
// exists with the given vector dimension.
func NewQdrantIndex(ctx context.Context, host string, port int, apiKey string, useTLS bool, collection string, dimension int) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   host,
		Port:                   port,
		APIKey:                 apiKey,
		UseTLS:                 useTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{
		client:         client,
		collectionName: collection,
		dimension:      dimension,
		log:            logging.WithComponent("store.qdrant"),
	}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *QdrantIndex) ensureCollection(ctx context.Context) error {
	collections, err := idx.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("qdrant: failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == idx.collectionName {
			return nil
		}
	}
	return idx.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: idx.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(idx.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (idx *QdrantIndex) Dimension() int { return idx.dimension }

func (idx *QdrantIndex) Upsert(ctx context.Context, id string, vector []float32) error {
	if len(vector) != idx.dimension {
		return amperrors.EmbeddingShapeMismatch(idx.dimension, len(vector))
	}
	pointID, err := stableUUIDForID(id)
	if err != nil {
		return err
	}
	_, err = idx.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: idx.collectionName,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(pointID),
				Vectors: qdrant.NewVectors(vector...),
				Payload: qdrant.NewValueMap(map[string]interface{}{"amp_object_id": id}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

func (idx *QdrantIndex) Delete(ctx context.Context, id string) error {
	pointID, err := stableUUIDForID(id)
	if err != nil {
		return err
	}
	_, err = idx.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: idx.collectionName,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(pointID)),
	})
	return err
}

func (idx *QdrantIndex) Search(ctx context.Context, query []float32, topK int) ([]ScoredID, error) {
	if len(query) != idx.dimension {
		return nil, amperrors.EmbeddingShapeMismatch(idx.dimension, len(query))
	}
	limit := uint64(topK)
	results, err := idx.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: idx.collectionName,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}
	out := make([]ScoredID, 0, len(results))
	for _, point := range results {
		payload := point.GetPayload()
		ampID := ""
		if v, ok := payload["amp_object_id"]; ok {
			ampID = v.GetStringValue()
		}
		if ampID == "" {
			continue
		}
		out = append(out, ScoredID{ID: ampID, Score: float64(point.GetScore())})
	}
	return out, nil
}

// stableUUIDForID derives a deterministic UUID from an AMP object id so
// Qdrant's point-id space (UUID or uint64) can round-trip our opaque
// string identifiers.
func stableUUIDForID(id string) (string, error) {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String(), nil
}

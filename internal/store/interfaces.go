// Package store implements the C2 object/relationship store: typed
// object persistence, secondary indices, a dimension-typed vector
// index, and adjacency lists for graph traversal.
package store

import (
	"context"
	"time"

	"github.com/amp-proto/amp/internal/objects"
)

// Filter narrows a List call over the secondary indices.
type Filter struct {
	Type      objects.Type
	ProjectID string
	TenantID  string
	Path      string
}

// BatchResult is the per-item outcome of a put_batch call — the
// store's "semi-atomic" contract (§4.1): every item reports success or
// failure independently rather than failing the whole batch.
type BatchResult struct {
	ID      string
	Success bool
	Error   error
}

// VectorIndex is the dimension-typed nearest-neighbor index maintained
// alongside the object store. Implementations back the in-memory HNSW
// graph, a remote Qdrant collection, or (trivially) a brute-force scan.
type VectorIndex interface {
	// Upsert indexes or replaces the vector for id. It returns
	// EmbeddingShapeMismatch if the index already holds vectors of a
	// different dimension.
	Upsert(ctx context.Context, id string, vector []float32) error
	Delete(ctx context.Context, id string) error
	// Search returns the topK ids nearest to query by cosine similarity,
	// most similar first, alongside their scores.
	Search(ctx context.Context, query []float32, topK int) ([]ScoredID, error)
	Dimension() int
}

// ScoredID pairs an object id with a similarity or rank score.
type ScoredID struct {
	ID    string
	Score float64
}

// ObjectStore is the C2 contract: put/put_batch/get/update/delete/list
// plus relationship management and adjacency queries.
type ObjectStore interface {
	Put(ctx context.Context, env *objects.Envelope, variant interface{}) error
	PutBatch(ctx context.Context, items []PutItem) ([]BatchResult, error)
	Get(ctx context.Context, id string) (*Record, error)
	// Update replaces the stored object wholesale (semantic PUT, per
	// the spec's resolved open question on delete-then-insert vs. full
	// replacement). Rejects discriminant-changing updates.
	Update(ctx context.Context, id string, env *objects.Envelope, variant interface{}) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter Filter, limit int) ([]*Record, error)

	PutRelationship(ctx context.Context, rel *objects.Relationship) error
	ListRelationships(ctx context.Context, sourceID string) ([]*objects.Relationship, error)
	Neighbors(ctx context.Context, id string, dir objects.Direction, types []objects.RelationType) ([]*Record, error)

	VectorSearch(ctx context.Context, queryVector []float32, topK int) ([]ScoredID, error)

	// NuclearDelete wipes every object and relationship. Used only by
	// the admin surface.
	NuclearDelete(ctx context.Context) (objectCount, relationshipCount int, err error)
	// Counts reports the current object and relationship totals
	// without mutating anything — the admin surface's nuclear-delete
	// dry-run uses this to report what a real call would remove.
	Counts(ctx context.Context) (objectCount, relationshipCount int, err error)
}

// PutItem is one element of a PutBatch call.
type PutItem struct {
	Envelope *objects.Envelope
	Variant  interface{}
}

// Record is a stored object as returned from the store: the envelope
// plus the decoded variant payload.
type Record struct {
	Envelope *objects.Envelope
	Variant  interface{}
}

// DefaultOpTimeout is the 5s default fixed by §5 for a single store op.
const DefaultOpTimeout = 5 * time.Second

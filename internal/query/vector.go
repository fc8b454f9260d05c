package query

import (
	"context"
	"sync"

	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/amp-proto/amp/internal/embeddings"
	"github.com/amp-proto/amp/internal/logging"
	"github.com/amp-proto/amp/internal/store"
)

// providerDegradedOnce limits the provider-unavailable warning to one
// per process.
var providerDegradedOnce sync.Once

// vectorSearch embeds queryText via embedder and ranks the dimension-
// matched vector index. When the embedder is unconfigured or a provider
// or search call fails, it returns an empty ranked list rather than an
// error — hybrid mode then falls back to text-only. An unavailable
// provider is warned about once per process; other embed or search
// failures are warned about on each call, and a missing embedder is
// logged at debug level.
func vectorSearch(ctx context.Context, st store.ObjectStore, embedder *embeddings.Adapter, log logging.Logger, queryText string, topK int) []store.ScoredID {
	if embedder == nil {
		log.Debug("vector retrieval skipped: no embedding provider configured")
		return nil
	}
	vec, err := embedder.Embed(ctx, queryText)
	if err != nil {
		if amperrors.As(err).Kind == amperrors.KindProviderUnavailable {
			providerDegradedOnce.Do(func() {
				log.Warn("vector retrieval degraded: embedding provider unavailable", "error", err.Error())
			})
			return nil
		}
		log.Warn("vector retrieval failed to embed query", "error", err.Error())
		return nil
	}
	hits, err := st.VectorSearch(ctx, vec, topK)
	if err != nil {
		log.Warn("vector retrieval search failed", "error", err.Error())
		return nil
	}
	return hits
}

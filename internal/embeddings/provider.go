// Package embeddings implements the C1 embedding adapter: a
// provider-agnostic text-to-vector capability with graceful
// degradation when no provider is configured or a provider call fails.
package embeddings

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/amp-proto/amp/internal/circuitbreaker"
	"github.com/amp-proto/amp/internal/logging"
	"github.com/amp-proto/amp/internal/retry"
)

// Provider is the capability the rest of the engine depends on —
// EmbedBatch, plus the provider's Dimension and Name — chosen at
// startup from configuration.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Name() string
}

// Adapter wraps a Provider with the cross-cutting concerns every
// provider needs: a bounded concurrency limiter, retry with backoff, a
// circuit breaker, and an LRU result cache keyed by text.
type Adapter struct {
	provider       Provider
	limiter        chan struct{}
	breaker        *circuitbreaker.CircuitBreaker
	cache          *lru.Cache[string, []float32]
	log            logging.Logger
}

// NewAdapter wraps provider with the standard resilience stack.
// maxConcurrency bounds outbound requests (§5, default 4); cacheSize
// bounds the embedding result cache (0 disables caching).
func NewAdapter(provider Provider, maxConcurrency, cacheSize int) *Adapter {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	var cache *lru.Cache[string, []float32]
	if cacheSize > 0 {
		cache, _ = lru.New[string, []float32](cacheSize)
	}
	return &Adapter{
		provider: provider,
		limiter:  make(chan struct{}, maxConcurrency),
		breaker:  circuitbreaker.New(circuitbreaker.DefaultConfig()),
		cache:    cache,
		log:      logging.WithComponent("embeddings"),
	}
}

func (a *Adapter) Dimension() int { return a.provider.Dimension() }
func (a *Adapter) Name() string   { return a.provider.Name() }

// Embed returns the vector for a single text, or ProviderUnavailable
// (with the vector omitted by the caller) on failure.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts, preserving order, applying the cache,
// concurrency limiter, retry and circuit breaker around the single
// underlying provider call.
func (a *Adapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var toFetch []string
	var toFetchIdx []int

	if a.cache != nil {
		for i, t := range texts {
			if v, ok := a.cache.Get(t); ok {
				out[i] = v
				continue
			}
			toFetch = append(toFetch, t)
			toFetchIdx = append(toFetchIdx, i)
		}
	} else {
		toFetch = texts
		toFetchIdx = indexRange(len(texts))
	}

	if len(toFetch) == 0 {
		return out, nil
	}

	select {
	case a.limiter <- struct{}{}:
		defer func() { <-a.limiter }()
	case <-ctx.Done():
		return nil, amperrors.Cancelled("embed_batch")
	}

	var fetched [][]float32
	err := a.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.RetryWithConfig(ctx, retry.ExponentialBackoff(3), func(ctx context.Context) error {
			var innerErr error
			fetched, innerErr = a.provider.EmbedBatch(ctx, toFetch)
			return innerErr
		})
	})
	if err != nil {
		a.log.Warn("embedding provider call failed, omitting embeddings", "provider", a.provider.Name(), "error", err.Error())
		return nil, amperrors.ProviderUnavailable(a.provider.Name(), err)
	}

	for i, vec := range fetched {
		idx := toFetchIdx[i]
		out[idx] = vec
		if a.cache != nil {
			a.cache.Add(toFetch[i], vec)
		}
	}
	return out, nil
}

func indexRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

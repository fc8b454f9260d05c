// Package cache implements the C4 episodic cache: a scoped rolling
// window of append-only blocks with semantic dedup, auto-close, and
// summary synthesis (§4.3).
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/amp-proto/amp/internal/embeddings"
	"github.com/amp-proto/amp/internal/logging"
	"github.com/amp-proto/amp/internal/objects"
	"github.com/amp-proto/amp/internal/store"
)

// MaxBlocksPerScope bounds how many blocks (open + closed) a scope
// retains before the oldest is evicted (§8 invariant 3).
const MaxBlocksPerScope = 20

// AutoCloseTokens is the token_count threshold past which a write
// closes the current block and opens a fresh one (§4.3 step 4).
const AutoCloseTokens = 1800

// scopeState owns the serialization and in-memory ordering for one
// scope_id. Blocks are mirrored into the object store for durability
// and cross-component visibility, but this slice — not the store's
// secondary indices, which have no scope_id filter — is the
// authoritative order and eviction boundary.
type scopeState struct {
	mu     sync.Mutex
	blocks []*objects.CacheBlock // ascending by Sequence
}

// Manager serializes writes per scope and fans reads out as lock-free
// snapshots, per §4.3's consistency requirement.
type Manager struct {
	store    store.ObjectStore
	embedder *embeddings.Adapter
	log      logging.Logger

	mu     sync.Mutex
	scopes map[string]*scopeState

	idMu sync.RWMutex
	byID map[string]string // block id -> scope id
}

// NewManager wires a Manager to st for persistence and embedder for
// summary/item embedding. embedder may be nil, in which case items are
// stored without vectors, dedup never merges (every item is appended),
// and Search fails with a validation error.
func NewManager(st store.ObjectStore, embedder *embeddings.Adapter) *Manager {
	return &Manager{
		store:    st,
		embedder: embedder,
		log:      logging.WithComponent("cache"),
		scopes:   make(map[string]*scopeState),
		byID:     make(map[string]string),
	}
}

func (m *Manager) scope(scopeID string) *scopeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scopes[scopeID]
	if !ok {
		s = &scopeState{}
		m.scopes[scopeID] = s
	}
	return s
}

func (m *Manager) track(blockID, scopeID string) {
	m.idMu.Lock()
	m.byID[blockID] = scopeID
	m.idMu.Unlock()
}

func (m *Manager) untrack(blockID string) {
	m.idMu.Lock()
	delete(m.byID, blockID)
	m.idMu.Unlock()
}

// Append resolves scope's current open block (creating one if none
// exists), folds item into it via semantic dedup or appends it, then
// auto-closes the block if it crosses AutoCloseTokens.
func (m *Manager) Append(ctx context.Context, scopeID, tenantID, projectID string, item objects.CacheItem) (*objects.CacheBlock, error) {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if len(item.Embedding) == 0 && m.embedder != nil && item.Content != "" {
		if vec, err := m.embedder.Embed(ctx, item.Content); err == nil {
			item.Embedding = vec
		} else {
			m.log.Debug("item embedding unavailable, writing without a vector", "scope", scopeID, "error", err.Error())
		}
	}

	st := m.scope(scopeID)
	st.mu.Lock()
	defer st.mu.Unlock()

	block := currentOpen(st.blocks)
	if block == nil {
		var err error
		block, err = m.openNewBlock(ctx, st, scopeID, tenantID, projectID)
		if err != nil {
			return nil, err
		}
	}

	if idx, score := bestMatch(block.Items, item); idx >= 0 && score >= dedupThreshold {
		mergeInto(&block.Items[idx], item)
	} else {
		block.Items = append(block.Items, item)
	}
	block.TokenCount = recomputeTokenCount(block.Items)
	block.Touch()

	if err := m.store.Update(ctx, block.ID, &block.Envelope, block); err != nil {
		return nil, err
	}

	if block.TokenCount >= AutoCloseTokens {
		if err := m.compactLocked(ctx, st, scopeID, tenantID, projectID); err != nil {
			return block, err
		}
	}

	return block, nil
}

// Compact force-closes scope's current open block regardless of its
// token count, synthesizing a summary and opening a fresh block. It is
// a no-op if scope has no open block.
func (m *Manager) Compact(ctx context.Context, scopeID, tenantID, projectID string) error {
	st := m.scope(scopeID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if currentOpen(st.blocks) == nil {
		return nil
	}
	return m.compactLocked(ctx, st, scopeID, tenantID, projectID)
}

// compactLocked implements §4.3's auto-close/compact procedure. Callers
// must hold st.mu.
func (m *Manager) compactLocked(ctx context.Context, st *scopeState, scopeID, tenantID, projectID string) error {
	block := currentOpen(st.blocks)
	if block == nil {
		return nil
	}

	now := time.Now().UTC()
	block.Status = objects.BlockClosed
	block.ClosedAt = &now
	block.Summary = synthesizeSummary(block.Items)
	if m.embedder != nil && block.Summary != "" {
		if vec, err := m.embedder.Embed(ctx, block.Summary); err == nil {
			block.Embedding = vec
		} else {
			m.log.Debug("block summary embedding unavailable", "scope", scopeID, "block", block.ID, "error", err.Error())
		}
	}
	block.Touch()
	if err := m.store.Update(ctx, block.ID, &block.Envelope, block); err != nil {
		return err
	}

	if _, err := m.openNewBlock(ctx, st, scopeID, tenantID, projectID); err != nil {
		return err
	}

	return m.evictLocked(ctx, st)
}

// openNewBlock creates and persists a fresh open block at the next
// sequence number for scope, appending it to st.blocks.
func (m *Manager) openNewBlock(ctx context.Context, st *scopeState, scopeID, tenantID, projectID string) (*objects.CacheBlock, error) {
	seq := 1
	if len(st.blocks) > 0 {
		seq = st.blocks[len(st.blocks)-1].Sequence + 1
	}
	env := objects.NewEnvelope(objects.TypeCacheBlock, tenantID, projectID, objects.Provenance{Agent: "cache"})
	block := &objects.CacheBlock{
		Envelope: env,
		ScopeID:  scopeID,
		Sequence: seq,
		Status:   objects.BlockOpen,
		Items:    nil,
	}
	if err := m.store.Put(ctx, &block.Envelope, block); err != nil {
		return nil, err
	}
	st.blocks = append(st.blocks, block)
	m.track(block.ID, scopeID)
	return block, nil
}

// evictLocked deletes the oldest block once scope exceeds
// MaxBlocksPerScope, preserving the invariant that remaining sequence
// numbers form a contiguous range (§8 invariant 4).
func (m *Manager) evictLocked(ctx context.Context, st *scopeState) error {
	if len(st.blocks) <= MaxBlocksPerScope {
		return nil
	}
	oldest := st.blocks[0]
	if err := m.store.Delete(ctx, oldest.ID); err != nil {
		return err
	}
	m.untrack(oldest.ID)
	st.blocks = st.blocks[1:]
	return nil
}

// GetCurrent returns scope's open block, or nil if none exists.
func (m *Manager) GetCurrent(scopeID string) *objects.CacheBlock {
	st := m.scope(scopeID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return currentOpen(st.blocks)
}

// List returns scope's blocks ordered by sequence descending, capped
// at limit (0 means unlimited).
func (m *Manager) List(scopeID string, limit int) []*objects.CacheBlock {
	st := m.scope(scopeID)
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]*objects.CacheBlock, len(st.blocks))
	for i, b := range st.blocks {
		out[len(st.blocks)-1-i] = b
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Get returns the block identified by blockID regardless of scope.
func (m *Manager) Get(blockID string) (*objects.CacheBlock, error) {
	m.idMu.RLock()
	scopeID, ok := m.byID[blockID]
	m.idMu.RUnlock()
	if !ok {
		return nil, amperrors.NotFound("cache_block", blockID)
	}
	st := m.scope(scopeID)
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, b := range st.blocks {
		if b.ID == blockID {
			return b, nil
		}
	}
	return nil, amperrors.NotFound("cache_block", blockID)
}

// SearchResult is one ranked hit from Search.
type SearchResult struct {
	Block *objects.CacheBlock
	Score float64
}

// Search embeds query and cosine-ranks it against scope's closed
// blocks' summary embeddings (and the open block's live summary when
// includeOpen is set), returning the top limit hits.
func (m *Manager) Search(ctx context.Context, scopeID, query string, limit int, includeOpen bool) ([]SearchResult, error) {
	if m.embedder == nil {
		return nil, amperrors.ValidationMsg("cache search requires an embedding provider")
	}
	qvec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	st := m.scope(scopeID)
	st.mu.Lock()
	candidates := make([]*objects.CacheBlock, 0, len(st.blocks))
	for _, b := range st.blocks {
		if b.Status == objects.BlockClosed {
			candidates = append(candidates, b)
			continue
		}
		if includeOpen {
			live := *b
			live.Summary = synthesizeSummary(b.Items)
			candidates = append(candidates, &live)
		}
	}
	st.mu.Unlock()

	results := make([]SearchResult, 0, len(candidates))
	for _, b := range candidates {
		vec := b.Embedding
		if len(vec) == 0 {
			if b.Summary == "" {
				continue
			}
			var embedErr error
			vec, embedErr = m.embedder.Embed(ctx, b.Summary)
			if embedErr != nil {
				continue
			}
		}
		score := store.CosineSimilarity(vec, qvec)
		results = append(results, SearchResult{Block: b, Score: score})
	}

	sortResultsByScoreDesc(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func sortResultsByScoreDesc(results []SearchResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func currentOpen(blocks []*objects.CacheBlock) *objects.CacheBlock {
	if len(blocks) == 0 {
		return nil
	}
	last := blocks[len(blocks)-1]
	if last.Status == objects.BlockOpen {
		return last
	}
	return nil
}

func recomputeTokenCount(items []objects.CacheItem) int {
	total := 0
	for _, it := range items {
		total += EstimateTokens(it.Content)
	}
	return total
}

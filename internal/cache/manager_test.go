package cache

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-proto/amp/internal/embeddings"
	"github.com/amp-proto/amp/internal/objects"
	"github.com/amp-proto/amp/internal/store"
)

// fakeVectorProvider returns a deterministic vector per distinct text
// so cosine similarity behaves meaningfully in tests without a live
// embedding backend.
type fakeVectorProvider struct{}

func (fakeVectorProvider) Name() string      { return "fake" }
func (fakeVectorProvider) Dimension() int    { return 3 }
func (fakeVectorProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vectorFor(t)
	}
	return out, nil
}

// vectorFor buckets text into one of three near-orthogonal directions
// by a crude keyword check, so related strings land close together and
// unrelated ones don't.
func vectorFor(t string) []float32 {
	switch {
	case strings.Contains(t, "timeout"):
		return []float32{1, 0.05, 0}
	case strings.Contains(t, "retry"):
		return []float32{0, 1, 0.05}
	default:
		return []float32{0, 0.05, 1}
	}
}

func newTestManager(withEmbedder bool) *Manager {
	st := store.NewMemoryStore(nil)
	var adapter *embeddings.Adapter
	if withEmbedder {
		adapter = embeddings.NewAdapter(fakeVectorProvider{}, 4, 0)
	}
	return NewManager(st, adapter)
}

func TestAppendCreatesOpenBlockOnFirstWrite(t *testing.T) {
	m := newTestManager(false)
	block, err := m.Append(context.Background(), "task:1", "t1", "p1", objects.CacheItem{
		Kind: objects.CacheItemFact, Content: "connection retried after timeout", Importance: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, block.Sequence)
	assert.Equal(t, objects.BlockOpen, block.Status)
	assert.Len(t, block.Items, 1)

	current := m.GetCurrent("task:1")
	require.NotNil(t, current)
	assert.Equal(t, block.ID, current.ID)
}

func TestAppendMergesSemanticDuplicates(t *testing.T) {
	m := newTestManager(false)
	ctx := context.Background()

	_, err := m.Append(ctx, "task:2", "t1", "p1", objects.CacheItem{
		Kind: objects.CacheItemWarning, Content: "retries failing", Importance: 0.3,
		Embedding: []float32{1, 0, 0},
	})
	require.NoError(t, err)

	block, err := m.Append(ctx, "task:2", "t1", "p1", objects.CacheItem{
		Kind: objects.CacheItemWarning, Content: "retries failing harder", Importance: 0.9,
		Embedding: []float32{0.99, 0.01, 0},
	})
	require.NoError(t, err)

	require.Len(t, block.Items, 1, "near-duplicate item must merge, not append (invariant 10)")
	assert.Equal(t, 0.9, block.Items[0].Importance, "merge prefers the higher importance")
	assert.Contains(t, block.Items[0].Content, "retries failing")
	assert.Contains(t, block.Items[0].Content, "retries failing harder")
}

func TestAppendKeepsDistinctItemsSeparate(t *testing.T) {
	m := newTestManager(false)
	ctx := context.Background()

	_, err := m.Append(ctx, "task:3", "t1", "p1", objects.CacheItem{
		Content: "unrelated fact one", Importance: 0.2, Embedding: []float32{1, 0, 0},
	})
	require.NoError(t, err)
	block, err := m.Append(ctx, "task:3", "t1", "p1", objects.CacheItem{
		Content: "unrelated fact two", Importance: 0.2, Embedding: []float32{0, 1, 0},
	})
	require.NoError(t, err)

	assert.Len(t, block.Items, 2)
}

// TestAppendAutoClosesOnTokenBudget mirrors the append-until-1800-tokens
// scenario: repeated writes of ~90-token items should cross
// AutoCloseTokens and produce exactly one closed block plus a fresh
// open one, with a non-empty summary on the closed block.
func TestAppendAutoClosesOnTokenBudget(t *testing.T) {
	m := newTestManager(false)
	ctx := context.Background()

	ninetyTokenContent := strings.Repeat("word ", 72) // ~360 chars -> ~90 tokens
	var lastBlock *objects.CacheBlock
	for i := 0; i < 21; i++ { // 21 * ~90 tokens > 1800
		var err error
		lastBlock, err = m.Append(ctx, "task:4", "t1", "p1", objects.CacheItem{
			Content:    ninetyTokenContent + " " + string(rune('a'+i)),
			Importance: 0.1,
		})
		require.NoError(t, err)
	}

	blocks := m.List("task:4", 0)
	require.Len(t, blocks, 2, "crossing the token budget must close exactly one block and open a fresh one")

	closed := blocks[1] // list is sequence-descending; oldest is last
	assert.Equal(t, objects.BlockClosed, closed.Status)
	assert.NotEmpty(t, closed.Summary)

	open := blocks[0]
	assert.Equal(t, objects.BlockOpen, open.Status)
	assert.LessOrEqual(t, len(open.Items), 1)
}

// TestCompactEvictsOldestBlockPastCap drives enough compacts to push a
// scope well past MaxBlocksPerScope and checks the invariants eviction
// must preserve: the block count never exceeds the cap, and the
// surviving sequence numbers form a contiguous range (§8 invariants 3
// and 4), with the oldest ones gone.
func TestCompactEvictsOldestBlockPastCap(t *testing.T) {
	m := newTestManager(false)
	ctx := context.Background()

	rounds := MaxBlocksPerScope + 5
	for i := 0; i < rounds; i++ {
		_, err := m.Append(ctx, "task:5", "t1", "p1", objects.CacheItem{Content: "filler", Importance: 0.1})
		require.NoError(t, err)
		require.NoError(t, m.Compact(ctx, "task:5", "t1", "p1"))
	}

	blocks := m.List("task:5", 0)
	require.LessOrEqual(t, len(blocks), MaxBlocksPerScope, "eviction must keep the scope at or under the cap")

	seqs := make([]int, len(blocks))
	for i, b := range blocks {
		seqs[i] = b.Sequence // descending, per List's contract
	}
	for i := 1; i < len(seqs); i++ {
		assert.Equal(t, seqs[i-1]-1, seqs[i], "surviving sequences must stay contiguous after eviction")
	}
	assert.Greater(t, seqs[len(seqs)-1], 1, "earlier sequences must have been evicted")
}

func TestCompactIsNoOpWithoutAnOpenBlock(t *testing.T) {
	m := newTestManager(false)
	assert.NoError(t, m.Compact(context.Background(), "task:6", "t1", "p1"))
	assert.Empty(t, m.List("task:6", 0))
}

func TestGetFindsBlockAcrossScopes(t *testing.T) {
	m := newTestManager(false)
	ctx := context.Background()
	block, err := m.Append(ctx, "task:7", "t1", "p1", objects.CacheItem{Content: "x", Importance: 0.1})
	require.NoError(t, err)

	found, err := m.Get(block.ID)
	require.NoError(t, err)
	assert.Equal(t, block.ID, found.ID)

	_, err = m.Get("does-not-exist")
	assert.Error(t, err)
}

func TestSearchRanksByEmbeddingSimilarity(t *testing.T) {
	m := newTestManager(true)
	ctx := context.Background()

	_, err := m.Append(ctx, "task:8", "t1", "p1", objects.CacheItem{Content: "connection timeout observed", Importance: 0.5})
	require.NoError(t, err)
	require.NoError(t, m.Compact(ctx, "task:8", "t1", "p1"))

	_, err = m.Append(ctx, "task:8", "t1", "p1", objects.CacheItem{Content: "retry backoff tuned", Importance: 0.5})
	require.NoError(t, err)
	require.NoError(t, m.Compact(ctx, "task:8", "t1", "p1"))

	results, err := m.Search(ctx, "task:8", "why did the timeout happen", 1, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Block.Summary, "timeout")
}

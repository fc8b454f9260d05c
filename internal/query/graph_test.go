package query

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-proto/amp/internal/objects"
	"github.com/amp-proto/amp/internal/store"
)

// putSymbol stores a minimal Symbol and returns its id.
func putSymbol(t *testing.T, st store.ObjectStore, name string) string {
	t.Helper()
	env := objects.NewEnvelope(objects.TypeSymbol, "t1", "p1", objects.Provenance{Agent: "test"})
	sym := &objects.Symbol{Envelope: env, Name: name, Kind: string(objects.SymbolKindFunction), Path: "pkg.go"}
	require.NoError(t, st.Put(context.Background(), &sym.Envelope, sym))
	return sym.ID
}

func link(t *testing.T, st store.ObjectStore, from, to string) {
	t.Helper()
	require.NoError(t, st.PutRelationship(context.Background(), &objects.Relationship{
		ID: uuid.New().String(), SourceID: from, Type: objects.RelCalls, TargetID: to,
	}))
}

// buildChain constructs the A -> B -> C -> D `calls` chain from the
// multi-hop traversal scenario and returns the ids in order.
func buildChain(t *testing.T) (store.ObjectStore, []string) {
	st := store.NewMemoryStore(nil)
	a := putSymbol(t, st, "A")
	b := putSymbol(t, st, "B")
	c := putSymbol(t, st, "C")
	d := putSymbol(t, st, "D")
	link(t, st, a, b)
	link(t, st, b, c)
	link(t, st, c, d)
	return st, []string{a, b, c, d}
}

func TestGraphCollectReturnsReachableNodesExcludingSeed(t *testing.T) {
	st, ids := buildChain(t)
	a, b, c, d := ids[0], ids[1], ids[2], ids[3]

	hits, err := runGraph(context.Background(), st, GraphOptions{
		Seeds: []string{a}, Direction: objects.DirectionOutbound,
		RelationTypes: []objects.RelationType{objects.RelCalls}, Depth: 3, Algorithm: AlgorithmCollect,
	})
	require.NoError(t, err)

	got := make(map[string]bool, len(hits))
	for _, h := range hits {
		got[h.Record.Envelope.ID] = true
	}
	assert.Equal(t, map[string]bool{b: true, c: true, d: true}, got)
}

func TestGraphPathIncludesFullChain(t *testing.T) {
	st, ids := buildChain(t)
	a, b, c, d := ids[0], ids[1], ids[2], ids[3]

	hits, err := runGraph(context.Background(), st, GraphOptions{
		Seeds: []string{a}, Direction: objects.DirectionOutbound,
		RelationTypes: []objects.RelationType{objects.RelCalls}, Depth: 3, Algorithm: AlgorithmPath,
	})
	require.NoError(t, err)

	found := false
	for _, h := range hits {
		if len(h.Path) != 4 {
			continue
		}
		if h.Path[0].Envelope.ID == a && h.Path[1].Envelope.ID == b && h.Path[2].Envelope.ID == c && h.Path[3].Envelope.ID == d {
			found = true
		}
	}
	assert.True(t, found, "expected the full path [A,B,C,D] among the returned paths")
}

func TestGraphShortestFindsTargetExactly(t *testing.T) {
	st, ids := buildChain(t)
	a, b, c, d := ids[0], ids[1], ids[2], ids[3]

	hits, err := runGraph(context.Background(), st, GraphOptions{
		Seeds: []string{a}, Direction: objects.DirectionOutbound,
		RelationTypes: []objects.RelationType{objects.RelCalls}, Depth: 3,
		Algorithm: AlgorithmShortest, Target: d,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Len(t, hits[0].Path, 4)
	assert.Equal(t, []string{a, b, c, d}, []string{
		hits[0].Path[0].Envelope.ID, hits[0].Path[1].Envelope.ID,
		hits[0].Path[2].Envelope.ID, hits[0].Path[3].Envelope.ID,
	})
}

func TestGraphShortestFailsForUnreachableTarget(t *testing.T) {
	st, ids := buildChain(t)
	a := ids[0]

	_, err := runGraph(context.Background(), st, GraphOptions{
		Seeds: []string{a}, Direction: objects.DirectionOutbound,
		RelationTypes: []objects.RelationType{objects.RelCalls}, Depth: 3,
		Algorithm: AlgorithmShortest, Target: "does-not-exist",
	})
	require.Error(t, err)
}

func TestGraphDepthZeroReturnsSeeds(t *testing.T) {
	st, ids := buildChain(t)
	a := ids[0]

	hits, err := runGraph(context.Background(), st, GraphOptions{Seeds: []string{a}, Depth: 0, Algorithm: AlgorithmCollect})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, a, hits[0].Record.Envelope.ID)
}

func TestGraphDepthAboveTenIsRejected(t *testing.T) {
	st, ids := buildChain(t)
	_, err := runGraph(context.Background(), st, GraphOptions{Seeds: []string{ids[0]}, Depth: 11, Algorithm: AlgorithmCollect})
	assert.Error(t, err)
}

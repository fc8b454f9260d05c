package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-proto/amp/internal/objects"
	"github.com/amp-proto/amp/internal/store"
)

func recordFor(t *testing.T, typ objects.Type, variant interface{}) *store.Record {
	t.Helper()
	env := objects.NewEnvelope(typ, "t1", "p1", objects.Provenance{Agent: "test"})
	switch v := variant.(type) {
	case *objects.Symbol:
		v.Envelope = env
	case *objects.FileChunk:
		v.Envelope = env
	case *objects.FileLog:
		v.Envelope = env
	}
	return &store.Record{Envelope: &env, Variant: variant}
}

func TestLexicalUpsertAndSearchRanksByFieldWeight(t *testing.T) {
	lex, err := NewLexicalIndex()
	require.NoError(t, err)

	bySignature := &objects.Symbol{Name: "helper", Signature: "func parseConfig() error", Path: "config.go"}
	byName := &objects.Symbol{Name: "parseConfig", Signature: "func helper()", Path: "other.go"}

	recSig := recordFor(t, objects.TypeSymbol, bySignature)
	recName := recordFor(t, objects.TypeSymbol, byName)
	require.NoError(t, lex.Upsert(context.Background(), recSig))
	require.NoError(t, lex.Upsert(context.Background(), recName))

	hits, err := lex.Search(context.Background(), "parseConfig", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	// "name" carries a higher weight than "signature", so the symbol
	// named parseConfig should outrank the one that merely mentions it
	// in its signature.
	assert.Equal(t, recName.Envelope.ID, hits[0].ID)
}

func TestLexicalSearchMatchesAcrossVariantFields(t *testing.T) {
	lex, err := NewLexicalIndex()
	require.NoError(t, err)

	log := &objects.FileLog{FilePath: "internal/cache/manager.go", Summary: "episodic cache block lifecycle", KeySymbols: []string{"Append", "Compact"}}
	rec := recordFor(t, objects.TypeNote, log)
	require.NoError(t, lex.Upsert(context.Background(), rec))

	hits, err := lex.Search(context.Background(), "episodic cache", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, rec.Envelope.ID, hits[0].ID)
}

func TestLexicalDeleteRemovesDocument(t *testing.T) {
	lex, err := NewLexicalIndex()
	require.NoError(t, err)

	chunk := &objects.FileChunk{ParentPath: "main.go", Content: "package main func main() {}"}
	rec := recordFor(t, objects.TypeNote, chunk)
	require.NoError(t, lex.Upsert(context.Background(), rec))

	hits, err := lex.Search(context.Background(), "package main", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	require.NoError(t, lex.Delete(context.Background(), rec.Envelope.ID))
	hits, err = lex.Search(context.Background(), "package main", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLexicalSearchEmptyQueryReturnsNoHits(t *testing.T) {
	lex, err := NewLexicalIndex()
	require.NoError(t, err)
	hits, err := lex.Search(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

package query

import (
	"context"

	"github.com/blevesearch/bleve/v2"

	"github.com/amp-proto/amp/internal/objects"
	"github.com/amp-proto/amp/internal/store"
)

// fieldWeights gives each indexed field its relative importance in the
// per-field weighted scan §4.2 requires ("a simple per-field weighted
// scan is sufficient; the contract requires stability, not a specific
// IR formula").
var fieldWeights = map[string]float64{
	"name":          3,
	"title":         3,
	"signature":     2,
	"summary":       2,
	"key_symbols":   1.5,
	"documentation": 1,
	"path":          1,
	"content":       1,
	"body":          1,
}

// LexicalIndex is the C5 full-text retrieval layer: a bleve index over
// the per-variant text fields §4.2 names. It is a derived index, not a
// system of record — every document can be rebuilt from the C2 store.
type LexicalIndex struct {
	index bleve.Index
}

// NewLexicalIndex builds an in-memory bleve index. The episodic cache
// and object store persist the objects themselves; this index only
// ever needs to survive for the life of the process, rebuilt from
// C2 on restart by callers re-indexing their corpus.
func NewLexicalIndex() (*LexicalIndex, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &LexicalIndex{index: idx}, nil
}

// Upsert (re)indexes the text fields of a single record.
func (l *LexicalIndex) Upsert(ctx context.Context, rec *store.Record) error {
	fields := fieldsFor(rec)
	if len(fields) == 0 {
		return nil
	}
	return l.index.Index(rec.Envelope.ID, fields)
}

// Delete removes id from the index.
func (l *LexicalIndex) Delete(ctx context.Context, id string) error {
	return l.index.Delete(id)
}

// Search runs a per-field weighted match against queryText and returns
// the topK matches as (id, raw bleve score) pairs.
func (l *LexicalIndex) Search(ctx context.Context, queryText string, topK int) ([]store.ScoredID, error) {
	if queryText == "" {
		return nil, nil
	}
	disjunction := bleve.NewDisjunctionQuery()
	for field, weight := range fieldWeights {
		mq := bleve.NewMatchQuery(queryText)
		mq.SetField(field)
		mq.SetBoost(weight)
		disjunction.AddQuery(mq)
	}

	req := bleve.NewSearchRequest(disjunction)
	req.Size = topK
	if topK <= 0 {
		req.Size = 50
	}

	res, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make([]store.ScoredID, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, store.ScoredID{ID: hit.ID, Score: hit.Score})
	}
	return out, nil
}

// fieldsFor extracts the text fields §4.2 names for each object
// variant. Object kinds with no prescribed text fields return nil and
// are skipped (not indexed for lexical retrieval).
func fieldsFor(rec *store.Record) map[string]interface{} {
	out := map[string]interface{}{}
	switch v := rec.Variant.(type) {
	case *objects.Symbol:
		out["name"] = v.Name
		out["signature"] = v.Signature
		out["documentation"] = v.Documentation
		out["path"] = v.Path
	case *objects.FileChunk:
		out["content"] = v.Content
		out["path"] = v.ParentPath
	case *objects.FileLog:
		out["summary"] = v.Summary
		out["key_symbols"] = joinStrings(v.KeySymbols)
		out["path"] = v.FilePath
	case *objects.Decision:
		out["title"] = v.Title
		out["body"] = v.Context + " " + v.DecisionText + " " + v.Consequences
	case *objects.Note:
		out["title"] = v.Title
		out["body"] = v.Content
	case *objects.ChangeSet:
		out["title"] = v.Title
		out["body"] = v.Description + " " + v.DiffSummary
	default:
		return nil
	}
	return out
}

func joinStrings(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}

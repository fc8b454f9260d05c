// Package query implements the C5 hybrid query engine: lexical,
// vector, and graph retrieval fused by Reciprocal Rank Fusion (§4.2).
package query

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/amp-proto/amp/internal/embeddings"
	"github.com/amp-proto/amp/internal/logging"
	"github.com/amp-proto/amp/internal/objects"
	"github.com/amp-proto/amp/internal/store"
)

// Mode selects which retrieval streams a query runs.
type Mode string

const (
	ModeHybrid Mode = "hybrid"
	ModeText   Mode = "text"
	ModeVector Mode = "vector"
	ModeGraph  Mode = "graph"
)

const (
	defaultLimit = 5
	maxLimit     = 50
)

// Filter narrows results by the structured dimensions §4.2 names.
// There is no first-class tag field in the object model (§3), so Tags
// matches as a case-insensitive substring against each candidate's
// EmbeddingText.
type Filter struct {
	Type       objects.Type
	ProjectID  string
	TenantID   string
	PathPrefix string
	Tags       []string
	TimeFrom   time.Time
	TimeTo     time.Time
}

// Request is one query(request) call.
type Request struct {
	Query  string
	Mode   Mode
	Filter Filter
	Graph  *GraphOptions
	Limit  int
}

// Result is one ranked hit.
type Result struct {
	Record      *store.Record
	Score       float64
	Explanation string
	Path        []*store.Record
}

// Engine orchestrates the three retrieval streams and their fusion.
type Engine struct {
	store    store.ObjectStore
	lexical  *LexicalIndex
	embedder *embeddings.Adapter
	log      logging.Logger
}

// NewEngine wires an Engine to its dependencies. lexical or embedder
// may be nil; the corresponding stream then degrades to empty per
// §4.2's fallback rule.
func NewEngine(st store.ObjectStore, lexical *LexicalIndex, embedder *embeddings.Adapter) *Engine {
	return &Engine{store: st, lexical: lexical, embedder: embedder, log: logging.WithComponent("query")}
}

// Query executes req and returns ranked, filtered results.
func (e *Engine) Query(ctx context.Context, req Request) ([]Result, error) {
	mode := req.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	select {
	case <-ctx.Done():
		return nil, amperrors.Cancelled("query")
	default:
	}

	switch mode {
	case ModeGraph:
		return e.queryGraph(ctx, req, limit)
	case ModeText:
		hits := e.textSearch(ctx, req.Query, limit)
		return e.finish(ctx, map[string][]store.ScoredID{"text": hits}, req.Filter, limit), nil
	case ModeVector:
		hits := vectorSearch(ctx, e.store, e.embedder, e.log, req.Query, limit*4)
		return e.finish(ctx, map[string][]store.ScoredID{"vector": hits}, req.Filter, limit), nil
	default:
		return e.queryHybrid(ctx, req, limit)
	}
}

// queryHybrid runs the text and vector streams concurrently, joining
// them before ranking — and folds in a graph stream too when the
// caller supplied GraphOptions — per §4.2's concurrency requirement.
func (e *Engine) queryHybrid(ctx context.Context, req Request, limit int) ([]Result, error) {
	overfetch := limit * 4
	streams := make(map[string][]store.ScoredID)
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		hits := e.textSearch(ctx, req.Query, overfetch)
		mu.Lock()
		streams["text"] = hits
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		hits := vectorSearch(ctx, e.store, e.embedder, e.log, req.Query, overfetch)
		mu.Lock()
		streams["vector"] = hits
		mu.Unlock()
	}()

	if req.Graph != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			graphHits, err := runGraph(ctx, e.store, *req.Graph)
			if err != nil {
				e.log.Debug("graph stream skipped", "error", err.Error())
				return
			}
			scored := make([]store.ScoredID, len(graphHits))
			for i, h := range graphHits {
				scored[i] = store.ScoredID{ID: h.Record.Envelope.ID, Score: 1}
			}
			mu.Lock()
			streams["graph"] = scored
			mu.Unlock()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return nil, amperrors.Cancelled("query")
	case <-done:
	}

	return e.finish(ctx, streams, req.Filter, limit), nil
}

func (e *Engine) textSearch(ctx context.Context, queryText string, topK int) []store.ScoredID {
	if e.lexical == nil {
		e.log.Debug("text retrieval skipped: no lexical index configured")
		return nil
	}
	hits, err := e.lexical.Search(ctx, queryText, topK)
	if err != nil {
		e.log.Warn("text retrieval failed", "error", err.Error())
		return nil
	}
	return hits
}

// finish fuses streams via RRF, fetches and filters the underlying
// records, and truncates to limit.
func (e *Engine) finish(ctx context.Context, streams map[string][]store.ScoredID, filter Filter, limit int) []Result {
	scores, explain := fuse(streams)

	records := make(map[string]*store.Record, len(scores))
	createdAt := make(map[string]int64, len(scores))
	for id := range scores {
		rec, err := e.store.Get(ctx, id)
		if err != nil {
			continue
		}
		if !matchesFilter(rec, filter) {
			continue
		}
		records[id] = rec
		createdAt[id] = rec.Envelope.CreatedAt.Unix()
	}

	kept := make(map[string]float64, len(records))
	for id := range records {
		kept[id] = scores[id]
	}
	ordered := rankedIDs(kept, createdAt)

	out := make([]Result, 0, limit)
	for _, id := range ordered {
		if len(out) >= limit {
			break
		}
		out = append(out, Result{
			Record:      records[id],
			Score:       scores[id],
			Explanation: explainString(explain[id]),
		})
	}
	return out
}

// queryGraph runs a standalone graph-mode query: results are not fused
// with other streams, and each carries its traversal path.
func (e *Engine) queryGraph(ctx context.Context, req Request, limit int) ([]Result, error) {
	if req.Graph == nil {
		return nil, amperrors.ValidationMsg("graph mode requires graph options")
	}
	hits, err := runGraph(ctx, e.store, *req.Graph)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		if !matchesFilter(h.Record, req.Filter) {
			continue
		}
		out = append(out, Result{
			Record:      h.Record,
			Score:       1,
			Explanation: fmt.Sprintf("graph:%s", req.Graph.Algorithm),
			Path:        h.Path,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func explainString(ranks []streamRank) string {
	parts := make([]string, len(ranks))
	for i, r := range ranks {
		parts[i] = fmt.Sprintf("%s:%.3f", r.name, r.score)
	}
	return strings.Join(parts, ", ")
}

func matchesFilter(rec *store.Record, f Filter) bool {
	if f.Type != "" && rec.Envelope.Type != f.Type {
		return false
	}
	if f.ProjectID != "" && rec.Envelope.ProjectID != f.ProjectID {
		return false
	}
	if f.TenantID != "" && rec.Envelope.TenantID != f.TenantID {
		return false
	}
	if f.PathPrefix != "" && !strings.HasPrefix(pathOf(rec.Variant), f.PathPrefix) {
		return false
	}
	if !f.TimeFrom.IsZero() && rec.Envelope.CreatedAt.Before(f.TimeFrom) {
		return false
	}
	if !f.TimeTo.IsZero() && rec.Envelope.CreatedAt.After(f.TimeTo) {
		return false
	}
	for _, tag := range f.Tags {
		text, ok := rec.Variant.(objects.ObjectWithText)
		if !ok || !strings.Contains(strings.ToLower(text.EmbeddingText()), strings.ToLower(tag)) {
			return false
		}
	}
	return true
}

func pathOf(variant interface{}) string {
	switch v := variant.(type) {
	case *objects.Symbol:
		return v.Path
	case *objects.FileChunk:
		return v.ParentPath
	case *objects.FileLog:
		return v.FilePath
	default:
		return ""
	}
}

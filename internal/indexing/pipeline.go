// Package indexing implements the C3 indexing pipeline: per-file
// symbol extraction, overlap-based chunking, incremental reuse by
// content hash, and FileLog lifecycle maintenance, batch-submitted to
// the object store behind a bounded worker pool.
package indexing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/amp-proto/amp/internal/embeddings"
	"github.com/amp-proto/amp/internal/logging"
	"github.com/amp-proto/amp/internal/objects"
	"github.com/amp-proto/amp/internal/store"
)

// extsByLanguage is extToLanguage inverted, used to guess the file
// extension a bare import path resolves to when matching depends_on
// targets against indexed file nodes.
var extsByLanguage = func() map[string][]string {
	out := make(map[string][]string, len(extToLanguage))
	for ext, lang := range extToLanguage {
		out[lang] = append(out[lang], ext)
	}
	return out
}()

// keySymbolPriority ranks kinds for FileLog.KeySymbols selection, per
// §4.4 step 7: "top-N by kind priority: class, interface, function,
// method".
var keySymbolPriority = map[string]int{
	"class":     0,
	"interface": 1,
	"function":  2,
	"method":    3,
}

const keySymbolTopN = 10

// Config configures one pipeline Run.
type Config struct {
	RootPath       string
	TenantID       string
	ProjectID      string
	Agent          string
	Workers        int
	ExcludeDirs    []string
	UseGitignore   bool
	MaxChunkTokens int
	OverlapTokens  int
}

// Progress is the global run counters reported per §4.4's "Parallelism"
// clause: "files done, symbols created, chunks created, errors".
type Progress struct {
	FilesDone      int64
	SymbolsCreated int64
	ChunksCreated  int64
	Errors         int64
}

// FileError records one isolated per-file failure; per-file failures
// never abort the run (§4.4 Parallelism).
type FileError struct {
	Path string
	Err  error
}

// Pipeline drives the indexing procedure over a file tree.
type Pipeline struct {
	store    store.ObjectStore
	embedder *embeddings.Adapter
	parser   SymbolParser
	chunker  *Chunker
	log      logging.Logger

	progress Progress
	mu       sync.Mutex
	errs     []FileError

	// nodeMu/nodeCache serialize and memoize the project/directory
	// container nodes created by ensureContainmentChain, so concurrent
	// workers indexing files under the same directory reuse one node
	// instead of racing to create duplicates.
	nodeMu    sync.Mutex
	nodeCache map[string]string
}

// NewPipeline wires a Pipeline against the store, embedding adapter and
// symbol parser the rest of the module already constructed.
func NewPipeline(objStore store.ObjectStore, embedder *embeddings.Adapter, parser SymbolParser) *Pipeline {
	return &Pipeline{
		store:     objStore,
		embedder:  embedder,
		parser:    parser,
		chunker:   NewChunker(DefaultMaxChunkTokens, DefaultOverlapTokens),
		log:       logging.WithComponent("indexing"),
		nodeCache: make(map[string]string),
	}
}

// Run walks cfg.RootPath and indexes every recognized file through a
// bounded worker pool, returning the aggregate progress.
func (p *Pipeline) Run(ctx context.Context, cfg Config) (*Progress, []FileError, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxChunkTokens > 0 || cfg.OverlapTokens > 0 {
		p.chunker = NewChunker(cfg.MaxChunkTokens, cfg.OverlapTokens)
	}

	excludes := append([]string{}, DefaultExcludeDirs...)
	excludes = append(excludes, cfg.ExcludeDirs...)
	ignore := NewIgnoreMatcher(nil)
	for _, d := range excludes {
		ignore.add(d + "/")
	}
	if cfg.UseGitignore {
		if err := ignore.LoadGitignore(cfg.RootPath); err != nil {
			p.log.Warn("failed to load .gitignore", "error", err.Error())
		}
	}

	paths := make(chan string, cfg.Workers*4)
	var wg sync.WaitGroup

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				select {
				case <-ctx.Done():
					continue
				default:
				}
				if err := p.IndexFile(ctx, cfg, path); err != nil {
					atomic.AddInt64(&p.progress.Errors, 1)
					p.mu.Lock()
					p.errs = append(p.errs, FileError{Path: path, Err: err})
					p.mu.Unlock()
					p.log.Warn("failed to index file", "path", path, "error", err.Error())
				}
				atomic.AddInt64(&p.progress.FilesDone, 1)
			}
		}()
	}

	walkErr := filepath.Walk(cfg.RootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(cfg.RootPath, path)
		if relErr != nil {
			rel = path
		}
		if info.IsDir() {
			if rel != "." && ignore.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if ignore.Match(rel, false) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case paths <- path:
		}
		return nil
	})
	close(paths)
	wg.Wait()

	if walkErr != nil && walkErr != context.Canceled {
		return &p.progress, p.errs, fmt.Errorf("indexing: walk %s: %w", cfg.RootPath, walkErr)
	}
	return &p.progress, p.errs, nil
}

// IndexFile runs the §4.4 "Procedure per file" for a single path.
func (p *Pipeline) IndexFile(ctx context.Context, cfg Config, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	language := LanguageForPath(path)
	if language == "" || looksBinary(content) {
		return nil
	}

	relPath, err := filepath.Rel(cfg.RootPath, path)
	if err != nil {
		relPath = path
	}
	relPath = filepath.ToSlash(relPath)

	fileHash := ContentHash(content)

	existingLog, existingSymbols, existingChunks, err := p.loadExisting(ctx, cfg, relPath)
	if err != nil {
		return fmt.Errorf("load existing state: %w", err)
	}
	if existingFileNode := findFileNode(existingSymbols); existingFileNode != nil && existingFileNode.ContentHash == fileHash {
		return nil // unchanged, per §4.4 "Change detection"
	}

	var parsed []ParsedSymbol
	if p.parser != nil && p.parser.Supports(language) {
		parsed, err = p.parser.Parse(ctx, content, language)
		if err != nil {
			p.log.Warn("symbol parse failed, continuing with chunks only", "path", relPath, "error", err.Error())
			parsed = nil
		}
	}

	prov := objects.Provenance{Agent: cfg.Agent, Summary: "indexed by the C3 pipeline"}

	fileSymbolEnv := objects.NewEnvelope(objects.TypeSymbol, cfg.TenantID, cfg.ProjectID, prov)
	fileSymbol := &objects.Symbol{
		Envelope:    fileSymbolEnv,
		Name:        filepath.Base(relPath),
		Kind:        string(objects.SymbolKindFile),
		Path:        relPath,
		Language:    language,
		ContentHash: fileHash,
	}

	items := []store.PutItem{{Envelope: &fileSymbol.Envelope, Variant: fileSymbol}}
	symbolIDs := make([]string, 0, len(parsed))

	for _, ps := range parsed {
		env := objects.NewEnvelope(objects.TypeSymbol, cfg.TenantID, cfg.ProjectID, prov)
		env.Edges = []objects.Edge{{Type: objects.RelDefinedIn, TargetID: fileSymbol.ID}}
		sym := &objects.Symbol{
			Envelope:      env,
			Name:          ps.Name,
			Kind:          ps.Kind,
			Path:          relPath,
			Language:      language,
			Signature:     ps.Signature,
			Documentation: ps.Documentation,
		}
		items = append(items, store.PutItem{Envelope: &sym.Envelope, Variant: sym})
		symbolIDs = append(symbolIDs, sym.ID)
	}

	newChunkSpecs := p.chunker.Chunk(string(content))
	reusable := make(map[string]*objects.FileChunk, len(existingChunks))
	for _, c := range existingChunks {
		reusable[c.ContentHash] = c
	}

	keepChunkIDs := make(map[string]struct{}, len(newChunkSpecs))
	chunksCreated := 0
	for i, spec := range newChunkSpecs {
		if old, ok := reusable[spec.ContentHash]; ok {
			keepChunkIDs[old.ID] = struct{}{}
			continue // incremental reuse, §4.4 step 6: no new embedding
		}
		env := objects.NewEnvelope(objects.TypeFileChunk, cfg.TenantID, cfg.ProjectID, prov)
		chunk := &objects.FileChunk{
			Envelope:    env,
			ParentPath:  relPath,
			ChunkIndex:  i,
			StartLine:   spec.StartLine,
			EndLine:     spec.EndLine,
			TokenCount:  spec.TokenCount,
			Content:     spec.Content,
			Language:    language,
			ContentHash: spec.ContentHash,
		}
		items = append(items, store.PutItem{Envelope: &chunk.Envelope, Variant: chunk})
		keepChunkIDs[chunk.ID] = struct{}{}
		chunksCreated++
	}

	for _, old := range existingChunks {
		if _, keep := keepChunkIDs[old.ID]; !keep {
			if err := p.store.Delete(ctx, old.ID); err != nil {
				p.log.Warn("failed to delete orphan chunk", "chunk_id", old.ID, "error", err.Error())
			}
		}
	}

	for _, old := range existingSymbols {
		if old.Kind == string(objects.SymbolKindFile) {
			continue
		}
		if err := p.store.Delete(ctx, old.ID); err != nil {
			p.log.Warn("failed to delete stale symbol", "symbol_id", old.ID, "error", err.Error())
		}
	}

	fileLog := p.buildFileLog(existingLog, cfg, relPath, fileHash, parsed, prov)
	items = append(items, store.PutItem{Envelope: &fileLog.Envelope, Variant: fileLog})

	p.attachEmbeddings(ctx, items)

	if _, err := p.store.PutBatch(ctx, items); err != nil {
		return fmt.Errorf("put_batch: %w", err)
	}
	atomic.AddInt64(&p.progress.SymbolsCreated, int64(len(parsed)+1))
	atomic.AddInt64(&p.progress.ChunksCreated, int64(chunksCreated))

	for _, targetID := range symbolIDs {
		if err := p.store.PutRelationship(ctx, &objects.Relationship{
			ID:        uuid.New().String(),
			SourceID:  fileSymbol.ID,
			Type:      objects.RelContains,
			TargetID:  targetID,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			p.log.Warn("failed to record contains edge", "error", err.Error())
		}
		if err := p.store.PutRelationship(ctx, &objects.Relationship{
			ID:        uuid.New().String(),
			SourceID:  targetID,
			Type:      objects.RelDefinedIn,
			TargetID:  fileSymbol.ID,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			p.log.Warn("failed to record defined_in edge", "error", err.Error())
		}
	}

	if err := p.ensureContainmentChain(ctx, cfg, relPath, fileSymbol.ID); err != nil {
		p.log.Warn("failed to record containment chain", "path", relPath, "error", err.Error())
	}
	p.recordDependsOn(ctx, cfg, fileSymbol.ID, relPath, language, extractDependencies(parsed))

	return nil
}

// ensureContainmentChain wires the project → directory → file-node
// "contains" edge chain (§4.4 step 8), creating the project node and
// any intermediate directory nodes on first encounter and reusing them
// on every later file under the same tree.
func (p *Pipeline) ensureContainmentChain(ctx context.Context, cfg Config, relPath, fileSymbolID string) error {
	projectID, err := p.ensureContainerNode(ctx, cfg, "", objects.SymbolKindProject, cfg.ProjectID)
	if err != nil {
		return err
	}

	parent := projectID
	dir := filepath.Dir(relPath)
	if dir != "." && dir != "" {
		var acc string
		for _, seg := range strings.Split(dir, "/") {
			if acc == "" {
				acc = seg
			} else {
				acc = acc + "/" + seg
			}
			dirID, err := p.ensureContainerNode(ctx, cfg, acc, objects.SymbolKindDirectory, seg)
			if err != nil {
				return err
			}
			if err := p.putContainsEdge(ctx, parent, dirID); err != nil {
				return err
			}
			parent = dirID
		}
	}

	return p.putContainsEdge(ctx, parent, fileSymbolID)
}

// ensureContainerNode returns the id of the project/directory symbol
// node at path, creating it if this is the first file seen under it.
// The whole check-then-create sequence runs under nodeMu so concurrent
// workers sharing a directory never create two nodes for the same path.
func (p *Pipeline) ensureContainerNode(ctx context.Context, cfg Config, path string, kind objects.SymbolKind, name string) (string, error) {
	cacheKey := cfg.TenantID + "|" + cfg.ProjectID + "|" + string(kind) + "|" + path

	p.nodeMu.Lock()
	defer p.nodeMu.Unlock()

	if id, ok := p.nodeCache[cacheKey]; ok {
		return id, nil
	}

	records, err := p.store.List(ctx, store.Filter{Type: objects.TypeSymbol, ProjectID: cfg.ProjectID, TenantID: cfg.TenantID, Path: path}, 0)
	if err != nil {
		return "", err
	}
	for _, r := range records {
		if s, ok := r.Variant.(*objects.Symbol); ok && s.Kind == string(kind) {
			p.nodeCache[cacheKey] = s.ID
			return s.ID, nil
		}
	}

	env := objects.NewEnvelope(objects.TypeSymbol, cfg.TenantID, cfg.ProjectID, objects.Provenance{Agent: cfg.Agent, Summary: "indexed by the C3 pipeline"})
	sym := &objects.Symbol{Envelope: env, Name: name, Kind: string(kind), Path: path}
	if err := p.store.Put(ctx, &sym.Envelope, sym); err != nil {
		return "", err
	}
	p.nodeCache[cacheKey] = sym.ID
	return sym.ID, nil
}

func (p *Pipeline) putContainsEdge(ctx context.Context, sourceID, targetID string) error {
	if sourceID == targetID {
		return nil
	}
	return p.store.PutRelationship(ctx, &objects.Relationship{
		ID:        uuid.New().String(),
		SourceID:  sourceID,
		Type:      objects.RelContains,
		TargetID:  targetID,
		CreatedAt: time.Now().UTC(),
	})
}

// recordDependsOn creates a depends_on edge from the file to each
// import that resolves to a known indexed file (§4.4 step 8). Imports
// that don't resolve to anything in the store are silently skipped —
// depends_on only tracks edges to files AMP actually knows about.
func (p *Pipeline) recordDependsOn(ctx context.Context, cfg Config, fileSymbolID, relPath, language string, deps []string) {
	for _, dep := range deps {
		targetID, ok, err := p.resolveDependency(ctx, cfg, relPath, language, dep)
		if err != nil {
			p.log.Warn("dependency resolution failed", "dependency", dep, "error", err.Error())
			continue
		}
		if !ok {
			continue
		}
		if err := p.store.PutRelationship(ctx, &objects.Relationship{
			ID:        uuid.New().String(),
			SourceID:  fileSymbolID,
			Type:      objects.RelDependsOn,
			TargetID:  targetID,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			p.log.Warn("failed to record depends_on edge", "dependency", dep, "error", err.Error())
		}
	}
}

// resolveDependency tries to match an import string against a known
// file-node symbol: first as a project-root-relative path, then as a
// path relative to the importing file's directory, trying each
// extension registered for language since import strings are usually
// extension-less. Dotted module names (a.b.c) are read as a/b/c;
// relative imports starting with "." are kept as paths.
func (p *Pipeline) resolveDependency(ctx context.Context, cfg Config, relPath, language, dep string) (string, bool, error) {
	if dep == "" {
		return "", false, nil
	}
	if !strings.HasPrefix(dep, ".") {
		dep = strings.ReplaceAll(dep, ".", "/")
	}

	candidates := []string{dep}
	if strings.HasPrefix(dep, "/") {
		candidates = append(candidates, strings.TrimPrefix(dep, "/"))
	} else {
		candidates = append(candidates, filepath.ToSlash(filepath.Join(filepath.Dir(relPath), dep)))
	}

	exts := extsByLanguage[language]
	for _, base := range candidates {
		for _, tryPath := range append([]string{base}, withExts(base, exts)...) {
			id, found, err := p.lookupFileNode(ctx, cfg, tryPath)
			if err != nil {
				return "", false, err
			}
			if found {
				return id, true, nil
			}
		}
	}
	return "", false, nil
}

func withExts(base string, exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		out = append(out, base+ext)
	}
	return out
}

func (p *Pipeline) lookupFileNode(ctx context.Context, cfg Config, path string) (string, bool, error) {
	records, err := p.store.List(ctx, store.Filter{Type: objects.TypeSymbol, ProjectID: cfg.ProjectID, TenantID: cfg.TenantID, Path: path}, 0)
	if err != nil {
		return "", false, err
	}
	for _, r := range records {
		if s, ok := r.Variant.(*objects.Symbol); ok && s.Kind == string(objects.SymbolKindFile) {
			return s.ID, true, nil
		}
	}
	return "", false, nil
}

// findFileNode locates the file-node symbol (kind = file) among a
// file's existing symbols, if one was previously indexed.
func findFileNode(symbols []*objects.Symbol) *objects.Symbol {
	for _, s := range symbols {
		if s.Kind == string(objects.SymbolKindFile) {
			return s
		}
	}
	return nil
}

func (p *Pipeline) loadExisting(ctx context.Context, cfg Config, relPath string) (*objects.FileLog, []*objects.Symbol, []*objects.FileChunk, error) {
	records, err := p.store.List(ctx, store.Filter{Type: objects.TypeFileLog, ProjectID: cfg.ProjectID, TenantID: cfg.TenantID, Path: relPath}, 1)
	if err != nil {
		return nil, nil, nil, err
	}
	var log *objects.FileLog
	if len(records) > 0 {
		if fl, ok := records[0].Variant.(*objects.FileLog); ok {
			log = fl
		}
	}

	symRecords, err := p.store.List(ctx, store.Filter{Type: objects.TypeSymbol, ProjectID: cfg.ProjectID, TenantID: cfg.TenantID, Path: relPath}, 0)
	if err != nil {
		return nil, nil, nil, err
	}
	var symbols []*objects.Symbol
	for _, r := range symRecords {
		if s, ok := r.Variant.(*objects.Symbol); ok {
			symbols = append(symbols, s)
		}
	}

	chunkRecords, err := p.store.List(ctx, store.Filter{Type: objects.TypeFileChunk, ProjectID: cfg.ProjectID, TenantID: cfg.TenantID, Path: relPath}, 0)
	if err != nil {
		return nil, nil, nil, err
	}
	var chunks []*objects.FileChunk
	for _, r := range chunkRecords {
		if c, ok := r.Variant.(*objects.FileChunk); ok {
			chunks = append(chunks, c)
		}
	}

	return log, symbols, chunks, nil
}

func (p *Pipeline) buildFileLog(existing *objects.FileLog, cfg Config, relPath, fileHash string, parsed []ParsedSymbol, prov objects.Provenance) *objects.FileLog {
	var fl *objects.FileLog
	action := objects.AuditActionCreate
	if existing != nil {
		fl = existing
		action = objects.AuditActionEdit
	} else {
		env := objects.NewEnvelope(objects.TypeFileLog, cfg.TenantID, cfg.ProjectID, prov)
		fl = &objects.FileLog{Envelope: env, FilePath: relPath}
	}

	fl.Touch()
	fl.AppendAudit(objects.AuditEntry{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Summary:   fmt.Sprintf("re-indexed %s, content_hash: %s", relPath, fileHash),
		Agent:     cfg.Agent,
	})
	fl.Summary = fmt.Sprintf("%s (%d symbols)", relPath, len(parsed))
	fl.KeySymbols = topKeySymbols(parsed, keySymbolTopN)
	fl.Dependencies = extractDependencies(parsed)
	return fl
}

func topKeySymbols(parsed []ParsedSymbol, n int) []string {
	sorted := append([]ParsedSymbol{}, parsed...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return keySymbolPriority[sorted[i].Kind] < keySymbolPriority[sorted[j].Kind]
	})
	var out []string
	for _, s := range sorted {
		if _, known := keySymbolPriority[s.Kind]; !known {
			continue
		}
		out = append(out, s.Name)
		if len(out) == n {
			break
		}
	}
	return out
}

// extractDependencies collects the import paths a SymbolParser reports
// as "import"-kind symbols, per §4.4 step 7's "dependencies
// (imports/requires extracted from symbols)".
func extractDependencies(parsed []ParsedSymbol) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range parsed {
		if s.Kind != "import" {
			continue
		}
		if _, ok := seen[s.Name]; ok {
			continue
		}
		seen[s.Name] = struct{}{}
		out = append(out, s.Name)
	}
	return out
}

// attachEmbeddings populates each item's Envelope.Embedding via the
// adapter, tolerating ProviderUnavailable per §4.6's graceful
// degradation (the write proceeds with embeddings omitted).
func (p *Pipeline) attachEmbeddings(ctx context.Context, items []store.PutItem) {
	if p.embedder == nil {
		return
	}
	texts := make([]string, len(items))
	for i, it := range items {
		if t, ok := it.Variant.(objects.ObjectWithText); ok {
			texts[i] = t.EmbeddingText()
		}
	}
	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		p.log.Debug("embedding attachment skipped", "error", err.Error())
		return // degrade gracefully per §4.6: writes proceed without vectors
	}
	for i, v := range vecs {
		if v != nil {
			items[i].Envelope.Embedding = v
		}
	}
}

// DeleteFile cascades §4.4's "Delete" clause: remove the file node, its
// symbols and chunks, and soft-delete the filelog by appending a delete
// audit entry and clearing its embedding.
func (p *Pipeline) DeleteFile(ctx context.Context, cfg Config, relPath string) error {
	existingLog, existingSymbols, existingChunks, err := p.loadExisting(ctx, cfg, relPath)
	if err != nil {
		return err
	}

	for _, s := range existingSymbols {
		if err := p.store.Delete(ctx, s.ID); err != nil {
			p.log.Warn("failed to delete symbol on file removal", "symbol_id", s.ID, "error", err.Error())
		}
	}
	for _, c := range existingChunks {
		if err := p.store.Delete(ctx, c.ID); err != nil {
			p.log.Warn("failed to delete chunk on file removal", "chunk_id", c.ID, "error", err.Error())
		}
	}

	if existingLog == nil {
		return nil
	}
	fl := existingLog
	fl.Touch()
	fl.AppendAudit(objects.AuditEntry{
		Timestamp: time.Now().UTC(),
		Action:    objects.AuditActionDelete,
		Summary:   fmt.Sprintf("%s removed from the tree", relPath),
		Agent:     cfg.Agent,
	})
	fl.Envelope.Embedding = nil
	return p.store.Update(ctx, fl.ID, &fl.Envelope, fl)
}

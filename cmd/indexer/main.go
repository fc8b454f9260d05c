// indexer is the one-shot/watch CLI driving internal/indexing against
// an in-process memory store, outside of an agent's own HTTP call to
// /v1/codebase/parse-file. A configured non-memory database_url is not
// opened: the CLI prints a warning and indexes into memory anyway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/amp-proto/amp/internal/config"
	"github.com/amp-proto/amp/internal/embeddings"
	"github.com/amp-proto/amp/internal/indexing"
	"github.com/amp-proto/amp/internal/logging"
	"github.com/amp-proto/amp/internal/store"
)

var (
	infoColor  = color.New(color.FgCyan)
	okColor    = color.New(color.FgGreen, color.Bold)
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
)

func main() {
	var (
		root      = flag.String("root", ".", "root path to index")
		tenantID  = flag.String("tenant", "default", "tenant id to index into")
		projectID = flag.String("project", "default", "project id to index into")
		agent     = flag.String("agent", "indexer-cli", "agent identity recorded in provenance")
		watch     = flag.Bool("watch", false, "keep running, re-indexing files as they change")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		errorColor.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefaultLevel(logging.ParseLevel(cfg.Logging.Level))

	st := store.NewMemoryStore(nil)
	if cfg.Store.DatabaseURL != "" && cfg.Store.DatabaseURL != "memory" {
		warnColor.Fprintf(os.Stderr, "indexer: database_url=%q ignored, run against the server's store via its HTTP API instead\n", cfg.Store.DatabaseURL)
	}

	provider, err := embeddings.NewProvider(cfg.Embedding.Provider, cfg.Embedding.APIKey, cfg.Embedding.URL, cfg.Embedding.Model, cfg.Embedding.Dimension)
	if err != nil {
		errorColor.Fprintf(os.Stderr, "embeddings: %v\n", err)
		os.Exit(1)
	}
	embedder := embeddings.NewAdapter(provider, cfg.Embedding.MaxConcurrency, cfg.Embedding.CacheSize)
	pipeline := indexing.NewPipeline(st, embedder, indexing.NewGoSymbolParser())

	idxCfg := indexing.Config{
		RootPath:       *root,
		TenantID:       *tenantID,
		ProjectID:      *projectID,
		Agent:          *agent,
		Workers:        cfg.Indexing.Workers,
		ExcludeDirs:    cfg.Indexing.ExcludePatterns,
		UseGitignore:   cfg.Indexing.RespectGitignore,
		MaxChunkTokens: cfg.Indexing.ChunkTargetTokens,
		OverlapTokens:  cfg.Indexing.ChunkOverlapTokens,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infoColor.Printf("indexing %s (tenant=%s project=%s)\n", *root, *tenantID, *projectID)
	start := time.Now()
	progress, fileErrs, err := pipeline.Run(ctx, idxCfg)
	if err != nil {
		errorColor.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
	okColor.Printf("indexed %d files, %d symbols, %d chunks in %s\n",
		progress.FilesDone, progress.SymbolsCreated, progress.ChunksCreated, time.Since(start).Round(time.Millisecond))
	for _, fe := range fileErrs {
		warnColor.Printf("  %s: %v\n", fe.Path, fe.Err)
	}

	if !*watch {
		return
	}

	infoColor.Println("watching for changes, press Ctrl-C to stop")
	watcher := indexing.NewWatcher(pipeline, idxCfg, 500*time.Millisecond)
	if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
		errorColor.Fprintf(os.Stderr, "watch failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println()
}

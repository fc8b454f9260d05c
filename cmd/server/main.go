// server is the AMP engine's HTTP entrypoint: it loads configuration,
// wires C1-C7 into a Deps bundle, and serves the /v1 API until an
// interrupt asks it to drain in-flight requests and exit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amp-proto/amp/internal/admin"
	"github.com/amp-proto/amp/internal/api"
	"github.com/amp-proto/amp/internal/cache"
	"github.com/amp-proto/amp/internal/config"
	"github.com/amp-proto/amp/internal/embeddings"
	"github.com/amp-proto/amp/internal/indexing"
	"github.com/amp-proto/amp/internal/leases"
	"github.com/amp-proto/amp/internal/logging"
	"github.com/amp-proto/amp/internal/provenance"
	"github.com/amp-proto/amp/internal/query"
	"github.com/amp-proto/amp/internal/store"
)

func main() {
	var adminAddr = flag.String("admin-addr", "", "separate bind address for the admin settings API (defaults to same port, different mux)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefaultLevel(logging.ParseLevel(cfg.Logging.Level))
	log := logging.WithComponent("server")

	deps, closeStore, err := buildDeps(cfg)
	if err != nil {
		log.Error("failed to wire components", "error", err.Error())
		os.Exit(1)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("error closing store", "error", err.Error())
		}
	}()

	router := api.NewRouter(deps)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := router.Handler()
	if *adminAddr == "" {
		mux := http.NewServeMux()
		mux.Handle("/v1/settings", router.AdminHandler())
		mux.Handle("/v1/settings/", router.AdminHandler())
		mux.Handle("/", router.Handler())
		handler = mux
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)
	mainServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	var adminServer *http.Server
	if *adminAddr != "" {
		adminServer = &http.Server{Addr: *adminAddr, Handler: router.AdminHandler()}
	}

	go func() {
		log.Info("listening", "addr", addr)
		if err := mainServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err.Error())
		}
	}()
	if adminServer != nil {
		go func() {
			log.Info("admin listening", "addr", *adminAddr)
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("admin http server error", "error", err.Error())
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mainServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("error during shutdown", "error", err.Error())
	}
	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("error during admin shutdown", "error", err.Error())
		}
	}
}

// buildDeps wires an api.Deps from cfg: the object store named by
// Store.DatabaseURL, the embedding provider named by Embedding.Provider
// wrapped in the resilience adapter, and every C3-C7 component layered
// on top of those two. The returned close func releases the store's
// underlying connection (a no-op for the in-process backend).
func buildDeps(cfg *config.Config) (api.Deps, func() error, error) {
	ctx := context.Background()

	st, closeFn, err := buildStore(ctx, cfg)
	if err != nil {
		return api.Deps{}, nil, fmt.Errorf("store: %w", err)
	}

	provider, err := embeddings.NewProvider(cfg.Embedding.Provider, cfg.Embedding.APIKey, cfg.Embedding.URL, cfg.Embedding.Model, cfg.Embedding.Dimension)
	if err != nil {
		return api.Deps{}, nil, fmt.Errorf("embeddings: %w", err)
	}
	embedder := embeddings.NewAdapter(provider, cfg.Embedding.MaxConcurrency, cfg.Embedding.CacheSize)

	lexical, err := query.NewLexicalIndex()
	if err != nil {
		return api.Deps{}, nil, fmt.Errorf("lexical index: %w", err)
	}

	leaseBackend, err := buildLeaseBackend(cfg)
	if err != nil {
		return api.Deps{}, nil, fmt.Errorf("leases: %w", err)
	}

	pipeline := indexing.NewPipeline(st, embedder, indexing.NewGoSymbolParser())

	deps := api.Deps{
		Store:      st,
		Engine:     query.NewEngine(st, lexical, embedder),
		Cache:      cache.NewManager(st, embedder),
		Leases:     leaseBackend,
		Pipeline:   pipeline,
		Admin:      admin.NewService(cfg, st, leaseBackend),
		Provenance: provenance.NewService(st),
		Log:        logging.WithComponent("api"),
	}
	return deps, closeFn, nil
}

// buildStore selects the ObjectStore backend named by
// cfg.Store.DatabaseURL: "memory" (default), a file:// path (SQLite),
// a ws(s):// URL for the remote store transport, or the additive
// postgres:// DSN for multi-writer deployments.
func buildStore(ctx context.Context, cfg *config.Config) (store.ObjectStore, func() error, error) {
	noop := func() error { return nil }
	switch url := cfg.Store.DatabaseURL; {
	case url == "" || url == "memory":
		var idx store.VectorIndex
		if cfg.Embedding.Dimension > 0 {
			idx = store.NewHNSWIndex(cfg.Embedding.Dimension)
		}
		return store.NewMemoryStore(idx), noop, nil
	case hasScheme(url, "file://"):
		s, err := store.OpenSQLiteStore(ctx, trimScheme(url, "file://"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case hasScheme(url, "postgres://"), hasScheme(url, "postgresql://"):
		s, err := store.OpenPostgresStore(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case hasScheme(url, "ws://"), hasScheme(url, "wss://"):
		s, err := store.DialRemoteStore(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unrecognized store.database_url %q", url)
	}
}

func buildLeaseBackend(cfg *config.Config) (leases.Backend, error) {
	switch cfg.Leases.Backend {
	case "", "memory":
		return leases.NewMemoryBackend(), nil
	case "redis":
		return leases.NewRedisBackend(cfg.Leases.RedisURL, "", 0, "amp")
	case "file":
		return leases.NewFileBackend(cfg.Leases.FileLockDir)
	default:
		return nil, fmt.Errorf("unrecognized leases.backend %q", cfg.Leases.Backend)
	}
}

func hasScheme(url, scheme string) bool {
	return len(url) >= len(scheme) && url[:len(scheme)] == scheme
}

func trimScheme(url, scheme string) string {
	return url[len(scheme):]
}

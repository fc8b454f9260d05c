package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/amp-proto/amp/internal/admin"
	"github.com/amp-proto/amp/internal/api/response"
	"github.com/amp-proto/amp/internal/cache"
	"github.com/amp-proto/amp/internal/indexing"
	"github.com/amp-proto/amp/internal/leases"
	"github.com/amp-proto/amp/internal/logging"
	"github.com/amp-proto/amp/internal/provenance"
	"github.com/amp-proto/amp/internal/query"
	"github.com/amp-proto/amp/internal/store"
)

// Deps bundles every component the router dispatches to. Built
// separately (the process entrypoint owns construction order and
// lifetime), Deps just wires the already-built pieces to their routes.
type Deps struct {
	Store      store.ObjectStore
	Engine     *query.Engine
	Cache      *cache.Manager
	Leases     leases.Backend
	Pipeline   *indexing.Pipeline
	Admin      *admin.Service
	Provenance *provenance.Service
	Log        logging.Logger
}

// Router owns the main chi mux plus the separately mounted admin
// sub-router, mirroring the teacher's split between its primary API
// tree and its operator-facing one.
type Router struct {
	mux   *chi.Mux
	admin http.Handler
}

// NewRouter builds the full /v1 route tree over deps.
func NewRouter(deps Deps) *Router {
	objectsH := NewObjectsHandler(deps.Store, deps.Provenance)
	relsH := NewRelationshipsHandler(deps.Store)
	queryH := NewQueryHandler(deps.Engine)
	cacheH := NewCacheHandler(deps.Cache)
	leasesH := NewLeasesHandler(deps.Leases)
	codebaseH := NewCodebaseHandler(deps.Store, deps.Pipeline)
	adminH := NewAdminHandler(deps.Admin)

	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(deps.Log))
	r.Use(corsMiddleware)
	r.Use(chimiddleware.Timeout(store.DefaultOpTimeout))
	r.Use(chimiddleware.RequestSize(10 << 20))
	r.Use(chimiddleware.Heartbeat("/ping"))

	r.Route("/v1", func(v1 chi.Router) {
		v1.Route("/objects", func(o chi.Router) {
			o.Post("/", objectsH.Create)
			o.Post("/batch", objectsH.CreateBatch)
			o.Get("/{id}", objectsH.Get)
			o.Put("/{id}", objectsH.Update)
			o.Delete("/{id}", objectsH.Delete)
			o.Get("/{id}/provenance", objectsH.Provenance)
		})

		v1.Post("/query", queryH.Query)

		v1.Route("/relationships", func(rel chi.Router) {
			rel.Post("/", relsH.Create)
			rel.Get("/", relsH.List)
		})

		v1.Route("/cache/block", func(c chi.Router) {
			c.Post("/write", cacheH.Write)
			c.Post("/compact", cacheH.Compact)
			c.Post("/read", cacheH.Read)
			c.Get("/list", cacheH.List)
			c.Get("/current/{scope}", cacheH.Current)
		})

		v1.Route("/leases", func(l chi.Router) {
			l.Post("/acquire", leasesH.Acquire)
			l.Post("/renew", leasesH.Renew)
			l.Post("/release", leasesH.Release)
		})

		v1.Route("/codebase", func(cb chi.Router) {
			cb.Post("/parse-file", codebaseH.ParseFile)
			cb.Post("/update-file-log", codebaseH.UpdateFileLog)
			cb.Get("/file-logs/*", codebaseH.FileLogByPath)
			cb.Post("/delete", codebaseH.Delete)
		})
	})

	r.Get("/", handleRoot)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.BadRequest(w, "no such route: "+r.Method+" "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.BadRequest(w, "method not allowed: "+r.Method+" "+r.URL.Path)
	})

	return &Router{mux: r, admin: adminH.Router()}
}

// Handler returns the primary /v1 API handler.
func (rt *Router) Handler() http.Handler {
	return rt.mux
}

// AdminHandler returns the separately mounted gorilla/mux settings
// sub-router. It is never folded into the main chi tree: the process
// entrypoint serves it on its own address when one is given, and
// otherwise beside the chi tree on the same port under /v1/settings.
func (rt *Router) AdminHandler() http.Handler {
	return rt.admin
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]interface{}{
		"service":   "amp",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"endpoints": []string{
			"/v1/objects", "/v1/query", "/v1/relationships",
			"/v1/cache/block", "/v1/leases", "/v1/codebase",
		},
	})
}

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-proto/amp/internal/admin"
	"github.com/amp-proto/amp/internal/cache"
	"github.com/amp-proto/amp/internal/config"
	"github.com/amp-proto/amp/internal/indexing"
	"github.com/amp-proto/amp/internal/leases"
	"github.com/amp-proto/amp/internal/logging"
	"github.com/amp-proto/amp/internal/provenance"
	"github.com/amp-proto/amp/internal/query"
	"github.com/amp-proto/amp/internal/store"
)

func newTestRouter() *Router {
	st := store.NewMemoryStore(nil)
	lb := leases.NewMemoryBackend()
	deps := Deps{
		Store:      st,
		Engine:     query.NewEngine(st, nil, nil),
		Cache:      cache.NewManager(st, nil),
		Leases:     lb,
		Pipeline:   indexing.NewPipeline(st, nil, nil),
		Admin:      admin.NewService(config.DefaultConfig(), st, lb),
		Provenance: provenance.NewService(st),
		Log:        logging.WithComponent("api-test"),
	}
	return NewRouter(deps)
}

func TestRouterHeartbeat(t *testing.T) {
	rt := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	rt.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterRootHandler(t *testing.T) {
	rt := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	rt.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterNotFoundRoute(t *testing.T) {
	rt := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/v1/nope", nil)
	rec := httptest.NewRecorder()
	rt.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterObjectsCreateRoundTrip(t *testing.T) {
	rt := newTestRouter()
	body := `{"type":"note","tenant_id":"t1","project_id":"p1","title":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/objects", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	rt.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestRouterAdminSubRouterIsSeparate(t *testing.T) {
	rt := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/v1/settings", nil)
	rec := httptest.NewRecorder()
	rt.AdminHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// the main chi router does not serve /v1/settings itself.
	mainRec := httptest.NewRecorder()
	rt.Handler().ServeHTTP(mainRec, req)
	assert.Equal(t, http.StatusBadRequest, mainRec.Code)
}

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-proto/amp/internal/cache"
	"github.com/amp-proto/amp/internal/objects"
	"github.com/amp-proto/amp/internal/store"
)

func mountCache(h *CacheHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/v1/cache/block/write", h.Write)
	r.Post("/v1/cache/block/compact", h.Compact)
	r.Post("/v1/cache/block/read", h.Read)
	r.Get("/v1/cache/block/list", h.List)
	r.Get("/v1/cache/block/current/{scope}", h.Current)
	return r
}

func TestCacheWriteThenReadByScope(t *testing.T) {
	st := store.NewMemoryStore(nil)
	mgr := cache.NewManager(st, nil)
	h := NewCacheHandler(mgr)
	mux := mountCache(h)

	writeBody := `{"scope_id":"scope-1","tenant_id":"t1","project_id":"p1","item":{"kind":"fact","content":"uses postgres","importance":0.8}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/cache/block/write", bytes.NewBufferString(writeBody))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	readBody := `{"scope_id":"scope-1"}`
	readReq := httptest.NewRequest(http.MethodPost, "/v1/cache/block/read", bytes.NewBufferString(readBody))
	readRec := httptest.NewRecorder()
	mux.ServeHTTP(readRec, readReq)
	require.Equal(t, http.StatusOK, readRec.Code)

	var resp struct {
		Data objects.CacheBlock `json:"data"`
	}
	require.NoError(t, json.Unmarshal(readRec.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Items, 1)
	assert.Equal(t, "uses postgres", resp.Data.Items[0].Content)
}

func TestCacheReadRequiresOneOfIDQueryScope(t *testing.T) {
	st := store.NewMemoryStore(nil)
	mgr := cache.NewManager(st, nil)
	h := NewCacheHandler(mgr)
	mux := mountCache(h)

	req := httptest.NewRequest(http.MethodPost, "/v1/cache/block/read", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCacheCompactClosesOpenBlock(t *testing.T) {
	st := store.NewMemoryStore(nil)
	mgr := cache.NewManager(st, nil)
	h := NewCacheHandler(mgr)
	mux := mountCache(h)

	writeBody := `{"scope_id":"scope-2","tenant_id":"t1","project_id":"p1","item":{"kind":"fact","content":"x"}}`
	writeReq := httptest.NewRequest(http.MethodPost, "/v1/cache/block/write", bytes.NewBufferString(writeBody))
	writeRec := httptest.NewRecorder()
	mux.ServeHTTP(writeRec, writeReq)
	require.Equal(t, http.StatusCreated, writeRec.Code)

	compactReq := httptest.NewRequest(http.MethodPost, "/v1/cache/block/compact", bytes.NewBufferString(`{"scope_id":"scope-2"}`))
	compactRec := httptest.NewRecorder()
	mux.ServeHTTP(compactRec, compactReq)
	require.Equal(t, http.StatusNoContent, compactRec.Code)

	currentReq := httptest.NewRequest(http.MethodGet, "/v1/cache/block/current/scope-2", nil)
	currentRec := httptest.NewRecorder()
	mux.ServeHTTP(currentRec, currentReq)
	require.Equal(t, http.StatusOK, currentRec.Code)

	var resp struct {
		Data *objects.CacheBlock `json:"data"`
	}
	require.NoError(t, json.Unmarshal(currentRec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data)
	assert.Equal(t, objects.BlockOpen, resp.Data.Status)
	assert.Equal(t, 2, resp.Data.Sequence)
	assert.Empty(t, resp.Data.Items)
}

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

	"github.com/amp-proto/amp/internal/objects"
	"github.com/amp-proto/amp/internal/provenance"
	"github.com/amp-proto/amp/internal/store"
)

func newTestObjectsHandler() (*ObjectsHandler, store.ObjectStore) {
	st := store.NewMemoryStore(nil)
	return NewObjectsHandler(st, provenance.NewService(st)), st
}

func mountObjects(h *ObjectsHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/v1/objects", h.Create)
	r.Post("/v1/objects/batch", h.CreateBatch)
	r.Get("/v1/objects/{id}", h.Get)
	r.Put("/v1/objects/{id}", h.Update)
	r.Delete("/v1/objects/{id}", h.Delete)
	r.Get("/v1/objects/{id}/provenance", h.Provenance)
	return r
}

func TestObjectsCreateAndGet(t *testing.T) {
	h, _ := newTestObjectsHandler()
	mux := mountObjects(h)

	body := `{"type":"symbol","tenant_id":"t1","project_id":"p1","name":"DoThing","kind":"function","path":"main.go"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/objects", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data objects.Symbol `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Data.ID)
	assert.Equal(t, "DoThing", created.Data.Name)

	getReq := httptest.NewRequest(http.MethodGet, "/v1/objects/"+created.Data.ID, nil)
	getRec := httptest.NewRecorder()
	mux.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
}

func TestObjectsGetMissingReturns404(t *testing.T) {
	h, _ := newTestObjectsHandler()
	mux := mountObjects(h)

	req := httptest.NewRequest(http.MethodGet, "/v1/objects/does-not-exist", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestObjectsCreateBatchReportsPerItemOutcome(t *testing.T) {
	h, _ := newTestObjectsHandler()
	mux := mountObjects(h)

	body := `[
		{"type":"symbol","tenant_id":"t1","project_id":"p1","name":"A","kind":"function"},
		{"type":"bogus","tenant_id":"t1","project_id":"p1"}
	]`
	req := httptest.NewRequest(http.MethodPost, "/v1/objects/batch", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMultiStatus, rec.Code)

	var resp struct {
		Data []batchItemResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.True(t, resp.Data[0].Success)
	assert.False(t, resp.Data[1].Success)
	assert.NotEmpty(t, resp.Data[1].Error)
}

func TestObjectsUpdatePartialMergesOntoExisting(t *testing.T) {
	h, _ := newTestObjectsHandler()
	mux := mountObjects(h)

	createBody := `{"type":"symbol","tenant_id":"t1","project_id":"p1","name":"A","kind":"function","path":"a.go"}`
	createReq := httptest.NewRequest(http.MethodPost, "/v1/objects", bytes.NewBufferString(createBody))
	createRec := httptest.NewRecorder()
	mux.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created struct {
		Data objects.Symbol `json:"data"`
	}
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	patchBody := `{"documentation":"does a thing"}`
	patchReq := httptest.NewRequest(http.MethodPut, "/v1/objects/"+created.Data.ID, bytes.NewBufferString(patchBody))
	patchRec := httptest.NewRecorder()
	mux.ServeHTTP(patchRec, patchReq)
	require.Equal(t, http.StatusOK, patchRec.Code)

	var updated struct {
		Data objects.Symbol `json:"data"`
	}
	require.NoError(t, json.Unmarshal(patchRec.Body.Bytes(), &updated))
	assert.Equal(t, "A", updated.Data.Name, "unpatched field should survive")
	assert.Equal(t, "does a thing", updated.Data.Documentation)
}

func TestObjectsDeleteThenGetIs404(t *testing.T) {
	h, _ := newTestObjectsHandler()
	mux := mountObjects(h)

	createBody := `{"type":"note","tenant_id":"t1","project_id":"p1"}`
	createReq := httptest.NewRequest(http.MethodPost, "/v1/objects", bytes.NewBufferString(createBody))
	createRec := httptest.NewRecorder()
	mux.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created struct {
		Data objects.Note `json:"data"`
	}
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	delReq := httptest.NewRequest(http.MethodDelete, "/v1/objects/"+created.Data.ID, nil)
	delRec := httptest.NewRecorder()
	mux.ServeHTTP(delRec, delReq)
	require.Equal(t, http.StatusNoContent, delRec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/v1/objects/"+created.Data.ID, nil)
	getRec := httptest.NewRecorder()
	mux.ServeHTTP(getRec, getReq)
	assert.Equal(t, http.StatusNotFound, getRec.Code)
}

func TestObjectsProvenanceIncludesAgent(t *testing.T) {
	h, _ := newTestObjectsHandler()
	mux := mountObjects(h)

	createBody := `{"type":"note","tenant_id":"t1","project_id":"p1","provenance":{"agent":"tester"}}`
	createReq := httptest.NewRequest(http.MethodPost, "/v1/objects", bytes.NewBufferString(createBody))
	createRec := httptest.NewRecorder()
	mux.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created struct {
		Data objects.Note `json:"data"`
	}
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	provReq := httptest.NewRequest(http.MethodGet, "/v1/objects/"+created.Data.ID+"/provenance", nil)
	provRec := httptest.NewRecorder()
	mux.ServeHTTP(provRec, provReq)
	require.Equal(t, http.StatusOK, provRec.Code)

	var prov struct {
		Data provenance.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(provRec.Body.Bytes(), &prov))
	assert.Equal(t, "tester", prov.Data.Provenance.Agent)
}

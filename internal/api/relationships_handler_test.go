package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-proto/amp/internal/objects"
	"github.com/amp-proto/amp/internal/store"
)

func mountRelationships(h *RelationshipsHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/v1/relationships", h.Create)
	r.Get("/v1/relationships", h.List)
	return r
}

func putNote(t *testing.T, st store.ObjectStore, id string) {
	t.Helper()
	env := objects.NewEnvelope(objects.TypeNote, "t1", "p1", objects.Provenance{Agent: "test"})
	env.ID = id
	require.NoError(t, st.Put(context.Background(), &env, &objects.Note{Envelope: env, Title: id}))
}

func TestRelationshipsCreateAndList(t *testing.T) {
	st := store.NewMemoryStore(nil)
	putNote(t, st, "src-1")
	putNote(t, st, "dst-1")

	h := NewRelationshipsHandler(st)
	mux := mountRelationships(h)

	body := `{"source_id":"src-1","type":"depends_on","target_id":"dst-1"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/relationships", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/v1/relationships?source_id=src-1", nil)
	listRec := httptest.NewRecorder()
	mux.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	var resp struct {
		Data []objects.Relationship `json:"data"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "dst-1", resp.Data[0].TargetID)
}

func TestRelationshipsCreateRejectsUnknownTarget(t *testing.T) {
	st := store.NewMemoryStore(nil)
	putNote(t, st, "src-1")

	h := NewRelationshipsHandler(st)
	mux := mountRelationships(h)

	body := `{"source_id":"src-1","type":"depends_on","target_id":"missing"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/relationships", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

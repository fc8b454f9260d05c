package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-proto/amp/internal/indexing"
	"github.com/amp-proto/amp/internal/objects"
	"github.com/amp-proto/amp/internal/store"
)

type fakeCodebaseParser struct{}

func (fakeCodebaseParser) Supports(language string) bool { return language == "go" }

func (fakeCodebaseParser) Parse(ctx context.Context, content []byte, language string) ([]indexing.ParsedSymbol, error) {
	return []indexing.ParsedSymbol{{Name: "DoThing", Kind: "function", StartLine: 3, EndLine: 5}}, nil
}

func mountCodebase(h *CodebaseHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/v1/codebase/parse-file", h.ParseFile)
	r.Post("/v1/codebase/update-file-log", h.UpdateFileLog)
	r.Get("/v1/codebase/file-logs/*", h.FileLogByPath)
	r.Post("/v1/codebase/delete", h.Delete)
	return r
}

func TestCodebaseParseFileThenLookupByPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"),
		[]byte("package main\n\nfunc DoThing() {}\n"), 0o644))

	st := store.NewMemoryStore(nil)
	pipeline := indexing.NewPipeline(st, nil, fakeCodebaseParser{})
	h := NewCodebaseHandler(st, pipeline)
	mux := mountCodebase(h)

	parseBody := `{"root_path":"` + dir + `","tenant_id":"t1","project_id":"p1","path":"main.go"}`
	parseReq := httptest.NewRequest(http.MethodPost, "/v1/codebase/parse-file", bytes.NewBufferString(parseBody))
	parseRec := httptest.NewRecorder()
	mux.ServeHTTP(parseRec, parseReq)
	require.Equal(t, http.StatusOK, parseRec.Code)

	lookupReq := httptest.NewRequest(http.MethodGet, "/v1/codebase/file-logs/main.go?tenant_id=t1&project_id=p1", nil)
	lookupRec := httptest.NewRecorder()
	mux.ServeHTTP(lookupRec, lookupReq)
	require.Equal(t, http.StatusOK, lookupRec.Code)

	var resp struct {
		Data objects.FileLog `json:"data"`
	}
	require.NoError(t, json.Unmarshal(lookupRec.Body.Bytes(), &resp))
	assert.Equal(t, "main.go", resp.Data.FilePath)
}

func TestCodebaseFileLogByPathAmbiguous(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkga"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkgb"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkga", "util.go"), []byte("package a\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkgb", "util.go"), []byte("package b\n"), 0o644))

	st := store.NewMemoryStore(nil)
	pipeline := indexing.NewPipeline(st, nil, fakeCodebaseParser{})
	h := NewCodebaseHandler(st, pipeline)
	mux := mountCodebase(h)

	for _, rel := range []string{"pkga/util.go", "pkgb/util.go"} {
		body := `{"root_path":"` + dir + `","tenant_id":"t1","project_id":"p1","path":"` + rel + `"}`
		req := httptest.NewRequest(http.MethodPost, "/v1/codebase/parse-file", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	lookupReq := httptest.NewRequest(http.MethodGet, "/v1/codebase/file-logs/util.go?tenant_id=t1&project_id=p1", nil)
	lookupRec := httptest.NewRecorder()
	mux.ServeHTTP(lookupRec, lookupReq)
	require.Equal(t, http.StatusOK, lookupRec.Code)

	var resp struct {
		Data PathResolution `json:"data"`
	}
	require.NoError(t, json.Unmarshal(lookupRec.Body.Bytes(), &resp))
	assert.Equal(t, "ambiguous", resp.Data.Status)
	assert.Len(t, resp.Data.MatchingFiles, 2)
}

func TestCodebaseDeleteRemovesFileLog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"),
		[]byte("package main\n\nfunc DoThing() {}\n"), 0o644))

	st := store.NewMemoryStore(nil)
	pipeline := indexing.NewPipeline(st, nil, fakeCodebaseParser{})
	h := NewCodebaseHandler(st, pipeline)
	mux := mountCodebase(h)

	parseBody := `{"root_path":"` + dir + `","tenant_id":"t1","project_id":"p1","path":"main.go"}`
	parseReq := httptest.NewRequest(http.MethodPost, "/v1/codebase/parse-file", bytes.NewBufferString(parseBody))
	parseRec := httptest.NewRecorder()
	mux.ServeHTTP(parseRec, parseReq)
	require.Equal(t, http.StatusOK, parseRec.Code)

	deleteBody := `{"root_path":"` + dir + `","tenant_id":"t1","project_id":"p1","path":"main.go"}`
	deleteReq := httptest.NewRequest(http.MethodPost, "/v1/codebase/delete", bytes.NewBufferString(deleteBody))
	deleteRec := httptest.NewRecorder()
	mux.ServeHTTP(deleteRec, deleteReq)
	assert.Equal(t, http.StatusNoContent, deleteRec.Code)

	lookupReq := httptest.NewRequest(http.MethodGet, "/v1/codebase/file-logs/main.go?tenant_id=t1&project_id=p1", nil)
	lookupRec := httptest.NewRecorder()
	mux.ServeHTTP(lookupRec, lookupReq)
	assert.Equal(t, http.StatusNotFound, lookupRec.Code)
}

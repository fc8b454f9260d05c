package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/amp-proto/amp/internal/api/response"
	"github.com/amp-proto/amp/internal/indexing"
	"github.com/amp-proto/amp/internal/store"
)

// CodebaseHandler serves /v1/codebase/*, the single-file indexing and
// provenance-lookup surface over the C3 pipeline.
type CodebaseHandler struct {
	store    store.ObjectStore
	pipeline *indexing.Pipeline
}

func NewCodebaseHandler(st store.ObjectStore, pipeline *indexing.Pipeline) *CodebaseHandler {
	return &CodebaseHandler{store: st, pipeline: pipeline}
}

type parseFileRequest struct {
	RootPath  string `json:"root_path"`
	TenantID  string `json:"tenant_id"`
	ProjectID string `json:"project_id"`
	Agent     string `json:"agent"`
	Path      string `json:"path"`
}

func (req parseFileRequest) config() indexing.Config {
	return indexing.Config{
		RootPath:  req.RootPath,
		TenantID:  req.TenantID,
		ProjectID: req.ProjectID,
		Agent:     req.Agent,
	}
}

// ParseFile handles POST /v1/codebase/parse-file, (re)indexing a
// single file without a full tree walk.
func (h *CodebaseHandler) ParseFile(w http.ResponseWriter, r *http.Request) {
	var req parseFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed parse-file body")
		return
	}
	if req.RootPath == "" || req.Path == "" {
		response.Error(w, amperrors.ValidationMsg("root_path and path are required"))
		return
	}
	abs := req.Path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(req.RootPath, req.Path)
	}
	if err := h.pipeline.IndexFile(r.Context(), req.config(), abs); err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, map[string]string{"path": req.Path, "status": "indexed"})
}

// UpdateFileLog handles POST /v1/codebase/update-file-log: re-running
// the single-file index is what recomputes and persists the FileLog's
// summary, key symbols, dependencies, and audit trail entry.
func (h *CodebaseHandler) UpdateFileLog(w http.ResponseWriter, r *http.Request) {
	h.ParseFile(w, r)
}

// FileLogByPath handles GET /v1/codebase/file-logs/{path}, resolving
// the path per the exact/contains/normalized/basename ladder before
// returning the stored FileLog. An ambiguous resolution is a 200 with
// matching_files and a hint, not an error.
func (h *CodebaseHandler) FileLogByPath(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	if path == "" {
		response.BadRequest(w, "path is required")
		return
	}
	tenantID := r.URL.Query().Get("tenant_id")
	projectID := r.URL.Query().Get("project_id")

	res, err := resolveFilePath(r.Context(), h.store, tenantID, projectID, path)
	if err != nil {
		response.Error(w, err)
		return
	}
	if res.Status == "ambiguous" {
		response.Success(w, res)
		return
	}
	response.Success(w, res.Record.Variant)
}

type deleteFileRequest struct {
	RootPath  string `json:"root_path"`
	TenantID  string `json:"tenant_id"`
	ProjectID string `json:"project_id"`
	Path      string `json:"path"`
}

// Delete handles POST /v1/codebase/delete, removing a file's indexed
// symbols, chunks, and FileLog.
func (h *CodebaseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed delete body")
		return
	}
	if req.Path == "" {
		response.Error(w, amperrors.ValidationMsg("path is required"))
		return
	}
	cfg := indexing.Config{RootPath: req.RootPath, TenantID: req.TenantID, ProjectID: req.ProjectID}
	if err := h.pipeline.DeleteFile(r.Context(), cfg, req.Path); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

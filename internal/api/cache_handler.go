package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/amp-proto/amp/internal/api/response"
	"github.com/amp-proto/amp/internal/cache"
	"github.com/amp-proto/amp/internal/objects"
)

// CacheHandler serves /v1/cache/block/*, the episodic working-memory
// surface over the C4 manager.
type CacheHandler struct {
	manager *cache.Manager
}

func NewCacheHandler(mgr *cache.Manager) *CacheHandler {
	return &CacheHandler{manager: mgr}
}

type writeCacheBlockRequest struct {
	ScopeID   string             `json:"scope_id"`
	TenantID  string             `json:"tenant_id"`
	ProjectID string             `json:"project_id"`
	Item      objects.CacheItem  `json:"item"`
}

// Write handles POST /v1/cache/block/write.
func (h *CacheHandler) Write(w http.ResponseWriter, r *http.Request) {
	var req writeCacheBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed cache write body")
		return
	}
	if req.ScopeID == "" {
		response.Error(w, amperrors.ValidationMsg("scope_id is required"))
		return
	}
	block, err := h.manager.Append(r.Context(), req.ScopeID, req.TenantID, req.ProjectID, req.Item)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, block)
}

type compactCacheBlockRequest struct {
	ScopeID   string `json:"scope_id"`
	TenantID  string `json:"tenant_id"`
	ProjectID string `json:"project_id"`
}

// Compact handles POST /v1/cache/block/compact.
func (h *CacheHandler) Compact(w http.ResponseWriter, r *http.Request) {
	var req compactCacheBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed cache compact body")
		return
	}
	if req.ScopeID == "" {
		response.Error(w, amperrors.ValidationMsg("scope_id is required"))
		return
	}
	if err := h.manager.Compact(r.Context(), req.ScopeID, req.TenantID, req.ProjectID); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

// Read handles POST /v1/cache/block/read. The request shape dispatches
// on which fields are present: an id reads one block by id, a query
// runs a semantic search over the scope's blocks, and scope alone
// returns the scope's current open block.
func (h *CacheHandler) Read(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string `json:"id"`
		ScopeID     string `json:"scope_id"`
		Query       string `json:"query"`
		Limit       int    `json:"limit"`
		IncludeOpen bool   `json:"include_open"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed cache read body")
		return
	}

	switch {
	case req.ID != "":
		block, err := h.manager.Get(req.ID)
		if err != nil {
			response.Error(w, err)
			return
		}
		response.Success(w, block)
	case req.Query != "":
		if req.ScopeID == "" {
			response.Error(w, amperrors.ValidationMsg("scope_id is required for a cache search"))
			return
		}
		limit := req.Limit
		if limit <= 0 {
			limit = 5
		}
		results, err := h.manager.Search(r.Context(), req.ScopeID, req.Query, limit, req.IncludeOpen)
		if err != nil {
			response.Error(w, err)
			return
		}
		response.Success(w, results)
	case req.ScopeID != "":
		response.Success(w, h.manager.GetCurrent(req.ScopeID))
	default:
		response.Error(w, amperrors.ValidationMsg("one of id, query, or scope_id is required"))
	}
}

// List handles GET /v1/cache/block/list?scope_id=...&limit=...
func (h *CacheHandler) List(w http.ResponseWriter, r *http.Request) {
	scopeID := r.URL.Query().Get("scope_id")
	if scopeID == "" {
		response.Error(w, amperrors.ValidationMsg("scope_id query parameter is required"))
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	response.Success(w, h.manager.List(scopeID, limit))
}

// Current handles GET /v1/cache/block/current/{scope}.
func (h *CacheHandler) Current(w http.ResponseWriter, r *http.Request) {
	scopeID := chi.URLParam(r, "scope")
	if scopeID == "" {
		response.BadRequest(w, "scope is required")
		return
	}
	response.Success(w, h.manager.GetCurrent(scopeID))
}

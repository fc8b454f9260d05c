package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/amp-proto/amp/internal/api/response"
	"github.com/amp-proto/amp/internal/leases"
)

// defaultLeaseTTL is used when a request omits ttl_seconds.
const defaultLeaseTTL = 5 * time.Minute

// LeasesHandler serves /v1/leases/*, the mutual-exclusion surface over
// the C6 backend.
type LeasesHandler struct {
	backend leases.Backend
}

func NewLeasesHandler(backend leases.Backend) *LeasesHandler {
	return &LeasesHandler{backend: backend}
}

type acquireLeaseRequest struct {
	Resource   string `json:"resource"`
	Holder     string `json:"holder"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// Acquire handles POST /v1/leases/acquire.
func (h *LeasesHandler) Acquire(w http.ResponseWriter, r *http.Request) {
	var req acquireLeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed lease acquire body")
		return
	}
	if req.Resource == "" || req.Holder == "" {
		response.Error(w, amperrors.ValidationMsg("resource and holder are required"))
		return
	}
	ttl := defaultLeaseTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	lease, err := h.backend.Acquire(r.Context(), req.Resource, req.Holder, ttl)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, lease)
}

type renewLeaseRequest struct {
	LeaseID    string `json:"lease_id"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// Renew handles POST /v1/leases/renew.
func (h *LeasesHandler) Renew(w http.ResponseWriter, r *http.Request) {
	var req renewLeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed lease renew body")
		return
	}
	if req.LeaseID == "" {
		response.Error(w, amperrors.ValidationMsg("lease_id is required"))
		return
	}
	ttl := defaultLeaseTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	lease, err := h.backend.Renew(r.Context(), req.LeaseID, ttl)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, lease)
}

type releaseLeaseRequest struct {
	LeaseID string `json:"lease_id"`
}

// Release handles POST /v1/leases/release.
func (h *LeasesHandler) Release(w http.ResponseWriter, r *http.Request) {
	var req releaseLeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed lease release body")
		return
	}
	if req.LeaseID == "" {
		response.Error(w, amperrors.ValidationMsg("lease_id is required"))
		return
	}
	if err := h.backend.Release(r.Context(), req.LeaseID); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/amp-proto/amp/internal/admin"
	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/amp-proto/amp/internal/api/response"
)

// AdminHandler serves /v1/settings*, mounted as its own gorilla/mux
// sub-router rather than joining the main chi tree — mirroring the
// teacher's dual-router split between its primary API surface and its
// operator-facing one.
type AdminHandler struct {
	service *admin.Service
}

func NewAdminHandler(service *admin.Service) *AdminHandler {
	return &AdminHandler{service: service}
}

// Router builds the mux.Router mounted at /v1/settings by the caller.
func (h *AdminHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/settings", h.GetSettings).Methods(http.MethodGet)
	r.HandleFunc("/v1/settings", h.PutSettings).Methods(http.MethodPut)
	r.HandleFunc("/v1/settings/nuclear-delete", h.NuclearDelete).Methods(http.MethodPost)
	r.HandleFunc("/v1/settings/sweep-leases", h.SweepLeases).Methods(http.MethodPost)
	return r
}

func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.service.GetSettings())
}

func (h *AdminHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var update map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		response.BadRequest(w, "malformed settings body")
		return
	}
	cfg, err := h.service.PutSettings(update)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, cfg)
}

type nuclearDeleteRequest struct {
	DryRun       bool   `json:"dry_run"`
	Confirmation string `json:"confirmation"`
}

// nuclearDeleteConfirmationPhrase guards against an accidental wipe:
// a non-dry-run call must echo this phrase back.
const nuclearDeleteConfirmationPhrase = "DELETE ALL DATA"

func (h *AdminHandler) NuclearDelete(w http.ResponseWriter, r *http.Request) {
	var req nuclearDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed nuclear-delete body")
		return
	}
	if !req.DryRun && req.Confirmation != nuclearDeleteConfirmationPhrase {
		response.Error(w, amperrors.ValidationMsg("confirmation must equal \""+nuclearDeleteConfirmationPhrase+"\" for a non-dry-run delete"))
		return
	}
	result, err := h.service.NuclearDelete(r.Context(), req.DryRun)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, result)
}

func (h *AdminHandler) SweepLeases(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.SweepLeases(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, result)
}

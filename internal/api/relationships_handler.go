package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/amp-proto/amp/internal/api/response"
	"github.com/amp-proto/amp/internal/objects"
	"github.com/amp-proto/amp/internal/store"
)

// RelationshipsHandler serves /v1/relationships: creating typed edges
// between already-stored objects and listing the edges out of one.
type RelationshipsHandler struct {
	store store.ObjectStore
}

func NewRelationshipsHandler(st store.ObjectStore) *RelationshipsHandler {
	return &RelationshipsHandler{store: st}
}

// createRelationshipRequest is the client-facing shape; id and
// created_at are server-stamped, never accepted from the caller.
type createRelationshipRequest struct {
	SourceID string                 `json:"source_id"`
	Type     objects.RelationType   `json:"type"`
	TargetID string                 `json:"target_id"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Create handles POST /v1/relationships.
func (h *RelationshipsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRelationshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed relationship body")
		return
	}
	if req.SourceID == "" || req.TargetID == "" || req.Type == "" {
		response.Error(w, amperrors.ValidationMsg("source_id, target_id, and type are required"))
		return
	}

	rel := &objects.Relationship{
		ID:        uuid.New().String(),
		SourceID:  req.SourceID,
		Type:      req.Type,
		TargetID:  req.TargetID,
		Metadata:  req.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.PutRelationship(r.Context(), rel); err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, rel)
}

// List handles GET /v1/relationships?source_id=...
func (h *RelationshipsHandler) List(w http.ResponseWriter, r *http.Request) {
	sourceID := r.URL.Query().Get("source_id")
	if sourceID == "" {
		response.BadRequest(w, "source_id query parameter is required")
		return
	}
	rels, err := h.store.ListRelationships(r.Context(), sourceID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, rels)
}

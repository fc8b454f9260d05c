package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/amp-proto/amp/internal/api/response"
	"github.com/amp-proto/amp/internal/objects"
	"github.com/amp-proto/amp/internal/provenance"
	"github.com/amp-proto/amp/internal/store"
)

// ObjectsHandler serves the generic /v1/objects surface: create,
// batched create, read, update (full or partial), delete, and the
// provenance convenience view for any of the C1 object types,
// dispatched on the request body's discriminant "type" field via
// store.NewVariant.
type ObjectsHandler struct {
	store      store.ObjectStore
	provenance *provenance.Service
}

func NewObjectsHandler(st store.ObjectStore, prov *provenance.Service) *ObjectsHandler {
	return &ObjectsHandler{store: st, provenance: prov}
}

// envelopeHeader is the discriminant and identity fields every create
// or update body must carry; the remaining, variant-specific fields
// are decoded straight onto the concrete Go struct since Envelope is
// embedded and its JSON tags are promoted to the top level.
type envelopeHeader struct {
	Type       objects.Type       `json:"type"`
	TenantID   string             `json:"tenant_id"`
	ProjectID  string             `json:"project_id"`
	Provenance objects.Provenance `json:"provenance"`
}

// envelopeOf returns a pointer to variant's embedded Envelope so the
// handler can stamp server-controlled identity fields after decoding
// client JSON onto it. Mirrors the type-switch dispatch store.NewVariant
// uses to pick the concrete struct in the first place.
func envelopeOf(variant interface{}) *objects.Envelope {
	switch v := variant.(type) {
	case *objects.Symbol:
		return &v.Envelope
	case *objects.FileChunk:
		return &v.Envelope
	case *objects.FileLog:
		return &v.Envelope
	case *objects.Decision:
		return &v.Envelope
	case *objects.ChangeSet:
		return &v.Envelope
	case *objects.Note:
		return &v.Envelope
	case *objects.Run:
		return &v.Envelope
	case *objects.CacheBlock:
		return &v.Envelope
	default:
		return nil
	}
}

// Create handles POST /v1/objects.
func (h *ObjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.BadRequest(w, "failed to read request body")
		return
	}
	variant, env, err := h.decodeCreate(body)
	if err != nil {
		response.Error(w, err)
		return
	}
	if err := h.store.Put(r.Context(), env, variant); err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, variant)
}

// decodeCreate parses a single create body into its concrete variant
// struct and a freshly stamped envelope, leaving any client-supplied
// edges or embedding intact.
func (h *ObjectsHandler) decodeCreate(body []byte) (interface{}, *objects.Envelope, error) {
	var hdr envelopeHeader
	if err := json.Unmarshal(body, &hdr); err != nil {
		return nil, nil, amperrors.ValidationMsg("malformed object body")
	}
	if hdr.Type == "" {
		return nil, nil, amperrors.ValidationMsg("type is required")
	}
	variant, err := store.NewVariant(hdr.Type)
	if err != nil {
		return nil, nil, err
	}
	if err := json.Unmarshal(body, variant); err != nil {
		return nil, nil, amperrors.ValidationMsg("body does not match type " + string(hdr.Type))
	}
	envPtr := envelopeOf(variant)
	if envPtr == nil {
		return nil, nil, amperrors.Internal("UNKNOWN_TYPE", "no envelope accessor for type "+string(hdr.Type))
	}
	fresh := objects.NewEnvelope(hdr.Type, hdr.TenantID, hdr.ProjectID, hdr.Provenance)
	envPtr.ID = fresh.ID
	envPtr.Type = fresh.Type
	envPtr.TenantID = fresh.TenantID
	envPtr.ProjectID = fresh.ProjectID
	envPtr.CreatedAt = fresh.CreatedAt
	envPtr.UpdatedAt = fresh.UpdatedAt
	envPtr.Provenance = fresh.Provenance
	return variant, envPtr, nil
}

// batchItemResult is the per-item outcome reported back to the caller
// for a batch create (§6's 207 partial-success contract).
type batchItemResult struct {
	ID      string `json:"id,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// CreateBatch handles POST /v1/objects/batch. Every item reports its
// own outcome independently (§4.1's semi-atomic contract) rather than
// failing the whole request on the first bad item.
func (h *ObjectsHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var rawItems []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&rawItems); err != nil {
		response.BadRequest(w, "expected a JSON array of object bodies")
		return
	}

	items := make([]store.PutItem, 0, len(rawItems))
	// decodeErrs tracks items that failed to decode at all, keyed by
	// their position, so the final result list preserves request order
	// even though only successfully decoded items reach PutBatch.
	decodeErrs := make(map[int]error, len(rawItems))
	positions := make([]int, 0, len(rawItems))

	for i, raw := range rawItems {
		variant, env, err := h.decodeCreate(raw)
		if err != nil {
			decodeErrs[i] = err
			continue
		}
		items = append(items, store.PutItem{Envelope: env, Variant: variant})
		positions = append(positions, i)
	}

	var results []store.BatchResult
	if len(items) > 0 {
		var err error
		results, err = h.store.PutBatch(r.Context(), items)
		if err != nil {
			response.Error(w, err)
			return
		}
	}

	out := make([]batchItemResult, len(rawItems))
	for i := range decodeErrs {
		out[i] = batchItemResult{Success: false, Error: amperrors.As(decodeErrs[i]).Message}
	}
	for i, pos := range positions {
		br := results[i]
		res := batchItemResult{ID: br.ID, Success: br.Success}
		if br.Error != nil {
			res.Error = br.Error.Error()
		}
		out[pos] = res
	}

	response.Partial(w, out)
}

// Get handles GET /v1/objects/{id}.
func (h *ObjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		response.BadRequest(w, "id is required")
		return
	}
	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, rec.Variant)
}

// Update handles PUT /v1/objects/{id}, accepting either a full or a
// partial body: unknown fields keep their stored value, present fields
// overwrite it (JSON merge-patch semantics), so one endpoint serves
// both update styles.
func (h *ObjectsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		response.BadRequest(w, "id is required")
		return
	}
	patch, err := io.ReadAll(r.Body)
	if err != nil {
		response.BadRequest(w, "failed to read request body")
		return
	}

	existing, err := h.store.Get(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}

	merged, err := mergePatch(existing.Variant, patch)
	if err != nil {
		response.Error(w, err)
		return
	}

	variant, err := store.NewVariant(existing.Envelope.Type)
	if err != nil {
		response.Error(w, err)
		return
	}
	if err := json.Unmarshal(merged, variant); err != nil {
		response.BadRequest(w, "merged object does not match its stored type")
		return
	}

	envPtr := envelopeOf(variant)
	if envPtr == nil {
		response.Error(w, amperrors.Internal("UNKNOWN_TYPE", "no envelope accessor for type "+string(existing.Envelope.Type)))
		return
	}
	*envPtr = *existing.Envelope
	envPtr.Touch()

	if err := h.store.Update(r.Context(), id, envPtr, variant); err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, variant)
}

// mergePatch overlays patch's top-level fields onto existing's current
// JSON representation (RFC 7396 merge-patch, shallow: a present field
// replaces wholesale, an absent one is left untouched).
func mergePatch(existing interface{}, patch []byte) ([]byte, error) {
	existingJSON, err := json.Marshal(existing)
	if err != nil {
		return nil, amperrors.Internal("MARSHAL_FAILED", err.Error())
	}
	var base map[string]json.RawMessage
	if err := json.Unmarshal(existingJSON, &base); err != nil {
		return nil, amperrors.Internal("MARSHAL_FAILED", err.Error())
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return nil, amperrors.ValidationMsg("malformed update body")
	}
	for k, v := range overlay {
		// id/type/tenant_id/project_id/created_at are server-owned and
		// never accepted from a patch body.
		switch k {
		case "id", "type", "tenant_id", "project_id", "created_at":
			continue
		}
		base[k] = v
	}
	return json.Marshal(base)
}

// Delete handles DELETE /v1/objects/{id}.
func (h *ObjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		response.BadRequest(w, "id is required")
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

// Provenance handles GET /v1/objects/{id}/provenance.
func (h *ObjectsHandler) Provenance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		response.BadRequest(w, "id is required")
		return
	}
	rec, err := h.provenance.Get(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, rec)
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/amp-proto/amp/internal/api/response"
	"github.com/amp-proto/amp/internal/query"
)

// QueryHandler serves POST /v1/query, the single hybrid/text/vector/
// graph search entrypoint over the C5 engine.
type QueryHandler struct {
	engine *query.Engine
}

func NewQueryHandler(engine *query.Engine) *QueryHandler {
	return &QueryHandler{engine: engine}
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed query body")
		return
	}
	results, err := h.engine.Query(r.Context(), req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, results)
}

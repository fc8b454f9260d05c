package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-proto/amp/internal/admin"
	"github.com/amp-proto/amp/internal/config"
	"github.com/amp-proto/amp/internal/leases"
	"github.com/amp-proto/amp/internal/store"
)

func newTestAdminHandler() *AdminHandler {
	st := store.NewMemoryStore(nil)
	svc := admin.NewService(config.DefaultConfig(), st, leases.NewMemoryBackend())
	return NewAdminHandler(svc)
}

func TestAdminGetAndPutSettings(t *testing.T) {
	h := newTestAdminHandler()
	mux := h.Router()

	getReq := httptest.NewRequest(http.MethodGet, "/v1/settings", nil)
	getRec := httptest.NewRecorder()
	mux.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	putBody := `{"indexing":{"index_workers":8}}`
	putReq := httptest.NewRequest(http.MethodPut, "/v1/settings", bytes.NewBufferString(putBody))
	putRec := httptest.NewRecorder()
	mux.ServeHTTP(putRec, putReq)
	require.Equal(t, http.StatusOK, putRec.Code)

	var resp struct {
		Data config.Config `json:"data"`
	}
	require.NoError(t, json.Unmarshal(putRec.Body.Bytes(), &resp))
	assert.Equal(t, 8, resp.Data.Indexing.Workers)
}

func TestAdminNuclearDeleteRequiresConfirmation(t *testing.T) {
	h := newTestAdminHandler()
	mux := h.Router()

	req := httptest.NewRequest(http.MethodPost, "/v1/settings/nuclear-delete", bytes.NewBufferString(`{"dry_run":false}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAdminNuclearDeleteDryRunNeedsNoConfirmation(t *testing.T) {
	h := newTestAdminHandler()
	mux := h.Router()

	req := httptest.NewRequest(http.MethodPost, "/v1/settings/nuclear-delete", bytes.NewBufferString(`{"dry_run":true}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

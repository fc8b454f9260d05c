package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-proto/amp/internal/leases"
)

func mountLeases(h *LeasesHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/v1/leases/acquire", h.Acquire)
	r.Post("/v1/leases/renew", h.Renew)
	r.Post("/v1/leases/release", h.Release)
	return r
}

func TestLeasesAcquireThenConflict(t *testing.T) {
	backend := leases.NewMemoryBackend()
	h := NewLeasesHandler(backend)
	mux := mountLeases(h)

	body := `{"resource":"file:main.go","holder":"agent-a","ttl_seconds":60}`
	req := httptest.NewRequest(http.MethodPost, "/v1/leases/acquire", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	conflictReq := httptest.NewRequest(http.MethodPost, "/v1/leases/acquire", bytes.NewBufferString(
		`{"resource":"file:main.go","holder":"agent-b","ttl_seconds":60}`))
	conflictRec := httptest.NewRecorder()
	mux.ServeHTTP(conflictRec, conflictReq)
	assert.Equal(t, http.StatusConflict, conflictRec.Code)
}

func TestLeasesRenewAndRelease(t *testing.T) {
	backend := leases.NewMemoryBackend()
	h := NewLeasesHandler(backend)
	mux := mountLeases(h)

	acquireReq := httptest.NewRequest(http.MethodPost, "/v1/leases/acquire", bytes.NewBufferString(
		`{"resource":"file:util.go","holder":"agent-a","ttl_seconds":60}`))
	acquireRec := httptest.NewRecorder()
	mux.ServeHTTP(acquireRec, acquireReq)
	require.Equal(t, http.StatusCreated, acquireRec.Code)

	var created struct {
		Data leases.Lease `json:"data"`
	}
	require.NoError(t, json.Unmarshal(acquireRec.Body.Bytes(), &created))

	renewReq := httptest.NewRequest(http.MethodPost, "/v1/leases/renew", bytes.NewBufferString(
		`{"lease_id":"`+created.Data.ID+`","ttl_seconds":120}`))
	renewRec := httptest.NewRecorder()
	mux.ServeHTTP(renewRec, renewReq)
	require.Equal(t, http.StatusOK, renewRec.Code)

	releaseReq := httptest.NewRequest(http.MethodPost, "/v1/leases/release", bytes.NewBufferString(
		`{"lease_id":"`+created.Data.ID+`"}`))
	releaseRec := httptest.NewRecorder()
	mux.ServeHTTP(releaseRec, releaseReq)
	assert.Equal(t, http.StatusNoContent, releaseRec.Code)
}

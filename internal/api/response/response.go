// Package response provides the standardized JSON envelopes the /v1
// HTTP API returns on success and failure, including the amperrors.Kind
// to HTTP status mapping (§6, §7).
package response

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/amp-proto/amp/internal/amperrors"
)

// ErrorBody is the wire shape of a failed call's "error" field.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorEnvelope is the full body written on a non-2xx response.
type ErrorEnvelope struct {
	Error     ErrorBody `json:"error"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// SuccessEnvelope is the full body written on a 2xx response.
type SuccessEnvelope struct {
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// WriteJSON writes v as a status-coded JSON body.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// Success writes data with a 200.
func Success(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, SuccessEnvelope{Data: data, Timestamp: now()})
}

// Created writes data with a 201.
func Created(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusCreated, SuccessEnvelope{Data: data, Timestamp: now()})
}

// NoContent writes an empty 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Partial writes a 207 multi-status body for a batch with mixed
// per-item outcomes (§6 "207 for partial-success batches").
func Partial(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusMultiStatus, SuccessEnvelope{Data: data, Timestamp: now()})
}

// Error writes err as its mapped HTTP status (§7's taxonomy), using
// amperrors.HTTPStatus and the error's own code/message/details.
// Every kind goes through the same mapping, so an Ambiguous error is
// written as an error envelope with status 200; the codebase handlers
// report ambiguous path matches as success data instead of calling Error.
func Error(w http.ResponseWriter, err error) {
	e := amperrors.As(err)
	body := ErrorEnvelope{
		Error: ErrorBody{
			Code:    e.Code,
			Message: e.Message,
			Details: e.Details,
		},
		TraceID:   e.TraceID,
		Timestamp: now(),
	}
	WriteJSON(w, amperrors.HTTPStatus(e.Kind), body)
}

// BadRequest writes a plain 400 for request-shape failures (malformed
// JSON, missing path params) that never reach amperrors.
func BadRequest(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusBadRequest, ErrorEnvelope{
		Error:     ErrorBody{Code: "BAD_REQUEST", Message: message},
		Timestamp: now(),
	})
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

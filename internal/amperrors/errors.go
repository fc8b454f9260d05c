// Package amperrors provides the error taxonomy shared by every AMP
// component: a stable code, a display-safe message, and optional
// structured detail, with an HTTP status mapping for the API layer.
package amperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the taxonomy a failure belongs to, independent of its message.
type Kind string

const (
	KindValidation         Kind = "VALIDATION"
	KindNotFound           Kind = "NOT_FOUND"
	KindConflict           Kind = "CONFLICT"
	KindAmbiguous          Kind = "AMBIGUOUS"
	KindTimeout            Kind = "TIMEOUT"
	KindProviderUnavailable Kind = "PROVIDER_UNAVAILABLE"
	KindTargetNotReachable Kind = "TARGET_NOT_REACHABLE"
	KindCancelled          Kind = "CANCELLED"
	KindInternal           Kind = "INTERNAL"
)

// Error is the unified failure type returned by every AMP component.
type Error struct {
	Kind    Kind        `json:"kind"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is lets errors.Is match on kind+code equality.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind && e.Code == other.Code
}

func newErr(kind Kind, code, msg string, details interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Details: details}
}

// WithTraceID returns a copy of e carrying the given trace identifier.
func (e *Error) WithTraceID(traceID string) *Error {
	cp := *e
	cp.TraceID = traceID
	return &cp
}

// FieldDetail describes a single field-level validation failure.
type FieldDetail struct {
	Field  string      `json:"field"`
	Reason string      `json:"reason"`
	Value  interface{} `json:"value,omitempty"`
}

func Validation(field, reason string, value interface{}) *Error {
	return newErr(KindValidation, "VALIDATION_ERROR",
		fmt.Sprintf("validation failed for field %q: %s", field, reason),
		FieldDetail{Field: field, Reason: reason, Value: value})
}

func ValidationMsg(msg string) *Error {
	return newErr(KindValidation, "VALIDATION_ERROR", msg, nil)
}

func NotFound(resourceType, id string) *Error {
	return newErr(KindNotFound, "NOT_FOUND",
		fmt.Sprintf("%s %q not found", resourceType, id), nil)
}

func Conflict(msg string, details interface{}) *Error {
	return newErr(KindConflict, "CONFLICT", msg, details)
}

func Ambiguous(msg string, details interface{}) *Error {
	return newErr(KindAmbiguous, "AMBIGUOUS", msg, details)
}

func Timeout(op string) *Error {
	return newErr(KindTimeout, "TIMEOUT", fmt.Sprintf("%s exceeded its deadline", op), nil)
}

func ProviderUnavailable(provider string, cause error) *Error {
	var d interface{}
	if cause != nil {
		d = cause.Error()
	}
	return newErr(KindProviderUnavailable, "PROVIDER_UNAVAILABLE",
		fmt.Sprintf("embedding provider %q unavailable", provider), d)
}

func TargetNotReachable(target string) *Error {
	return newErr(KindTargetNotReachable, "TARGET_NOT_REACHABLE",
		fmt.Sprintf("no path to %q within the requested depth", target), nil)
}

func Cancelled(op string) *Error {
	return newErr(KindCancelled, "CANCELLED", fmt.Sprintf("%s was cancelled", op), nil)
}

func Internal(code, msg string) *Error {
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	return newErr(KindInternal, code, msg, nil)
}

// EmbeddingShapeMismatch is raised when a query or write mixes vectors
// of different dimension against a dimension-typed vector index.
func EmbeddingShapeMismatch(want, got int) *Error {
	return newErr(KindValidation, "EMBEDDING_SHAPE_MISMATCH",
		fmt.Sprintf("embedding dimension mismatch: index is %d-dimensional, got %d", want, got),
		map[string]int{"expected": want, "actual": got})
}

// HTTPStatus maps a Kind to the status code fixed by the external
// interface contract.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindAmbiguous:
		return http.StatusOK
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindProviderUnavailable:
		return http.StatusBadGateway
	case KindTargetNotReachable:
		return http.StatusNotFound
	case KindCancelled:
		return http.StatusRequestTimeout
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// As extracts an *Error from a generic error, synthesizing an Internal
// wrapper for anything that isn't already one of ours.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("INTERNAL_ERROR", err.Error())
}

package amperrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:          http.StatusUnprocessableEntity,
		KindNotFound:            http.StatusNotFound,
		KindConflict:            http.StatusConflict,
		KindAmbiguous:           http.StatusOK,
		KindTimeout:             http.StatusGatewayTimeout,
		KindProviderUnavailable: http.StatusBadGateway,
		KindTargetNotReachable:  http.StatusNotFound,
		KindCancelled:           http.StatusRequestTimeout,
		KindInternal:            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), "kind=%s", kind)
	}
}

func TestErrorIsMatchesKindAndCode(t *testing.T) {
	a := NotFound("object", "123")
	b := NotFound("object", "456")
	assert.True(t, errors.Is(a, b))

	c := Conflict("lease held", nil)
	assert.False(t, errors.Is(a, c))
}

func TestAsWrapsForeignErrors(t *testing.T) {
	plain := errors.New("boom")
	wrapped := As(plain)
	require.NotNil(t, wrapped)
	assert.Equal(t, KindInternal, wrapped.Kind)
	assert.Equal(t, "boom", wrapped.Message)

	native := NotFound("lease", "x")
	assert.Same(t, native, As(native))
}

func TestWithTraceIDCopies(t *testing.T) {
	base := ValidationMsg("bad input")
	traced := base.WithTraceID("trace-1")
	assert.Empty(t, base.TraceID)
	assert.Equal(t, "trace-1", traced.TraceID)
}

func TestEmbeddingShapeMismatchDetails(t *testing.T) {
	err := EmbeddingShapeMismatch(1536, 768)
	assert.Equal(t, "EMBEDDING_SHAPE_MISMATCH", err.Code)
	assert.Equal(t, KindValidation, err.Kind)
}

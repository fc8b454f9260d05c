package embeddings

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-proto/amp/internal/amperrors"
)

type fakeProvider struct {
	calls     int32
	dimension int
	fail      bool
}

func (f *fakeProvider) Name() string   { return "fake" }
func (f *fakeProvider) Dimension() int { return f.dimension }

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.fail {
		return nil, errors.New("fake provider down")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func TestAdapterEmbedBatchRoundTrip(t *testing.T) {
	fp := &fakeProvider{dimension: 3}
	a := NewAdapter(fp, 4, 16)

	vecs, err := a.EmbedBatch(context.Background(), []string{"hello", "world"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 2, 3}, vecs[0])
	assert.Equal(t, []float32{1, 2, 3}, vecs[1])
	assert.EqualValues(t, 1, fp.calls)
}

func TestAdapterCachesByText(t *testing.T) {
	fp := &fakeProvider{dimension: 3}
	a := NewAdapter(fp, 4, 16)

	_, err := a.Embed(context.Background(), "repeat")
	require.NoError(t, err)
	_, err = a.Embed(context.Background(), "repeat")
	require.NoError(t, err)

	assert.EqualValues(t, 1, fp.calls, "second call for the same text should be served from cache")
}

func TestAdapterSurfacesProviderUnavailable(t *testing.T) {
	fp := &fakeProvider{dimension: 3, fail: true}
	a := NewAdapter(fp, 4, 16)

	_, err := a.EmbedBatch(context.Background(), []string{"anything"})
	require.Error(t, err)

	ampErr := amperrors.As(err)
	require.NotNil(t, ampErr)
	assert.Equal(t, amperrors.KindProviderUnavailable, ampErr.Kind)
}

func TestAdapterPassesThroughProviderMetadata(t *testing.T) {
	fp := &fakeProvider{dimension: 1536}
	a := NewAdapter(fp, 4, 0)

	assert.Equal(t, 1536, a.Dimension())
	assert.Equal(t, "fake", a.Name())
}

func TestAdapterEmptyInputReturnsEmptyOutput(t *testing.T) {
	fp := &fakeProvider{dimension: 3}
	a := NewAdapter(fp, 4, 16)

	vecs, err := a.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
	assert.EqualValues(t, 0, fp.calls)
}

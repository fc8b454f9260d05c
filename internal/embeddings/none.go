package embeddings

import "context"

// NoneProvider is the disabled embedding provider: EmbedBatch always
// returns a plain "embedding provider is disabled" error (not an
// amperrors kind), letting every write skip embedding attachment
// and every vector query degrade to an empty result (§4.6).
type NoneProvider struct{}

func NewNoneProvider() *NoneProvider { return &NoneProvider{} }

func (p *NoneProvider) Name() string   { return "none" }
func (p *NoneProvider) Dimension() int { return 0 }

func (p *NoneProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errDisabled
}

var errDisabled = &disabledError{}

type disabledError struct{}

func (e *disabledError) Error() string { return "embedding provider is disabled" }

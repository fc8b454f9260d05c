package embeddings

import "fmt"

// NewProvider builds the concrete Provider named by cfg, matching the
// provider strings fixed by the external interface contract.
func NewProvider(providerName, apiKey, url, model string, dimension int) (Provider, error) {
	switch providerName {
	case "", "none":
		return NewNoneProvider(), nil
	case "openai":
		return NewOpenAIProvider(apiKey, url, model, dimension), nil
	case "openrouter":
		return NewOpenRouterProvider(apiKey, url, model, dimension), nil
	case "ollama":
		return NewOllamaProvider(url, model, dimension), nil
	default:
		return nil, fmt.Errorf("embeddings: unknown provider %q", providerName)
	}
}

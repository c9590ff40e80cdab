package embedding

import (
	"context"
	"fmt"
)

// Embedding is the interface every embedding provider implements.
type Embedding interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch generates embedding vectors for a batch of texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// NewEmbedding is a factory returning an Embedding for the given provider.
func NewEmbedding(provider, model, apiKey, baseURL string) (Embedding, error) {
	switch provider {
	case "gemini":
		return NewGeminiModel(apiKey, model)
	case "openai":
		return NewOpenAIModel(apiKey, model)
	case "ollama":
		return NewOllamaModel(model, baseURL)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}

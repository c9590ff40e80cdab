package llm

import (
	"context"
	"fmt"
)

// Blob is binary payload attached to a generation request, e.g. the image a
// learner drew a region on.
type Blob struct {
	MIMEType string
	Data     []byte
}

// Part is one piece of a prompt: text or inline binary data.
type Part struct {
	Text       string
	InlineData *Blob
}

// GenerateRequest is a provider-independent generation request.
type GenerateRequest struct {
	Parts []Part
}

// GenerateResponse carries the generated text.
type GenerateResponse struct {
	Text string
}

// LLM is the common interface all generative-answer providers implement.
type LLM interface {
	GenerateContent(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// NewClient is a factory returning an LLM for the given provider. A per-user
// API key, when supplied on the request path, overrides the configured one.
func NewClient(provider, model, apiKey string) (LLM, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	switch provider {
	case "gemini":
		return NewGemini(context.Background(), model, apiKey)
	case "openai":
		return NewOpenAI(apiKey, model), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

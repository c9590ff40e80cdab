package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the LLM interface against the Gemini API. It supports
// inline image blobs, which carry the learner's visual context in vision mode.
type Gemini struct {
	model *genai.GenerativeModel
}

// NewGemini creates a new Gemini client for the named model.
func NewGemini(ctx context.Context, model, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &Gemini{model: client.GenerativeModel(model)}, nil
}

// GenerateContent sends the request to the Gemini API and returns the
// concatenated text of the first candidate.
func (g *Gemini) GenerateContent(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	resp, err := g.model.GenerateContent(ctx, toGenaiParts(req.Parts)...)
	if err != nil {
		return nil, MapProviderError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}

	return &GenerateResponse{Text: text}, nil
}

func toGenaiParts(parts []Part) []genai.Part {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.Text != "" {
			out = append(out, genai.Text(p.Text))
		} else if p.InlineData != nil {
			out = append(out, genai.Blob{
				MIMEType: p.InlineData.MIMEType,
				Data:     p.InlineData.Data,
			})
		}
	}
	return out
}

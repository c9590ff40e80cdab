package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAI implements the LLM interface against the OpenAI chat API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a new OpenAI client for the named model.
func NewOpenAI(apiKey, model string) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// GenerateContent sends the request as a single user message. Inline image
// blobs are attached as data-URL image parts.
func (o *OpenAI) GenerateContent(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	var parts []openai.ChatMessagePart
	for _, p := range req.Parts {
		if p.Text != "" {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: p.Text,
			})
		} else if p.InlineData != nil {
			dataURL := fmt.Sprintf("data:%s;base64,%s",
				p.InlineData.MIMEType,
				base64.StdEncoding.EncodeToString(p.InlineData.Data))
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
			})
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	})
	if err != nil {
		return nil, MapProviderError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	return &GenerateResponse{Text: resp.Choices[0].Message.Content}, nil
}

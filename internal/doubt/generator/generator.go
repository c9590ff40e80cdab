package generator

import (
	"context"
	"fmt"
	"strings"

	"doubtdesk/internal/llm"
	"doubtdesk/internal/models"
	"doubtdesk/pkg/logger"
)

// ObjectFetcher downloads a stored resource, e.g. the image a learner drew a
// region on. Implemented by the MinIO client.
type ObjectFetcher interface {
	FetchObject(ctx context.Context, key string) ([]byte, string, error)
}

// Input is a single generation request.
type Input struct {
	Query       string
	Grounding   *models.GroundingContext
	ContentType string
	ResourceKey string  // Object-storage key of the underlying resource
	Language    string  // Explicit language choice; empty means auto-detect
	Client      llm.LLM // Per-request override (user-supplied API key); nil uses the default
}

// Result is the outcome of a generation request.
type Result struct {
	Answer          string
	FormattingScore float64
	NonSubstantive  bool // Canned response; no writeback or video suggestion applies
	VisionMode      bool
	Language        string
}

// Generator builds mode-specific prompts, calls the generative model and
// rates the output quality.
type Generator struct {
	llm        llm.LLM
	classifier Classifier
	fetcher    ObjectFetcher
	log        *logger.Logger
}

// NewGenerator creates a Generator. The fetcher may be nil, in which case
// vision mode degrades to text-only.
func NewGenerator(model llm.LLM, classifier Classifier, fetcher ObjectFetcher, log *logger.Logger) *Generator {
	return &Generator{llm: model, classifier: classifier, fetcher: fetcher, log: log}
}

// Generate answers a substantive query via the external model, or returns a
// canned response for conversational short-circuits.
func (g *Generator) Generate(ctx context.Context, in *Input) (*Result, error) {
	hasSelection := in.Grounding != nil && in.Grounding.HasSelection

	c := g.classifier.Classify(in.Query, hasSelection)
	if in.Language != "" {
		c.Language = in.Language
	}

	// Conversational short-circuits skip the model entirely.
	if c.IsGreeting {
		return &Result{Answer: cannedIntroduction, NonSubstantive: true, Language: c.Language}, nil
	}
	if c.IsVague {
		return &Result{Answer: cannedSelectRegion, NonSubstantive: true, Language: c.Language}, nil
	}

	visionMode := in.Grounding != nil && in.Grounding.HasVisual &&
		strings.EqualFold(in.ContentType, "image") && in.ResourceKey != "" && g.fetcher != nil

	var parts []llm.Part
	if visionMode {
		data, mimeType, err := g.fetcher.FetchObject(ctx, in.ResourceKey)
		if err != nil {
			// Text-only is still a valid answer path.
			g.log.WithError(err).Warn("failed to fetch image resource, falling back to text-only")
			visionMode = false
		} else {
			parts = append(parts, llm.Part{InlineData: &llm.Blob{MIMEType: mimeType, Data: data}})
		}
	}

	var prompt string
	if hasSelection && in.Grounding.Window != "" {
		prompt = buildStrictRegionPrompt(in.Grounding, in.Query)
	} else {
		prompt = buildGeneralPrompt(in.Grounding, in.Query, c.Language)
	}
	parts = append(parts, llm.Part{Text: prompt})

	client := g.llm
	if in.Client != nil {
		client = in.Client
	}

	resp, err := client.GenerateContent(ctx, &llm.GenerateRequest{Parts: parts})
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", llm.MapProviderError(err))
	}

	return &Result{
		Answer:          resp.Text,
		FormattingScore: FormattingScore(resp.Text),
		VisionMode:      visionMode,
		Language:        c.Language,
	}, nil
}

package grounding

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"doubtdesk/internal/config"
	"doubtdesk/internal/models"
	"doubtdesk/pkg/logger"
)

// Placeholder substrings the presentation layer injects into a selection to
// denote "user drew a box here". They carry no meaning for grounding.
var uiPlaceholders = []string{
	"[Visual region selected]",
	"[Region highlighted]",
}

// timestampMarker matches an embedded selection timestamp like "[at 2:00]"
// or "[at 1:02:30]".
var timestampMarker = regexp.MustCompile(`\[at (?:(\d+):)?(\d+):(\d{2})\]`)

// ConceptFetcher supplies related concept names for a content item from the
// knowledge graph. Lookups are best-effort; failures only drop the field.
type ConceptFetcher interface {
	RelatedConcepts(ctx context.Context, contentID string) ([]string, error)
}

// Input is the raw material the builder normalizes.
type Input struct {
	Query        string
	SelectedText string
	Region       *models.VisualRegion
	ContentID    string
	ContentType  string // "video", "audio", "pdf", "image", ...
	ContentName  string
	CourseName   string
	FullText     string // Full extracted text of the referenced content, if any
}

// Builder constructs the request-scoped grounding context: the normalized
// description of what the learner is pointing at.
type Builder struct {
	concepts ConceptFetcher
	cfg      *config.DoubtConfig
	log      *logger.Logger
}

// NewBuilder creates a Builder. The concept fetcher may be nil, in which case
// the concepts field is always empty.
func NewBuilder(concepts ConceptFetcher, cfg *config.DoubtConfig, log *logger.Logger) *Builder {
	return &Builder{concepts: concepts, cfg: cfg, log: log}
}

// Build produces the grounding context for a request. The window is never
// empty if any extracted text exists; it is empty only when the content has
// no extracted text at all.
func (b *Builder) Build(ctx context.Context, in *Input) *models.GroundingContext {
	g := &models.GroundingContext{
		CourseName:   in.CourseName,
		ContentName:  in.ContentName,
		HasSelection: strings.TrimSpace(stripPlaceholders(in.SelectedText)) != "",
		HasVisual:    in.Region != nil,
	}

	if isTimeBased(in.ContentType) {
		if ts, ok := parseTimestamp(in.SelectedText); ok {
			g.Timestamp = &ts
			g.Window = b.windowAround(in.FullText, ts)
		}
	} else if sel := strings.TrimSpace(stripPlaceholders(in.SelectedText)); sel != "" {
		g.Window = sel
	}

	// Fall back to the head of the extracted text when no localized window
	// could be produced.
	if g.Window == "" && in.FullText != "" {
		g.Window = headChars(in.FullText, b.cfg.FallbackChars)
	}

	if b.concepts != nil && in.ContentID != "" {
		conceptCtx, cancel := context.WithTimeout(ctx, b.cfg.ConceptTimeout())
		defer cancel()

		names, err := b.concepts.RelatedConcepts(conceptCtx, in.ContentID)
		if err != nil {
			b.log.WithError(err).Warn("related-concept lookup failed, continuing without concepts")
		} else {
			g.Concepts = names
		}
	}

	return g
}

// windowAround extracts a symmetric word window around the estimated text
// position of a media timestamp, bounded to the available text.
func (b *Builder) windowAround(fullText string, seconds float64) string {
	words := strings.Fields(fullText)
	if len(words) == 0 {
		return ""
	}

	start := int((seconds - b.cfg.WindowSeconds) * b.cfg.WordsPerSecond)
	if start < 0 {
		start = 0
	}
	end := int((seconds + b.cfg.WindowSeconds) * b.cfg.WordsPerSecond)
	if end > len(words) {
		end = len(words)
	}
	if start >= end {
		return ""
	}

	return strings.Join(words[start:end], " ")
}

func isTimeBased(contentType string) bool {
	switch strings.ToLower(contentType) {
	case "video", "audio":
		return true
	}
	return false
}

// parseTimestamp extracts the embedded timestamp marker from a selection and
// returns it in seconds.
func parseTimestamp(selection string) (float64, bool) {
	m := timestampMarker.FindStringSubmatch(selection)
	if m == nil {
		return 0, false
	}

	hours := 0
	if m[1] != "" {
		hours, _ = strconv.Atoi(m[1])
	}
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])

	return float64(hours*3600 + minutes*60 + seconds), true
}

func stripPlaceholders(s string) string {
	for _, p := range uiPlaceholders {
		s = strings.ReplaceAll(s, p, "")
	}
	return s
}

func headChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

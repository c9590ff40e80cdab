package generator

import "regexp"

// Formatting sub-score weights. They sum to 100; structure (a top-level
// heading plus at least two sub-headings) carries the most weight.
const (
	topHeadingWeight  = 20.0
	subHeadingsWeight = 15.0
	bulletListWeight  = 15.0
	numberedWeight    = 10.0
	boldWeight        = 10.0
	codeFenceWeight   = 15.0
	inlineCodeWeight  = 5.0
	formulaWeight     = 10.0
)

var (
	topHeadingPattern = regexp.MustCompile(`(?m)^#\s+\S`)
	subHeadingPattern = regexp.MustCompile(`(?m)^#{2,}\s+\S`)
	bulletPattern     = regexp.MustCompile(`(?m)^\s*[-*]\s+\S`)
	numberedPattern   = regexp.MustCompile(`(?m)^\s*\d+\.\s+\S`)
	boldPattern       = regexp.MustCompile(`\*\*[^*]+\*\*`)
	codeFencePattern  = regexp.MustCompile("(?s)```.+?```")
	inlineCodePattern = regexp.MustCompile("`[^`\n]+`")
	formulaPattern    = regexp.MustCompile(`\\\[[^\]]+\\\]|\\\([^)]+\\\)`)
)

// FormattingScore rates the markup quality of a generated answer on a 0-100
// scale by checking for headings, lists, emphasis, code and formula syntax.
func FormattingScore(text string) float64 {
	if text == "" {
		return 0
	}

	score := 0.0
	if topHeadingPattern.MatchString(text) {
		score += topHeadingWeight
	}
	if len(subHeadingPattern.FindAllString(text, 3)) >= 2 {
		score += subHeadingsWeight
	}
	if bulletPattern.MatchString(text) {
		score += bulletListWeight
	}
	if numberedPattern.MatchString(text) {
		score += numberedWeight
	}
	if boldPattern.MatchString(text) {
		score += boldWeight
	}
	if codeFencePattern.MatchString(text) {
		score += codeFenceWeight
	}
	// Fenced blocks also match the inline pattern; only count inline code on
	// its own.
	if inlineCodePattern.MatchString(codeFencePattern.ReplaceAllString(text, "")) {
		score += inlineCodeWeight
	}
	if formulaPattern.MatchString(text) {
		score += formulaWeight
	}

	return score
}

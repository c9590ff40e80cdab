package generator

import (
	"regexp"
	"strings"
)

// Supported response languages.
const (
	LanguageEnglish = "english"
	LanguageHindi   = "hindi"
)

// Classification is the pre-flight reading of a learner query: whether it is
// a conversational short-circuit and which language policy to apply.
type Classification struct {
	IsGreeting bool
	IsVague    bool // Short "explain this" style request with nothing selected
	Language   string
}

// Classifier decides how a query should be routed before any model call. It
// is a pluggable strategy so the heuristic implementation can be swapped for
// a trained classifier without touching the pipeline.
type Classifier interface {
	Classify(query string, hasSelection bool) Classification
}

var (
	greetingPattern = regexp.MustCompile(`(?i)^\s*(hi+|hii+|hello+|hey+|yo|namaste|good\s+(morning|afternoon|evening)|thanks?|thank\s+you|ok(ay)?)\s*[!.?]*\s*$`)
	vaguePattern    = regexp.MustCompile(`(?i)^\s*(explain|explain\s+this|what\s+is\s+this|what'?s\s+this|describe\s+this|analy[sz]e\s+this|this\s*\?*|help)\s*[!.?]*\s*$`)
)

// Romanized Hindi markers. Presence of any two distinct markers, or an
// explicit request to answer in Hindi, selects the Hindi response policy.
var hindiMarkers = []string{
	"kya", "hai", "kaise", "kyu", "kyun", "samjhao", "samajhao", "batao",
	"matlab", "nahi", "karo", "mujhe", "iska", "hindi me", "hindi mein",
}

// HeuristicClassifier is the default regex/keyword implementation.
type HeuristicClassifier struct{}

// NewHeuristicClassifier returns the default classifier.
func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{}
}

// Classify inspects the query text.
func (HeuristicClassifier) Classify(query string, hasSelection bool) Classification {
	trimmed := strings.TrimSpace(query)
	tokens := strings.Fields(trimmed)

	c := Classification{Language: detectLanguage(trimmed)}

	if len(tokens) <= 4 && greetingPattern.MatchString(trimmed) {
		c.IsGreeting = true
		return c
	}

	if !hasSelection && len(tokens) < 6 && vaguePattern.MatchString(trimmed) {
		c.IsVague = true
	}

	return c
}

func detectLanguage(query string) string {
	lower := strings.ToLower(query)

	hits := 0
	for _, marker := range hindiMarkers {
		if strings.Contains(lower, marker) {
			hits++
		}
	}
	if hits >= 2 || strings.Contains(lower, "in hindi") {
		return LanguageHindi
	}
	return LanguageEnglish
}

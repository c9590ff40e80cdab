package memory

import (
	"strings"
	"testing"

	"doubtdesk/internal/models"
)

func TestBuildSearchPhrase(t *testing.T) {
	// Short queries lean on the context.
	phrase := buildSearchPhrase("what is this", "the dot product of two vectors")
	if !strings.HasPrefix(phrase, "the dot product") {
		t.Errorf("short query: context should dominate, got %q", phrase)
	}

	// Analysis-style requests lean on the context even when longer.
	phrase = buildSearchPhrase("explain the highlighted derivation to me carefully", "derivative of the sigmoid function")
	if !strings.HasPrefix(phrase, "derivative of the sigmoid") {
		t.Errorf("analysis request: context should dominate, got %q", phrase)
	}

	// A specific long query leads.
	phrase = buildSearchPhrase("how does quicksort choose a pivot element efficiently", "some lecture notes about sorting")
	if !strings.HasPrefix(phrase, "how does quicksort") {
		t.Errorf("specific query should lead, got %q", phrase)
	}

	// No context: the query stands alone.
	if got := buildSearchPhrase("what is this", ""); got != "what is this" {
		t.Errorf("expected bare query, got %q", got)
	}

	// Oversized context is bounded.
	phrase = buildSearchPhrase("hm", strings.Repeat("x", 2000))
	if len(phrase) > 600 {
		t.Errorf("context should be bounded, got %d chars", len(phrase))
	}
}

func rec(course string) *models.MemoryRecord {
	return &models.MemoryRecord{CourseID: course, Answer: "a"}
}

func TestSelectBest_FloorBoundary(t *testing.T) {
	// Exactly at the floor is accepted.
	match := selectBest([]candidate{{record: rec("c1"), similarity: 0.85}}, "c1", 0.85)
	if match == nil {
		t.Fatal("similarity exactly at the floor should be accepted")
	}

	// Strictly below the floor is rejected.
	match = selectBest([]candidate{{record: rec("c1"), similarity: 0.8499}}, "c1", 0.85)
	if match != nil {
		t.Fatal("similarity below the floor should be rejected")
	}

	// Lax mode floor.
	match = selectBest([]candidate{{record: rec("c1"), similarity: 0.75}}, "c1", 0.75)
	if match == nil {
		t.Fatal("similarity at the lax floor should be accepted")
	}
	match = selectBest([]candidate{{record: rec("c1"), similarity: 0.7499}}, "c1", 0.75)
	if match != nil {
		t.Fatal("similarity below the lax floor should be rejected")
	}
}

func TestSelectBest_CourseAffinityOutranksSimilarity(t *testing.T) {
	candidates := []candidate{
		{record: rec("other-course"), similarity: 0.90},
		{record: rec("my-course"), similarity: 0.86},
	}

	match := selectBest(candidates, "my-course", 0.75)
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.Record.CourseID != "my-course" {
		t.Errorf("same-course match must win over higher cross-course similarity, got course %s", match.Record.CourseID)
	}
	if match.Similarity != 0.86 {
		t.Errorf("expected similarity 0.86, got %v", match.Similarity)
	}
}

func TestSelectBest_SimilarityTieBreakWithinCourse(t *testing.T) {
	candidates := []candidate{
		{record: rec("c1"), similarity: 0.80},
		{record: rec("c1"), similarity: 0.88},
		{record: rec("c1"), similarity: 0.84},
	}

	match := selectBest(candidates, "c1", 0.75)
	if match.Similarity != 0.88 {
		t.Errorf("expected the most similar same-course record, got %v", match.Similarity)
	}
}

func TestSelectBest_NoCourseScope(t *testing.T) {
	candidates := []candidate{
		{record: rec("a"), similarity: 0.78},
		{record: rec("b"), similarity: 0.91},
	}

	match := selectBest(candidates, "", 0.75)
	if match.Similarity != 0.91 {
		t.Errorf("without course scope, plain similarity wins; got %v", match.Similarity)
	}
}

func TestSelectBest_Empty(t *testing.T) {
	if selectBest(nil, "c1", 0.75) != nil {
		t.Error("no candidates should return nil")
	}
}

func TestNormalizedKey_CaseAndSpaceInsensitive(t *testing.T) {
	a := normalizedKey("What is Gravity?", "ctx")
	b := normalizedKey("  what is gravity?  ", "CTX")
	if a != b {
		t.Error("normalization should ignore case and surrounding space")
	}

	c := normalizedKey("what is gravity?", "different context")
	if a == c {
		t.Error("different context must produce a different key")
	}
}

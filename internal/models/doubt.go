package models

import "time"

// DoubtStatus is the lifecycle state of a doubt.
type DoubtStatus string

const (
	StatusPending   DoubtStatus = "pending"   // Created, confidence below the auto-resolve threshold
	StatusResolved  DoubtStatus = "resolved"  // Confidence cleared the threshold, or a human answer was finalized
	StatusEscalated DoubtStatus = "escalated" // Student pushed the doubt to an instructor queue
	StatusAnswered  DoubtStatus = "answered"  // An instructor supplied a human answer
	StatusCancelled DoubtStatus = "cancelled" // Asker aborted while the pipeline was still running
)

// Answer source tags.
const (
	SourceKnowledgeGraph = "KNOWLEDGE_GRAPH" // Served from semantic memory
	SourceAIAPI          = "AI_API"          // Freshly generated by the external model
)

// VisualRegion is a rectangle the learner drew over an image or frame.
type VisualRegion struct {
	X      float64 `json:"x" bson:"x"`
	Y      float64 `json:"y" bson:"y"`
	Width  float64 `json:"width" bson:"width"`
	Height float64 `json:"height" bson:"height"`
}

// GroundingContext is the request-scoped description of what the learner is
// pointing at. It is consumed once by the answer generator and only snapshotted
// onto the doubt for audit purposes, never stored standalone.
type GroundingContext struct {
	Timestamp   *float64 `json:"timestamp,omitempty" bson:"timestamp,omitempty"` // Seconds into time-based media
	Window      string   `json:"window" bson:"window"`                           // Localized text excerpt
	CourseName  string   `json:"courseName" bson:"course_name"`
	ContentName string   `json:"contentName" bson:"content_name"`
	Concepts    []string `json:"concepts,omitempty" bson:"concepts,omitempty"` // Related concept names from the graph
	HasSelection bool    `json:"hasSelection" bson:"has_selection"`
	HasVisual    bool    `json:"hasVisual" bson:"has_visual"`
}

// ConfidenceBreakdown is the fixed-shape decomposition of a confidence score.
// Keeping it a tagged struct rather than a map keeps the scorer's contract
// checkable.
type ConfidenceBreakdown struct {
	BaseModel      float64 `json:"baseModel" bson:"base_model"`
	ContextQuality float64 `json:"contextQuality" bson:"context_quality"`
	ResponseLength float64 `json:"responseLength" bson:"response_length"`
	Formatting     float64 `json:"formatting" bson:"formatting"`
	VerifiedBonus  float64 `json:"verifiedBonus" bson:"verified_bonus"`
	Total          float64 `json:"total" bson:"total"`
	Label          string  `json:"label" bson:"label"`
}

// VideoSuggestion is a supplementary video surfaced alongside an answer.
type VideoSuggestion struct {
	ID        string `json:"id" bson:"id"`
	URL       string `json:"url" bson:"url"`
	Title     string `json:"title" bson:"title"`
	Thumbnail string `json:"thumbnail" bson:"thumbnail"`
}

// Doubt is the unit of work and audit trail of a learner question. It is the
// only entity with a true lifecycle; grounding contexts and memory records
// do not have one.
type Doubt struct {
	ID              string               `json:"id" bson:"_id"`
	UserID          string               `json:"userId" bson:"user_id"`
	CourseID        string               `json:"courseId" bson:"course_id"`
	ContentID       string               `json:"contentId,omitempty" bson:"content_id,omitempty"`
	Query           string               `json:"query" bson:"query"`
	SelectedText    string               `json:"selectedText,omitempty" bson:"selected_text,omitempty"`
	VisualRegion    *VisualRegion        `json:"visualRegion,omitempty" bson:"visual_region,omitempty"`
	Grounding       *GroundingContext    `json:"grounding,omitempty" bson:"grounding,omitempty"`
	Answer          string               `json:"answer" bson:"answer"`
	Confidence      float64              `json:"confidence" bson:"confidence"`
	Breakdown       *ConfidenceBreakdown `json:"breakdown,omitempty" bson:"breakdown,omitempty"`
	Status          DoubtStatus          `json:"status" bson:"status"`
	Escalated       bool                 `json:"escalated" bson:"escalated"`
	HumanAnswer     string               `json:"humanAnswer,omitempty" bson:"human_answer,omitempty"`
	AnsweredBy      string               `json:"answeredBy,omitempty" bson:"answered_by,omitempty"`
	ResolvedAt      *time.Time           `json:"resolvedAt,omitempty" bson:"resolved_at,omitempty"`
	SuggestedVideo  *VideoSuggestion     `json:"suggestedVideo,omitempty" bson:"suggested_video,omitempty"`
	SourceTag       string               `json:"source" bson:"source_tag"`
	FromCache       bool                 `json:"isFromCache" bson:"from_cache"`
	InstitutionCode string               `json:"institutionCode,omitempty" bson:"institution_code,omitempty"`
	MediaURL        string               `json:"mediaUrl,omitempty" bson:"media_url,omitempty"`
	MediaType       string               `json:"mediaType,omitempty" bson:"media_type,omitempty"`
	CreatedAt       time.Time            `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time            `json:"updatedAt" bson:"updated_at"`
}

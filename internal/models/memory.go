package models

import "time"

// MemoryRecord is an immutable validated question-answer pair persisted in
// semantic memory. A record is only created when its confidence clears the
// writeback threshold; confidence is never decreased after creation.
type MemoryRecord struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Embedding  []float32 `json:"-"`
	CourseID   string    `json:"courseId"`
	ContentID  string    `json:"contentId,omitempty"`
	Confidence float64   `json:"confidence"`
	SourceTag  string    `json:"sourceTag"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MemoryMatch is a lookup result: the best prior answer together with the raw
// similarity it was selected at.
type MemoryMatch struct {
	Record     *MemoryRecord
	Similarity float64
	SameCourse bool
}

// Notification is the payload handed to the notification sink.
type Notification struct {
	RecipientID string         `json:"recipientId"`
	Event       string         `json:"event"`
	Payload     map[string]any `json:"payload,omitempty"`
	SentAt      time.Time      `json:"sentAt"`
}

// Notification event names.
const (
	EventDoubtEscalated = "doubt.escalated"
	EventDoubtAnswered  = "doubt.answered"
)

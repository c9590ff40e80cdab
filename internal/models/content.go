package models

// Content is a piece of course material referenced by a doubt. Extraction of
// its text is done upstream by file-type-specific collaborators; this service
// only consumes the result.
type Content struct {
	ID            string `json:"id" bson:"_id"`
	CourseID      string `json:"courseId" bson:"course_id"`
	Name          string `json:"name" bson:"name"`
	Type          string `json:"type" bson:"type"` // "video", "audio", "pdf", "image", ...
	ExtractedText string `json:"-" bson:"extracted_text"`
	ResourceKey   string `json:"-" bson:"resource_key"` // Object-storage key of the raw resource
}

// Course is the organizational scope of doubts and memory records. Its CRUD
// lives elsewhere; this service only reads names and instructor rosters.
type Course struct {
	ID            string   `json:"id" bson:"_id"`
	Name          string   `json:"name" bson:"name"`
	InstructorIDs []string `json:"instructorIds" bson:"instructor_ids"`
}

package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"doubtdesk/internal/models"
)

// DoubtStore defines the interface for doubt persistence.
type DoubtStore interface {
	Create(ctx context.Context, doubt *models.Doubt) error
	GetByID(ctx context.Context, id string) (*models.Doubt, error)
	Update(ctx context.Context, doubt *models.Doubt) error
	List(ctx context.Context, courseID, userID string, page, limit int) ([]*models.Doubt, error)
	DeleteByContent(ctx context.Context, contentID string) error
}

// ContentStore reads course material metadata and extracted text.
type ContentStore interface {
	GetContent(ctx context.Context, id string) (*models.Content, error)
}

// CourseStore reads course names and instructor rosters.
type CourseStore interface {
	GetCourse(ctx context.Context, id string) (*models.Course, error)
}

// MongoStore implements DoubtStore, ContentStore and CourseStore over a
// single MongoDB database.
type MongoStore struct {
	doubts   *mongo.Collection
	contents *mongo.Collection
	courses  *mongo.Collection
}

// NewMongoStore creates a MongoStore over the given database.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		doubts:   db.Collection("doubts"),
		contents: db.Collection("contents"),
		courses:  db.Collection("courses"),
	}
}

// Create inserts a new doubt record.
func (s *MongoStore) Create(ctx context.Context, doubt *models.Doubt) error {
	_, err := s.doubts.InsertOne(ctx, doubt)
	return err
}

// GetByID retrieves a doubt by its ID. A missing doubt returns (nil, nil).
func (s *MongoStore) GetByID(ctx context.Context, id string) (*models.Doubt, error) {
	var doubt models.Doubt
	err := s.doubts.FindOne(ctx, bson.M{"_id": id}).Decode(&doubt)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &doubt, nil
}

// Update replaces the mutable fields of an existing doubt.
func (s *MongoStore) Update(ctx context.Context, doubt *models.Doubt) error {
	doubt.UpdatedAt = time.Now()
	filter := bson.M{"_id": doubt.ID}
	update := bson.M{
		"$set": bson.M{
			"status":          doubt.Status,
			"answer":          doubt.Answer,
			"confidence":      doubt.Confidence,
			"breakdown":       doubt.Breakdown,
			"escalated":       doubt.Escalated,
			"human_answer":    doubt.HumanAnswer,
			"answered_by":     doubt.AnsweredBy,
			"resolved_at":     doubt.ResolvedAt,
			"suggested_video": doubt.SuggestedVideo,
			"source_tag":      doubt.SourceTag,
			"updated_at":      doubt.UpdatedAt,
		},
	}
	_, err := s.doubts.UpdateOne(ctx, filter, update)
	return err
}

// List retrieves a paginated list of doubts filtered by course and/or user.
func (s *MongoStore) List(ctx context.Context, courseID, userID string, page, limit int) ([]*models.Doubt, error) {
	filter := bson.M{}
	if courseID != "" {
		filter["course_id"] = courseID
	}
	if userID != "" {
		filter["user_id"] = userID
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	opts := options.Find()
	opts.SetSort(bson.D{{Key: "created_at", Value: -1}})
	opts.SetSkip(int64((page - 1) * limit))
	opts.SetLimit(int64(limit))

	cursor, err := s.doubts.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var doubts []*models.Doubt
	if err := cursor.All(ctx, &doubts); err != nil {
		return nil, err
	}
	return doubts, nil
}

// DeleteByContent removes every doubt attached to a content item. Called by
// the cascading cleanup when material is deleted upstream.
func (s *MongoStore) DeleteByContent(ctx context.Context, contentID string) error {
	_, err := s.doubts.DeleteMany(ctx, bson.M{"content_id": contentID})
	return err
}

// GetContent retrieves a content item by ID. Missing returns (nil, nil).
func (s *MongoStore) GetContent(ctx context.Context, id string) (*models.Content, error) {
	var content models.Content
	err := s.contents.FindOne(ctx, bson.M{"_id": id}).Decode(&content)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &content, nil
}

// GetCourse retrieves a course by ID. Missing returns (nil, nil).
func (s *MongoStore) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	err := s.courses.FindOne(ctx, bson.M{"_id": id}).Decode(&course)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &course, nil
}

package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"doubtdesk/internal/config"
)

// Field names of the semantic memory collection.
const (
	FieldID         = "id"
	FieldQuestion   = "question"
	FieldAnswer     = "answer"
	FieldCourseID   = "course_id"
	FieldConfidence = "confidence"
	FieldCreatedAt  = "created_at"
	FieldEmbedding  = "embedding"
)

// Client wraps the Milvus SDK client together with its collection settings.
// It is an explicitly-lifetimed handle: construct it at startup, pass it to
// the components that need it and Close it at shutdown.
type Client struct {
	Client client.Client
	Config *config.MilvusConfig
}

// NewClient connects to Milvus and returns a handle.
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Milvus: %w", err)
	}
	return &Client{Client: c, Config: cfg}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// HealthCheck verifies the connection is usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("milvus health check failed: %w", err)
	}
	return nil
}

// EnsureCollection creates the semantic memory collection and its vector
// index if they do not exist yet.
func (c *Client) EnsureCollection(ctx context.Context) error {
	collName := c.Config.Collection

	has, err := c.Client.HasCollection(ctx, collName)
	if err != nil {
		return fmt.Errorf("failed to check collection '%s': %w", collName, err)
	}
	if has {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: collName,
		Description:    "Validated question-answer pairs, retrievable by embedding similarity",
		Fields: []*entity.Field{
			{Name: FieldID, DataType: entity.FieldTypeVarChar, PrimaryKey: true, TypeParams: map[string]string{entity.TypeParamMaxLength: "64"}},
			{Name: FieldQuestion, DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{entity.TypeParamMaxLength: "2048"}},
			{Name: FieldAnswer, DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{entity.TypeParamMaxLength: "16384"}},
			{Name: FieldCourseID, DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{entity.TypeParamMaxLength: "64"}},
			{Name: FieldConfidence, DataType: entity.FieldTypeFloat},
			{Name: FieldCreatedAt, DataType: entity.FieldTypeInt64},
			{Name: FieldEmbedding, DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{entity.TypeParamDim: fmt.Sprintf("%d", c.Config.Dim)}},
		},
	}

	if err := c.Client.CreateCollection(ctx, schema, 1); err != nil {
		return fmt.Errorf("failed to create collection '%s': %w", collName, err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, 16, 200)
	if err != nil {
		return fmt.Errorf("failed to build index definition: %w", err)
	}
	if err := c.Client.CreateIndex(ctx, collName, FieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("failed to create index on '%s': %w", collName, err)
	}

	return nil
}

// SearchQuestions runs a cosine top-k similarity search over stored question
// embeddings and returns raw SDK results. Callers apply their own floor and
// ranking on top.
func (c *Client) SearchQuestions(ctx context.Context, topK int, vector []float32) ([]client.SearchResult, error) {
	collName := c.Config.Collection

	if err := c.Client.LoadCollection(ctx, collName, false); err != nil {
		return nil, fmt.Errorf("failed to load collection '%s': %w", collName, err)
	}

	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	results, err := c.Client.Search(
		ctx,
		collName,
		nil,
		"",
		[]string{FieldID, FieldQuestion, FieldAnswer, FieldCourseID, FieldConfidence, FieldCreatedAt},
		[]entity.Vector{entity.FloatVector(vector)},
		FieldEmbedding,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search in '%s' failed: %w", collName, err)
	}

	return results, nil
}

// InsertRecord stores a question-answer row with its embedding.
func (c *Client) InsertRecord(ctx context.Context, id, question, answer, courseID string, confidence float64, createdAtUnix int64, vector []float32) error {
	cols := []entity.Column{
		entity.NewColumnVarChar(FieldID, []string{id}),
		entity.NewColumnVarChar(FieldQuestion, []string{question}),
		entity.NewColumnVarChar(FieldAnswer, []string{answer}),
		entity.NewColumnVarChar(FieldCourseID, []string{courseID}),
		entity.NewColumnFloat(FieldConfidence, []float32{float32(confidence)}),
		entity.NewColumnInt64(FieldCreatedAt, []int64{createdAtUnix}),
		entity.NewColumnFloatVector(FieldEmbedding, c.Config.Dim, [][]float32{vector}),
	}

	if _, err := c.Client.Insert(ctx, c.Config.Collection, "", cols...); err != nil {
		return fmt.Errorf("failed to insert record into Milvus: %w", err)
	}
	return nil
}

// DeleteByQuestion removes all rows whose question text matches exactly.
// Used when a human-authored answer supersedes a cached one.
func (c *Client) DeleteByQuestion(ctx context.Context, question string) error {
	expr := fmt.Sprintf("%s == %q", FieldQuestion, question)
	if err := c.Client.Delete(ctx, c.Config.Collection, "", expr); err != nil {
		return fmt.Errorf("failed to delete records from Milvus: %w", err)
	}
	return nil
}

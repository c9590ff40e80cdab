package memory

import (
	"context"
	"fmt"

	neo4jdriver "github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"doubtdesk/internal/database/neo4j"
	"doubtdesk/internal/models"
)

// GraphStore persists the relational half of semantic memory in Neo4j:
// question and answer nodes with their course, content and concept links.
type GraphStore struct {
	client *neo4j.Client
}

// NewGraphStore creates a GraphStore.
func NewGraphStore(client *neo4j.Client) *GraphStore {
	return &GraphStore{client: client}
}

// UpsertQA stores a validated question-answer pair and its links. The course
// link is exclusive: a pair links to at most one course at a time, so any
// previous BELONGS_TO edge is replaced.
func (s *GraphStore) UpsertQA(ctx context.Context, rec *models.MemoryRecord, concepts []string) error {
	_, err := s.client.ExecuteWrite(ctx, func(tx neo4jdriver.ManagedTransaction) (interface{}, error) {
		query := `
		MERGE (q:Question {text: $question})
		SET q.id = $id, q.created_at = $created_at
		MERGE (a:Answer {question_text: $question})
		SET a.text = $answer, a.confidence = $confidence, a.source = $source
		MERGE (q)-[:ANSWERED_BY]->(a)
		WITH q
		OPTIONAL MATCH (q)-[old:BELONGS_TO]->(:Course)
		DELETE old
		WITH q
		MERGE (c:Course {id: $course_id})
		MERGE (q)-[:BELONGS_TO]->(c)
		`
		params := map[string]interface{}{
			"id":         rec.ID,
			"question":   rec.Question,
			"answer":     rec.Answer,
			"confidence": rec.Confidence,
			"source":     rec.SourceTag,
			"course_id":  rec.CourseID,
			"created_at": rec.CreatedAt.Unix(),
		}
		if _, err := tx.Run(ctx, query, params); err != nil {
			return nil, err
		}

		if rec.ContentID != "" {
			contentQuery := `
			MATCH (q:Question {text: $question})
			MERGE (n:Content {id: $content_id})
			MERGE (q)-[:ASKED_ON]->(n)
			`
			if _, err := tx.Run(ctx, contentQuery, map[string]interface{}{
				"question":   rec.Question,
				"content_id": rec.ContentID,
			}); err != nil {
				return nil, err
			}
		}

		for _, concept := range concepts {
			conceptQuery := `
			MATCH (q:Question {text: $question})
			MERGE (k:Concept {name: $name})
			MERGE (q)-[:ABOUT]->(k)
			`
			if _, err := tx.Run(ctx, conceptQuery, map[string]interface{}{
				"question": rec.Question,
				"name":     concept,
			}); err != nil {
				return nil, err
			}
		}

		return nil, nil
	})

	if err != nil {
		return fmt.Errorf("failed to upsert question-answer pair: %w", err)
	}
	return nil
}

// RelatedConcepts returns the concept names linked to a content item. Used
// by the grounding builder, best-effort.
func (s *GraphStore) RelatedConcepts(ctx context.Context, contentID string) ([]string, error) {
	result, err := s.client.ExecuteRead(ctx, func(tx neo4jdriver.ManagedTransaction) (interface{}, error) {
		query := `
		MATCH (n:Content {id: $content_id})-[:COVERS]->(k:Concept)
		RETURN k.name AS name
		`
		res, err := tx.Run(ctx, query, map[string]interface{}{"content_id": contentID})
		if err != nil {
			return nil, err
		}

		var names []string
		for res.Next(ctx) {
			if name, ok := res.Record().Get("name"); ok {
				if s, ok := name.(string); ok {
					names = append(names, s)
				}
			}
		}
		return names, res.Err()
	})

	if err != nil {
		return nil, fmt.Errorf("failed to fetch related concepts: %w", err)
	}
	return result.([]string), nil
}

package memory

import (
	"context"
	"regexp"
	"strings"
	"time"

	"doubtdesk/internal/config"
	"doubtdesk/internal/database/milvus"
	"doubtdesk/internal/embedding"
	"doubtdesk/internal/models"
	"doubtdesk/pkg/logger"
)

const searchTopK = 5

// analysisRequest matches queries phrased as a request to analyze or explain
// whatever the learner is looking at; for those the grounding context is a
// better search phrase than the query itself.
var analysisRequest = regexp.MustCompile(`(?i)^\s*(explain|analy[sz]e|describe|what\s+is\s+this|what\s+does\s+this)`)

// Lookup is the cache-first semantic memory read path: an exact-key Redis
// fast path, then an embedding similarity search over the Milvus index.
type Lookup struct {
	embedder embedding.Embedding
	vec      *milvus.Client
	cache    *ExactCache
	cfg      *config.DoubtConfig
	log      *logger.Logger
}

// NewLookup creates a Lookup. The cache may be nil, disabling the fast path.
func NewLookup(embedder embedding.Embedding, vec *milvus.Client, cache *ExactCache, cfg *config.DoubtConfig, log *logger.Logger) *Lookup {
	return &Lookup{embedder: embedder, vec: vec, cache: cache, cfg: cfg, log: log}
}

// Find returns the best prior answer for the query, or nil when semantic
// memory has no acceptable match. Collaborator failures degrade to a miss;
// they never fail the request.
func (l *Lookup) Find(ctx context.Context, query, contextText, courseID, contentID string) *models.MemoryMatch {
	if l.cache != nil {
		cached, err := l.cache.Get(ctx, contentID, query, contextText)
		if err != nil {
			l.log.WithError(err).Warn("exact-match cache unavailable, falling through to vector search")
		} else if cached != nil {
			return &models.MemoryMatch{
				Record: &models.MemoryRecord{
					Question:   cached.Question,
					Answer:     cached.Answer,
					Confidence: cached.Confidence,
					SourceTag:  cached.SourceTag,
					CourseID:   courseID,
				},
				Similarity: 1.0,
				SameCourse: true,
			}
		}
	}

	searchCtx, cancel := context.WithTimeout(ctx, l.cfg.SearchTimeout())
	defer cancel()

	phrase := buildSearchPhrase(query, contextText)

	vector, err := l.embedder.Embed(searchCtx, phrase)
	if err != nil {
		l.log.WithError(err).Warn("embedding provider failed, treating lookup as a miss")
		return nil
	}

	results, err := l.vec.SearchQuestions(searchCtx, searchTopK, vector)
	if err != nil {
		l.log.WithError(err).Warn("vector search failed, treating lookup as a miss")
		return nil
	}

	var candidates []candidate
	for _, result := range results {
		questionCol := result.Fields.GetColumn(milvus.FieldQuestion)
		answerCol := result.Fields.GetColumn(milvus.FieldAnswer)
		courseCol := result.Fields.GetColumn(milvus.FieldCourseID)
		confidenceCol := result.Fields.GetColumn(milvus.FieldConfidence)
		createdCol := result.Fields.GetColumn(milvus.FieldCreatedAt)
		if questionCol == nil || answerCol == nil {
			continue
		}

		for i := 0; i < result.ResultCount; i++ {
			id, _ := result.IDs.GetAsString(i)
			question, _ := questionCol.GetAsString(i)
			answer, _ := answerCol.GetAsString(i)
			recCourse := ""
			if courseCol != nil {
				recCourse, _ = courseCol.GetAsString(i)
			}
			confidence := 0.0
			if confidenceCol != nil {
				confidence, _ = confidenceCol.GetAsDouble(i)
			}
			var createdAt int64
			if createdCol != nil {
				createdAt, _ = createdCol.GetAsInt64(i)
			}

			candidates = append(candidates, candidate{
				record: &models.MemoryRecord{
					ID:         id,
					Question:   question,
					Answer:     answer,
					CourseID:   recCourse,
					Confidence: confidence,
					CreatedAt:  time.Unix(createdAt, 0),
				},
				similarity: float64(result.Scores[i]),
			})
		}
	}

	return selectBest(candidates, courseID, l.cfg.EffectiveFloor())
}

// buildSearchPhrase chooses what to embed. Short queries and analysis-style
// requests say little on their own, so the grounding context dominates; for
// everything else the query leads and the context trails, bounded.
func buildSearchPhrase(query, contextText string) string {
	query = strings.TrimSpace(query)
	contextText = strings.TrimSpace(contextText)

	if contextText == "" {
		return query
	}

	const contextBound = 512
	if len(contextText) > contextBound {
		contextText = contextText[:contextBound]
	}

	short := len(strings.Fields(query)) < 5
	if short || analysisRequest.MatchString(query) {
		return contextText + " " + query
	}
	return query + " " + contextText
}

type candidate struct {
	record     *models.MemoryRecord
	similarity float64
}

// selectBest filters candidates against the similarity floor and picks the
// winner. Course affinity outranks raw similarity: any surviving same-course
// record beats a higher-similarity cross-course one; ties break by
// similarity descending.
func selectBest(candidates []candidate, courseID string, floor float64) *models.MemoryMatch {
	var best *models.MemoryMatch
	for _, c := range candidates {
		if c.similarity < floor {
			continue
		}

		sameCourse := courseID != "" && c.record.CourseID == courseID
		if best == nil ||
			(sameCourse && !best.SameCourse) ||
			(sameCourse == best.SameCourse && c.similarity > best.Similarity) {
			best = &models.MemoryMatch{
				Record:     c.record,
				Similarity: c.similarity,
				SameCourse: sameCourse,
			}
		}
	}
	return best
}

package writeback

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"doubtdesk/internal/config"
	"doubtdesk/internal/database/milvus"
	"doubtdesk/internal/doubt/memory"
	"doubtdesk/internal/embedding"
	"doubtdesk/internal/models"
	"doubtdesk/pkg/logger"
)

const (
	queueSize   = 64
	taskTimeout = 30 * time.Second
)

// Task is one pending semantic-memory commit.
type Task struct {
	Record      *models.MemoryRecord
	ContextText string // Grounding text used for the exact-match cache key
	Overwrite   bool   // Human-authored answers replace any prior record for the question
}

// Worker commits validated answers into semantic memory in the background.
// It is an explicit queue decoupled from the request/response cycle: the
// caller enqueues and moves on, and every failure is logged, never surfaced.
type Worker struct {
	embedder embedding.Embedding
	vec      *milvus.Client
	graph    *memory.GraphStore
	cache    *memory.ExactCache
	cfg      *config.DoubtConfig
	log      *logger.Logger

	queue chan Task
	wg    sync.WaitGroup
}

// NewWorker creates a Worker. Graph and cache may be nil; the corresponding
// halves of the writeback are then skipped.
func NewWorker(embedder embedding.Embedding, vec *milvus.Client, graph *memory.GraphStore, cache *memory.ExactCache, cfg *config.DoubtConfig, log *logger.Logger) *Worker {
	return &Worker{
		embedder: embedder,
		vec:      vec,
		graph:    graph,
		cache:    cache,
		cfg:      cfg,
		log:      log,
		queue:    make(chan Task, queueSize),
	}
}

// Start launches the background loop. It drains until Stop is called.
func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for task := range w.queue {
			w.process(task)
		}
	}()
}

// Stop closes the queue and waits for in-flight tasks to finish.
func (w *Worker) Stop() {
	close(w.queue)
	w.wg.Wait()
}

// Enqueue schedules a commit. Records below the writeback threshold are
// refused; a full queue drops the task with a log line rather than blocking
// the response path.
func (w *Worker) Enqueue(task Task) bool {
	if task.Record == nil || task.Record.Confidence < w.cfg.WritebackThreshold {
		return false
	}

	select {
	case w.queue <- task:
		return true
	default:
		w.log.Warn("writeback queue full, dropping task")
		return false
	}
}

func (w *Worker) process(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	rec := task.Record
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	// A failed re-embed aborts the commit silently; the original response
	// has already been served.
	vector, err := w.embedder.Embed(ctx, rec.Question)
	if err != nil {
		w.log.WithError(err).Warn("writeback aborted: embedding failed")
		return
	}
	rec.Embedding = vector

	if task.Overwrite {
		if err := w.vec.DeleteByQuestion(ctx, rec.Question); err != nil {
			w.log.WithError(err).Warn("failed to delete superseded record, inserting anyway")
		}
	}

	if err := w.vec.InsertRecord(ctx, rec.ID, rec.Question, rec.Answer, rec.CourseID, rec.Confidence, rec.CreatedAt.Unix(), vector); err != nil {
		w.log.WithError(err).Error("writeback failed: vector insert")
		return
	}

	if w.graph != nil {
		if err := w.graph.UpsertQA(ctx, rec, DeriveConcepts(rec.Question)); err != nil {
			w.log.WithError(err).Error("writeback failed: graph upsert")
		}
	}

	if w.cache != nil {
		cached := &memory.CachedAnswer{
			Question:   rec.Question,
			Answer:     rec.Answer,
			Confidence: rec.Confidence,
			SourceTag:  rec.SourceTag,
		}
		if err := w.cache.Put(ctx, rec.ContentID, rec.Question, task.ContextText, cached); err != nil {
			w.log.WithError(err).Warn("writeback: failed to prime exact-match cache")
		}
	}
}

// DeriveConcepts extracts candidate concept names from a question by keeping
// whitespace tokens longer than 5 characters, capitalized. This is
// best-effort tagging, not entity extraction.
func DeriveConcepts(question string) []string {
	seen := make(map[string]struct{})
	var concepts []string

	for _, token := range strings.Fields(question) {
		token = strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len(token) <= 5 {
			continue
		}

		name := capitalize(token)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		concepts = append(concepts, name)
	}

	return concepts
}

func capitalize(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

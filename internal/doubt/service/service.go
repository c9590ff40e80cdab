package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"doubtdesk/internal/config"
	"doubtdesk/internal/doubt/generator"
	"doubtdesk/internal/doubt/grounding"
	"doubtdesk/internal/doubt/scoring"
	"doubtdesk/internal/doubt/store"
	"doubtdesk/internal/doubt/writeback"
	"doubtdesk/internal/llm"
	"doubtdesk/internal/models"
	"doubtdesk/internal/notify"
	"doubtdesk/pkg/logger"
	"doubtdesk/pkg/ratelimiter"
)

// Service-level sentinel errors.
var (
	ErrDoubtNotFound     = errors.New("doubt not found")
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	ErrQuotaExceeded     = errors.New(QuotaMessage)
)

// QuotaMessage is the fixed, non-retryable rejection for the anonymous path.
const QuotaMessage = "Daily question limit reached. Please try again tomorrow."

// Matcher is the semantic memory read path.
type Matcher interface {
	Find(ctx context.Context, query, contextText, courseID, contentID string) *models.MemoryMatch
}

// AnswerGenerator produces an answer for a substantive query.
type AnswerGenerator interface {
	Generate(ctx context.Context, in *generator.Input) (*generator.Result, error)
}

// Committer schedules semantic-memory writebacks.
type Committer interface {
	Enqueue(task writeback.Task) bool
}

// VideoSearcher is the supplementary-video collaborator.
type VideoSearcher interface {
	Search(ctx context.Context, topic string) ([]models.VideoSuggestion, error)
}

// AskInput is a doubt submission from an authenticated learner.
type AskInput struct {
	UserID       string
	CourseID     string
	ContentID    string
	Query        string
	SelectedText string
	ContextText  string
	VisualRegion *models.VisualRegion
	Language     string
	UserAPIKey   string

	// Guest-path metadata; empty on the authenticated path.
	InstitutionCode string
	MediaURL        string
	MediaType       string
}

// AnonymousInput is a doubt submission from the stateless guest path.
type AnonymousInput struct {
	Query           string
	InstitutionCode string
	MediaURL        string
	MediaType       string
	GuestID         string
}

// AskResult is what the caller gets back.
type AskResult struct {
	Doubt      *models.Doubt
	FromCache  bool
	Saved      bool // Whether a writeback was scheduled
	Source     string
	Confidence float64
}

// Service drives a doubt from creation to resolution or escalation. Each
// inbound question is an independent unit of work; the only shared state is
// the semantic memory store and the in-flight registry used for cancellation.
type Service struct {
	grounder  *grounding.Builder
	matcher   Matcher
	generator AnswerGenerator
	committer Committer
	doubts    store.DoubtStore
	contents  store.ContentStore
	courses   store.CourseStore
	videos    VideoSearcher
	notifier  notify.Notifier
	quota     ratelimiter.KeyedRateLimiter
	cfg       *config.DoubtConfig
	llmCfg    *config.LLMConfig
	log       *logger.Logger

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// NewService wires the pipeline together. Videos, notifier and quota may be
// nil; the corresponding features then degrade gracefully.
func NewService(
	grounder *grounding.Builder,
	matcher Matcher,
	gen AnswerGenerator,
	committer Committer,
	doubts store.DoubtStore,
	contents store.ContentStore,
	courses store.CourseStore,
	videos VideoSearcher,
	notifier notify.Notifier,
	quota ratelimiter.KeyedRateLimiter,
	cfg *config.DoubtConfig,
	llmCfg *config.LLMConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		grounder:  grounder,
		matcher:   matcher,
		generator: gen,
		committer: committer,
		doubts:    doubts,
		contents:  contents,
		courses:   courses,
		videos:    videos,
		notifier:  notifier,
		quota:     quota,
		cfg:       cfg,
		llmCfg:    llmCfg,
		log:       log,
		inflight:  make(map[string]context.CancelFunc),
	}
}

// Ask runs the full resolution pipeline: grounding, cache-first lookup,
// generation on a miss, scoring, lifecycle decision and (asynchronously)
// writeback and video suggestion.
func (s *Service) Ask(ctx context.Context, in *AskInput) (*AskResult, error) {
	doubtID := uuid.New().String()

	ctx, cancel := context.WithCancel(ctx)
	s.register(doubtID, cancel)
	defer s.unregister(doubtID)

	now := time.Now()
	doubt := &models.Doubt{
		ID:              doubtID,
		UserID:          in.UserID,
		CourseID:        in.CourseID,
		ContentID:       in.ContentID,
		Query:           in.Query,
		SelectedText:    in.SelectedText,
		VisualRegion:    in.VisualRegion,
		InstitutionCode: in.InstitutionCode,
		MediaURL:        in.MediaURL,
		MediaType:       in.MediaType,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	content, courseName := s.loadReferences(ctx, in.CourseID, in.ContentID)

	g := s.buildGrounding(ctx, in, content, courseName)
	doubt.Grounding = g

	contextText := g.Window
	if contextText == "" {
		contextText = in.ContextText
	}

	// Cache-first: semantic memory is consulted before any model call.
	if match := s.matcher.Find(ctx, in.Query, contextText, in.CourseID, in.ContentID); match != nil {
		return s.resolveFromMemory(ctx, doubt, match)
	}

	genIn := &generator.Input{
		Query:     in.Query,
		Grounding: g,
		Language:  in.Language,
	}
	if content != nil {
		genIn.ContentType = content.Type
		genIn.ResourceKey = content.ResourceKey
	}
	if in.UserAPIKey != "" {
		client, err := llm.NewClient(s.llmCfg.Provider, s.llmCfg.Model, in.UserAPIKey)
		if err != nil {
			return nil, err
		}
		genIn.Client = client
	}

	genTimeout := time.Duration(s.llmCfg.TimeoutSeconds) * time.Second
	if genTimeout <= 0 {
		genTimeout = 60 * time.Second
	}
	genCtx, genCancel := context.WithTimeout(ctx, genTimeout)
	res, err := s.generator.Generate(genCtx, genIn)
	genCancel()
	if err != nil {
		if ctx.Err() != nil {
			// The caller aborted while the provider call was outstanding. A
			// provider that merely overran its own deadline is not a cancel;
			// that error goes back to the caller as-is.
			s.markCancelled(doubt)
			return nil, ctx.Err()
		}
		return nil, err
	}

	breakdown := scoring.Score(scoring.Input{
		BaseConfidence:  s.llmCfg.BaseConfidence,
		HasSelectedText: g.HasSelection,
		HasContext:      contextText != "",
		HasVisual:       g.HasVisual,
		ResponseLength:  len(res.Answer),
		FormattingScore: res.FormattingScore,
	})

	doubt.Answer = res.Answer
	doubt.Confidence = breakdown.Total
	doubt.Breakdown = &breakdown
	doubt.SourceTag = models.SourceAIAPI

	saved := false
	if res.NonSubstantive {
		// Canned exchanges resolve trivially: nothing to learn, nothing to
		// suggest.
		doubt.Status = models.StatusResolved
	} else {
		if breakdown.Total >= s.cfg.AutoResolveThreshold {
			doubt.Status = models.StatusResolved
			resolvedAt := time.Now()
			doubt.ResolvedAt = &resolvedAt
		} else {
			doubt.Status = models.StatusPending
		}

		saved = s.scheduleWriteback(doubt, contextText, false)
		doubt.SuggestedVideo = s.suggestVideo(in.Query, res.Answer)
	}

	if err := s.doubts.Create(ctx, doubt); err != nil {
		return nil, fmt.Errorf("failed to persist doubt: %w", err)
	}

	return &AskResult{
		Doubt:      doubt,
		FromCache:  false,
		Saved:      saved,
		Source:     models.SourceAIAPI,
		Confidence: doubt.Confidence,
	}, nil
}

// AskAnonymous handles the stateless guest path. It enforces the per-guest
// rolling daily quota and skips course scoping and writeback.
func (s *Service) AskAnonymous(ctx context.Context, in *AnonymousInput) (*AskResult, error) {
	if s.quota != nil && !s.quota.AllowKey(in.GuestID) {
		return nil, ErrQuotaExceeded
	}

	return s.Ask(ctx, &AskInput{
		UserID:          "guest:" + in.GuestID,
		Query:           in.Query,
		InstitutionCode: in.InstitutionCode,
		MediaURL:        in.MediaURL,
		MediaType:       in.MediaType,
	})
}

// Escalate moves a doubt into the instructor queue and fans out a
// notification to every instructor of its course. It is student-initiated
// and allowed regardless of prior confidence; terminal human outcomes are
// the only states it cannot leave.
func (s *Service) Escalate(ctx context.Context, doubtID string) (*models.Doubt, error) {
	doubt, err := s.doubts.GetByID(ctx, doubtID)
	if err != nil {
		return nil, err
	}
	if doubt == nil {
		return nil, ErrDoubtNotFound
	}
	if doubt.Status == models.StatusAnswered || doubt.Status == models.StatusCancelled {
		return nil, fmt.Errorf("%w: cannot escalate a doubt in state %q", ErrInvalidTransition, doubt.Status)
	}

	doubt.Status = models.StatusEscalated
	doubt.Escalated = true
	if err := s.doubts.Update(ctx, doubt); err != nil {
		return nil, err
	}

	s.notifyInstructors(ctx, doubt)
	return doubt, nil
}

// AnswerHuman records an instructor's answer: the doubt becomes answered
// with a resolution timestamp, the asker is notified and, when requested,
// the answer is committed to semantic memory at confidence 100.
func (s *Service) AnswerHuman(ctx context.Context, doubtID, instructorID, answerText string, saveToMemory bool) (*models.Doubt, error) {
	doubt, err := s.doubts.GetByID(ctx, doubtID)
	if err != nil {
		return nil, err
	}
	if doubt == nil {
		return nil, ErrDoubtNotFound
	}
	if doubt.Status == models.StatusCancelled {
		return nil, fmt.Errorf("%w: cannot answer a cancelled doubt", ErrInvalidTransition)
	}

	now := time.Now()
	doubt.HumanAnswer = answerText
	doubt.AnsweredBy = instructorID
	doubt.Status = models.StatusAnswered
	doubt.ResolvedAt = &now
	doubt.Confidence = 100
	breakdown := scoring.Score(scoring.Input{
		BaseConfidence:  100,
		Verified:        true,
		HasSelectedText: doubt.Grounding != nil && doubt.Grounding.HasSelection,
		HasContext:      doubt.Grounding != nil && doubt.Grounding.Window != "",
		HasVisual:       doubt.Grounding != nil && doubt.Grounding.HasVisual,
		ResponseLength:  len(answerText),
		FormattingScore: generator.FormattingScore(answerText),
	})
	doubt.Breakdown = &breakdown

	if err := s.doubts.Update(ctx, doubt); err != nil {
		return nil, err
	}

	if saveToMemory {
		contextText := ""
		if doubt.Grounding != nil {
			contextText = doubt.Grounding.Window
		}
		// Human answers always qualify; overwrite-wins over any prior
		// lower-confidence record for the same question text.
		s.committer.Enqueue(writeback.Task{
			Record: &models.MemoryRecord{
				Question:   doubt.Query,
				Answer:     answerText,
				CourseID:   doubt.CourseID,
				ContentID:  doubt.ContentID,
				Confidence: 100,
				SourceTag:  models.SourceKnowledgeGraph,
			},
			ContextText: contextText,
			Overwrite:   true,
		})
	}

	if s.notifier != nil {
		n := &models.Notification{
			RecipientID: doubt.UserID,
			Event:       models.EventDoubtAnswered,
			Payload:     map[string]any{"doubtId": doubt.ID},
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.log.WithError(err).Warn("failed to notify asker about human answer")
		}
	}

	return doubt, nil
}

// Cancel aborts an in-flight doubt: the outstanding provider call is
// actively cancelled and the doubt lands in the terminal cancelled state.
func (s *Service) Cancel(ctx context.Context, doubtID string) error {
	s.mu.Lock()
	cancel, running := s.inflight[doubtID]
	s.mu.Unlock()

	if running {
		cancel()
		return nil
	}

	doubt, err := s.doubts.GetByID(ctx, doubtID)
	if err != nil {
		return err
	}
	if doubt == nil {
		return ErrDoubtNotFound
	}
	if doubt.Status == models.StatusAnswered || doubt.Status == models.StatusResolved {
		return fmt.Errorf("%w: cannot cancel a doubt in state %q", ErrInvalidTransition, doubt.Status)
	}

	doubt.Status = models.StatusCancelled
	return s.doubts.Update(ctx, doubt)
}

// Get returns a doubt by ID.
func (s *Service) Get(ctx context.Context, doubtID string) (*models.Doubt, error) {
	doubt, err := s.doubts.GetByID(ctx, doubtID)
	if err != nil {
		return nil, err
	}
	if doubt == nil {
		return nil, ErrDoubtNotFound
	}
	return doubt, nil
}

// List returns doubts filtered by course and/or user.
func (s *Service) List(ctx context.Context, courseID, userID string, page, limit int) ([]*models.Doubt, error) {
	return s.doubts.List(ctx, courseID, userID, page, limit)
}

// PurgeContent removes every doubt attached to a content item. Called when
// course material is deleted upstream; memory records survive because they
// are keyed by question, not by content.
func (s *Service) PurgeContent(ctx context.Context, contentID string) error {
	return s.doubts.DeleteByContent(ctx, contentID)
}

func (s *Service) register(doubtID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[doubtID] = cancel
}

func (s *Service) unregister(doubtID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, doubtID)
}

func (s *Service) loadReferences(ctx context.Context, courseID, contentID string) (*models.Content, string) {
	var content *models.Content
	courseName := ""

	if contentID != "" && s.contents != nil {
		c, err := s.contents.GetContent(ctx, contentID)
		if err != nil {
			s.log.WithError(err).Warn("failed to load content, grounding with reduced context")
		} else {
			content = c
		}
	}

	if courseID != "" && s.courses != nil {
		course, err := s.courses.GetCourse(ctx, courseID)
		if err != nil {
			s.log.WithError(err).Warn("failed to load course name")
		} else if course != nil {
			courseName = course.Name
		}
	}

	return content, courseName
}

func (s *Service) buildGrounding(ctx context.Context, in *AskInput, content *models.Content, courseName string) *models.GroundingContext {
	gin := &grounding.Input{
		Query:        in.Query,
		SelectedText: in.SelectedText,
		Region:       in.VisualRegion,
		ContentID:    in.ContentID,
		CourseName:   courseName,
	}
	if content != nil {
		gin.ContentType = content.Type
		gin.ContentName = content.Name
		gin.FullText = content.ExtractedText
	} else if in.MediaType != "" {
		// Guest asks carry a self-declared media type instead of a stored
		// content record; it still selects the windowing strategy.
		gin.ContentType = in.MediaType
	}
	if gin.FullText == "" {
		gin.FullText = in.ContextText
	}
	return s.grounder.Build(ctx, gin)
}

func (s *Service) resolveFromMemory(ctx context.Context, doubt *models.Doubt, match *models.MemoryMatch) (*AskResult, error) {
	confidence := match.Similarity * 100

	doubt.Answer = match.Record.Answer
	doubt.Confidence = confidence
	doubt.SourceTag = models.SourceKnowledgeGraph
	doubt.FromCache = true
	doubt.Breakdown = &models.ConfidenceBreakdown{
		BaseModel: confidence,
		Total:     confidence,
		Label:     scoring.Label(confidence),
	}

	if confidence >= s.cfg.CacheResolveThreshold {
		doubt.Status = models.StatusResolved
		resolvedAt := time.Now()
		doubt.ResolvedAt = &resolvedAt
	} else {
		doubt.Status = models.StatusPending
	}

	doubt.SuggestedVideo = s.suggestVideo(doubt.Query, doubt.Answer)

	if err := s.doubts.Create(ctx, doubt); err != nil {
		return nil, fmt.Errorf("failed to persist doubt: %w", err)
	}

	return &AskResult{
		Doubt:      doubt,
		FromCache:  true,
		Saved:      false,
		Source:     models.SourceKnowledgeGraph,
		Confidence: confidence,
	}, nil
}

func (s *Service) scheduleWriteback(doubt *models.Doubt, contextText string, overwrite bool) bool {
	if doubt.Confidence < s.cfg.WritebackThreshold || doubt.CourseID == "" {
		return false
	}
	return s.committer.Enqueue(writeback.Task{
		Record: &models.MemoryRecord{
			Question:   doubt.Query,
			Answer:     doubt.Answer,
			CourseID:   doubt.CourseID,
			ContentID:  doubt.ContentID,
			Confidence: doubt.Confidence,
			SourceTag:  doubt.SourceTag,
		},
		ContextText: contextText,
		Overwrite:   overwrite,
	})
}

var answerHeading = regexp.MustCompile(`(?m)^#{1,3}\s+(.+)$`)

// suggestVideo asks the video-search collaborator for a supplementary video.
// It runs after the primary answer is available and is strictly best-effort:
// its own short timeout, and "no video" on any failure.
func (s *Service) suggestVideo(query, answer string) *models.VideoSuggestion {
	if s.videos == nil {
		return nil
	}

	topic := query
	if m := answerHeading.FindStringSubmatch(answer); m != nil {
		topic = strings.TrimSpace(m[1])
	}

	videoCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	videos, err := s.videos.Search(videoCtx, topic)
	if err != nil {
		s.log.WithError(err).Warn("video suggestion failed, continuing without one")
		return nil
	}
	if len(videos) == 0 {
		return nil
	}
	return &videos[0]
}

func (s *Service) markCancelled(doubt *models.Doubt) {
	doubt.Status = models.StatusCancelled

	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.doubts.Create(saveCtx, doubt); err != nil {
		s.log.WithError(err).Warn("failed to record cancelled doubt")
	}
}

func (s *Service) notifyInstructors(ctx context.Context, doubt *models.Doubt) {
	if s.notifier == nil || s.courses == nil {
		return
	}

	course, err := s.courses.GetCourse(ctx, doubt.CourseID)
	if err != nil || course == nil {
		s.log.Warn("could not load instructor roster for escalation notification")
		return
	}

	for _, instructorID := range course.InstructorIDs {
		n := &models.Notification{
			RecipientID: instructorID,
			Event:       models.EventDoubtEscalated,
			Payload: map[string]any{
				"doubtId":  doubt.ID,
				"courseId": doubt.CourseID,
				"query":    doubt.Query,
			},
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.log.WithError(err).Warn("failed to notify instructor about escalation")
		}
	}
}

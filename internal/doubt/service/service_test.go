package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"doubtdesk/internal/config"
	"doubtdesk/internal/doubt/generator"
	"doubtdesk/internal/doubt/grounding"
	"doubtdesk/internal/doubt/writeback"
	"doubtdesk/internal/models"
	"doubtdesk/pkg/logger"
)

type fakeMatcher struct {
	match *models.MemoryMatch
}

func (f *fakeMatcher) Find(ctx context.Context, query, contextText, courseID, contentID string) *models.MemoryMatch {
	return f.match
}

type fakeGenerator struct {
	result  *generator.Result
	err     error
	calls   int
	lastCtx context.Context
}

func (f *fakeGenerator) Generate(ctx context.Context, in *generator.Input) (*generator.Result, error) {
	f.calls++
	f.lastCtx = ctx
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeCommitter struct {
	tasks []writeback.Task
}

func (f *fakeCommitter) Enqueue(task writeback.Task) bool {
	f.tasks = append(f.tasks, task)
	return true
}

type fakeDoubtStore struct {
	mu     sync.Mutex
	doubts map[string]*models.Doubt
}

func newFakeDoubtStore() *fakeDoubtStore {
	return &fakeDoubtStore{doubts: make(map[string]*models.Doubt)}
}

func (f *fakeDoubtStore) Create(ctx context.Context, doubt *models.Doubt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doubts[doubt.ID] = doubt
	return nil
}

func (f *fakeDoubtStore) GetByID(ctx context.Context, id string) (*models.Doubt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doubts[id], nil
}

func (f *fakeDoubtStore) Update(ctx context.Context, doubt *models.Doubt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doubts[doubt.ID] = doubt
	return nil
}

func (f *fakeDoubtStore) List(ctx context.Context, courseID, userID string, page, limit int) ([]*models.Doubt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Doubt
	for _, d := range f.doubts {
		if courseID != "" && d.CourseID != courseID {
			continue
		}
		if userID != "" && d.UserID != userID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDoubtStore) DeleteByContent(ctx context.Context, contentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, d := range f.doubts {
		if d.ContentID == contentID {
			delete(f.doubts, id)
		}
	}
	return nil
}

type fakeContentStore struct {
	content *models.Content
}

func (f *fakeContentStore) GetContent(ctx context.Context, id string) (*models.Content, error) {
	return f.content, nil
}

type fakeCourseStore struct {
	course *models.Course
}

func (f *fakeCourseStore) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	return f.course, nil
}

type fakeNotifier struct {
	sent []*models.Notification
}

func (f *fakeNotifier) Notify(ctx context.Context, n *models.Notification) error {
	f.sent = append(f.sent, n)
	return nil
}

type fakeVideos struct {
	videos []models.VideoSuggestion
	calls  int
}

func (f *fakeVideos) Search(ctx context.Context, topic string) ([]models.VideoSuggestion, error) {
	f.calls++
	if f.videos == nil {
		return nil, errors.New("video collaborator down")
	}
	return f.videos, nil
}

type fakeQuota struct {
	allow bool
}

func (f *fakeQuota) AllowKey(key string) bool { return f.allow }

func testDoubtConfig() *config.DoubtConfig {
	return &config.DoubtConfig{
		SimilarityFloor:       0.75,
		SimilarityFloorStrict: 0.85,
		AutoResolveThreshold:  80,
		CacheResolveThreshold: 85,
		WritebackThreshold:    80,
		GuestDailyQuota:       3,
		WordsPerSecond:        2.5,
		WindowSeconds:         30,
		FallbackChars:         1500,
		SearchTimeoutSeconds:  15,
		ConceptTimeoutSeconds: 3,
	}
}

func testLLMConfig() *config.LLMConfig {
	return &config.LLMConfig{Provider: "gemini", Model: "gemini-2.0-flash", BaseConfidence: 75, TimeoutSeconds: 60}
}

type serviceFixture struct {
	svc       *Service
	matcher   *fakeMatcher
	generator *fakeGenerator
	committer *fakeCommitter
	doubts    *fakeDoubtStore
	notifier  *fakeNotifier
	videos    *fakeVideos
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()

	log := logger.New("doubt-service-test", "", "")
	cfg := testDoubtConfig()

	f := &serviceFixture{
		matcher:   &fakeMatcher{},
		generator: &fakeGenerator{},
		committer: &fakeCommitter{},
		doubts:    newFakeDoubtStore(),
		notifier:  &fakeNotifier{},
		videos:    &fakeVideos{},
	}

	f.svc = NewService(
		grounding.NewBuilder(nil, cfg, log),
		f.matcher,
		f.generator,
		f.committer,
		f.doubts,
		&fakeContentStore{content: &models.Content{
			ID:       "content-1",
			CourseID: "course-1",
			Name:     "Laws of Motion",
			Type:     "pdf",
		}},
		&fakeCourseStore{course: &models.Course{
			ID:            "course-1",
			Name:          "Physics 101",
			InstructorIDs: []string{"instr-1", "instr-2"},
		}},
		f.videos,
		f.notifier,
		&fakeQuota{allow: true},
		cfg,
		testLLMConfig(),
		log,
	)
	return f
}

// A well-formed long answer: base 75*0.35 + selection 12 + context 8 +
// length 20 + formatting 100*0.20 = 86.25, above the auto-resolve threshold.
var richAnswer = "# Newton's Second Law\n\n" + strings.Repeat("Force equals mass times acceleration. ", 12)

func TestAskHighConfidenceResolves(t *testing.T) {
	f := newFixture(t)
	f.generator.result = &generator.Result{Answer: richAnswer, FormattingScore: 100}

	res, err := f.svc.Ask(context.Background(), &AskInput{
		UserID:       "user-1",
		CourseID:     "course-1",
		ContentID:    "content-1",
		Query:        "Can you explain Newton's second law?",
		SelectedText: "F = ma relates force, mass and acceleration",
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if res.Doubt.Status != models.StatusResolved {
		t.Errorf("status = %q, want %q (confidence %.2f)", res.Doubt.Status, models.StatusResolved, res.Confidence)
	}
	if res.Doubt.ResolvedAt == nil {
		t.Error("expected a resolution timestamp on auto-resolve")
	}
	if !res.Saved {
		t.Error("expected a writeback to be scheduled above the threshold")
	}
	if len(f.committer.tasks) != 1 {
		t.Fatalf("writeback tasks = %d, want 1", len(f.committer.tasks))
	}
	if f.committer.tasks[0].Overwrite {
		t.Error("machine answers must not overwrite prior records")
	}
	if res.Source != models.SourceAIAPI {
		t.Errorf("source = %q, want %q", res.Source, models.SourceAIAPI)
	}
	if res.FromCache {
		t.Error("a generated answer must not be flagged as cached")
	}
}

func TestAskLowConfidenceStaysPending(t *testing.T) {
	f := newFixture(t)
	f.generator.result = &generator.Result{Answer: "It is F = ma.", FormattingScore: 0}

	res, err := f.svc.Ask(context.Background(), &AskInput{
		UserID:   "user-1",
		CourseID: "course-1",
		Query:    "Can you explain Newton's second law?",
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if res.Doubt.Status != models.StatusPending {
		t.Errorf("status = %q, want %q (confidence %.2f)", res.Doubt.Status, models.StatusPending, res.Confidence)
	}
	if res.Doubt.ResolvedAt != nil {
		t.Error("pending doubts must not carry a resolution timestamp")
	}
	if res.Saved || len(f.committer.tasks) != 0 {
		t.Error("low-confidence answers must not be written back")
	}
}

func TestAskCacheHitResolvesWithoutGeneration(t *testing.T) {
	f := newFixture(t)
	f.matcher.match = &models.MemoryMatch{
		Record: &models.MemoryRecord{
			Question:   "Can you explain Newton's second law?",
			Answer:     "F = ma: acceleration is proportional to net force.",
			CourseID:   "course-1",
			Confidence: 90,
		},
		Similarity: 0.90,
		SameCourse: true,
	}

	res, err := f.svc.Ask(context.Background(), &AskInput{
		UserID:   "user-1",
		CourseID: "course-1",
		Query:    "Can you explain Newton's second law?",
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if f.generator.calls != 0 {
		t.Errorf("generator called %d times on a memory hit, want 0", f.generator.calls)
	}
	if !res.FromCache {
		t.Error("expected FromCache on a memory hit")
	}
	if res.Source != models.SourceKnowledgeGraph {
		t.Errorf("source = %q, want %q", res.Source, models.SourceKnowledgeGraph)
	}
	if res.Confidence != 90 {
		t.Errorf("confidence = %.2f, want 90 (similarity * 100)", res.Confidence)
	}
	if res.Doubt.Status != models.StatusResolved {
		t.Errorf("status = %q, want %q", res.Doubt.Status, models.StatusResolved)
	}
	if res.Saved || len(f.committer.tasks) != 0 {
		t.Error("memory hits must not trigger a second writeback")
	}
}

func TestAskCacheHitBelowThresholdStaysPending(t *testing.T) {
	f := newFixture(t)
	f.matcher.match = &models.MemoryMatch{
		Record:     &models.MemoryRecord{Answer: "F = ma.", CourseID: "course-1", Confidence: 80},
		Similarity: 0.80,
		SameCourse: true,
	}

	res, err := f.svc.Ask(context.Background(), &AskInput{
		UserID:   "user-1",
		CourseID: "course-1",
		Query:    "Newton's second law?",
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if res.Doubt.Status != models.StatusPending {
		t.Errorf("status = %q, want %q", res.Doubt.Status, models.StatusPending)
	}
}

func TestAskNonSubstantiveSkipsWritebackAndVideo(t *testing.T) {
	f := newFixture(t)
	f.generator.result = &generator.Result{
		Answer:         "Hello! Ask me anything about your course material.",
		NonSubstantive: true,
	}

	res, err := f.svc.Ask(context.Background(), &AskInput{UserID: "user-1", Query: "hi"})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if res.Doubt.Status != models.StatusResolved {
		t.Errorf("status = %q, want %q", res.Doubt.Status, models.StatusResolved)
	}
	if len(f.committer.tasks) != 0 {
		t.Error("canned exchanges must not be written back")
	}
	if f.videos.calls != 0 {
		t.Error("canned exchanges must not trigger a video lookup")
	}
}

func TestAskVideoFailureDoesNotFailAnswer(t *testing.T) {
	f := newFixture(t)
	f.generator.result = &generator.Result{Answer: richAnswer, FormattingScore: 100}
	f.videos.videos = nil // collaborator errors out

	res, err := f.svc.Ask(context.Background(), &AskInput{
		UserID:   "user-1",
		CourseID: "course-1",
		Query:    "Explain torque.",
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if res.Doubt.SuggestedVideo != nil {
		t.Error("expected no video suggestion when the collaborator fails")
	}
	if res.Doubt.Answer == "" {
		t.Error("answer must survive a video-collaborator failure")
	}
}

func TestAskAttachesVideoSuggestion(t *testing.T) {
	f := newFixture(t)
	f.generator.result = &generator.Result{Answer: richAnswer, FormattingScore: 100}
	f.videos.videos = []models.VideoSuggestion{
		{ID: "v1", URL: "https://videos.example/v1", Title: "Newton's Laws Explained"},
		{ID: "v2", URL: "https://videos.example/v2", Title: "More Mechanics"},
	}

	res, err := f.svc.Ask(context.Background(), &AskInput{
		UserID:   "user-1",
		CourseID: "course-1",
		Query:    "Explain Newton's second law.",
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if res.Doubt.SuggestedVideo == nil || res.Doubt.SuggestedVideo.ID != "v1" {
		t.Errorf("expected the top-ranked video, got %+v", res.Doubt.SuggestedVideo)
	}
}

func TestEscalateNotifiesInstructors(t *testing.T) {
	f := newFixture(t)
	f.generator.result = &generator.Result{Answer: "Short.", FormattingScore: 0}

	res, err := f.svc.Ask(context.Background(), &AskInput{
		UserID:   "user-1",
		CourseID: "course-1",
		Query:    "Explain entropy.",
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	escalated, err := f.svc.Escalate(context.Background(), res.Doubt.ID)
	if err != nil {
		t.Fatalf("Escalate failed: %v", err)
	}
	if escalated.Status != models.StatusEscalated {
		t.Errorf("status = %q, want %q", escalated.Status, models.StatusEscalated)
	}
	if !escalated.Escalated {
		t.Error("expected the escalated flag to be set")
	}
	if len(f.notifier.sent) != 2 {
		t.Fatalf("notifications = %d, want one per instructor (2)", len(f.notifier.sent))
	}
	for _, n := range f.notifier.sent {
		if n.Event != models.EventDoubtEscalated {
			t.Errorf("event = %q, want %q", n.Event, models.EventDoubtEscalated)
		}
	}
}

func TestEscalateAllowedFromResolved(t *testing.T) {
	f := newFixture(t)
	f.generator.result = &generator.Result{Answer: richAnswer, FormattingScore: 100}

	res, err := f.svc.Ask(context.Background(), &AskInput{
		UserID:       "user-1",
		CourseID:     "course-1",
		Query:        "Explain Newton's second law.",
		SelectedText: "F = ma relates force, mass and acceleration",
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if res.Doubt.Status != models.StatusResolved {
		t.Fatalf("precondition: status = %q, want resolved", res.Doubt.Status)
	}

	escalated, err := f.svc.Escalate(context.Background(), res.Doubt.ID)
	if err != nil {
		t.Fatalf("Escalate on a resolved doubt failed: %v", err)
	}
	if escalated.Status != models.StatusEscalated {
		t.Errorf("status = %q, want %q", escalated.Status, models.StatusEscalated)
	}
}

func TestEscalateUnknownDoubt(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Escalate(context.Background(), "no-such-doubt"); !errors.Is(err, ErrDoubtNotFound) {
		t.Errorf("err = %v, want ErrDoubtNotFound", err)
	}
}

func TestAnswerHumanFinalizesDoubt(t *testing.T) {
	f := newFixture(t)
	f.generator.result = &generator.Result{Answer: "Short.", FormattingScore: 0}

	res, err := f.svc.Ask(context.Background(), &AskInput{
		UserID:   "user-1",
		CourseID: "course-1",
		Query:    "Explain entropy.",
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if _, err := f.svc.Escalate(context.Background(), res.Doubt.ID); err != nil {
		t.Fatalf("Escalate failed: %v", err)
	}
	f.notifier.sent = nil

	answered, err := f.svc.AnswerHuman(context.Background(), res.Doubt.ID, "instr-1",
		"Entropy measures the number of microstates consistent with a macrostate.", true)
	if err != nil {
		t.Fatalf("AnswerHuman failed: %v", err)
	}

	if answered.Status != models.StatusAnswered {
		t.Errorf("status = %q, want %q", answered.Status, models.StatusAnswered)
	}
	if answered.ResolvedAt == nil {
		t.Error("a human answer must stamp the resolution timestamp")
	}
	if answered.AnsweredBy != "instr-1" {
		t.Errorf("answeredBy = %q, want instr-1", answered.AnsweredBy)
	}
	if answered.Confidence != 100 {
		t.Errorf("confidence = %.2f, want 100", answered.Confidence)
	}

	if len(f.committer.tasks) != 1 {
		t.Fatalf("writeback tasks = %d, want 1", len(f.committer.tasks))
	}
	task := f.committer.tasks[0]
	if !task.Overwrite {
		t.Error("human answers must overwrite prior records for the same question")
	}
	if task.Record.Confidence != 100 {
		t.Errorf("record confidence = %.2f, want 100", task.Record.Confidence)
	}

	if len(f.notifier.sent) != 1 || f.notifier.sent[0].Event != models.EventDoubtAnswered {
		t.Errorf("expected a single %s notification, got %+v", models.EventDoubtAnswered, f.notifier.sent)
	}
	if f.notifier.sent[0].RecipientID != "user-1" {
		t.Errorf("notification recipient = %q, want the asker", f.notifier.sent[0].RecipientID)
	}
}

func TestAnswerHumanWithoutSaveSkipsWriteback(t *testing.T) {
	f := newFixture(t)
	f.generator.result = &generator.Result{Answer: "Short.", FormattingScore: 0}

	res, err := f.svc.Ask(context.Background(), &AskInput{UserID: "user-1", CourseID: "course-1", Query: "Explain entropy."})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if _, err := f.svc.AnswerHuman(context.Background(), res.Doubt.ID, "instr-1", "See chapter 4.", false); err != nil {
		t.Fatalf("AnswerHuman failed: %v", err)
	}
	if len(f.committer.tasks) != 0 {
		t.Error("saveToMemory=false must not enqueue a writeback")
	}
}

func TestCancelPendingDoubt(t *testing.T) {
	f := newFixture(t)
	f.generator.result = &generator.Result{Answer: "Short.", FormattingScore: 0}

	res, err := f.svc.Ask(context.Background(), &AskInput{UserID: "user-1", CourseID: "course-1", Query: "Explain entropy."})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if err := f.svc.Cancel(context.Background(), res.Doubt.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	got, err := f.svc.Get(context.Background(), res.Doubt.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.StatusCancelled {
		t.Errorf("status = %q, want %q", got.Status, models.StatusCancelled)
	}
}

func TestCancelResolvedDoubtRejected(t *testing.T) {
	f := newFixture(t)
	f.generator.result = &generator.Result{Answer: richAnswer, FormattingScore: 100}

	res, err := f.svc.Ask(context.Background(), &AskInput{
		UserID:       "user-1",
		CourseID:     "course-1",
		Query:        "Explain Newton's second law.",
		SelectedText: "F = ma relates force, mass and acceleration",
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if err := f.svc.Cancel(context.Background(), res.Doubt.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestAskAnonymousQuotaExceeded(t *testing.T) {
	f := newFixture(t)
	f.svc.quota = &fakeQuota{allow: false}

	_, err := f.svc.AskAnonymous(context.Background(), &AnonymousInput{Query: "What is inertia?", GuestID: "guest-7"})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	if err.Error() != QuotaMessage {
		t.Errorf("quota rejection message = %q, want the fixed message", err.Error())
	}
}

func TestAskAnonymousWithinQuota(t *testing.T) {
	f := newFixture(t)
	f.generator.result = &generator.Result{Answer: "Inertia resists changes in motion.", FormattingScore: 0}

	res, err := f.svc.AskAnonymous(context.Background(), &AnonymousInput{
		Query:           "What is inertia?",
		GuestID:         "guest-7",
		InstitutionCode: "inst-42",
		MediaURL:        "https://media.example/lecture.mp4",
		MediaType:       "video",
	})
	if err != nil {
		t.Fatalf("AskAnonymous failed: %v", err)
	}
	if res.Doubt.UserID != "guest:guest-7" {
		t.Errorf("userID = %q, want the prefixed guest identity", res.Doubt.UserID)
	}
	if len(f.committer.tasks) != 0 {
		t.Error("anonymous asks have no course scope and must not be written back")
	}
	if res.Doubt.InstitutionCode != "inst-42" {
		t.Errorf("institutionCode = %q, want it preserved on the audit record", res.Doubt.InstitutionCode)
	}
	if res.Doubt.MediaURL != "https://media.example/lecture.mp4" || res.Doubt.MediaType != "video" {
		t.Errorf("media fields = %q/%q, want them preserved on the audit record", res.Doubt.MediaURL, res.Doubt.MediaType)
	}
}

func TestAskGenerationRunsUnderDeadline(t *testing.T) {
	f := newFixture(t)
	f.generator.result = &generator.Result{Answer: "Short.", FormattingScore: 0}

	before := time.Now()
	if _, err := f.svc.Ask(context.Background(), &AskInput{UserID: "user-1", Query: "Explain entropy."}); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	deadline, ok := f.generator.lastCtx.Deadline()
	if !ok {
		t.Fatal("generation context must carry a deadline")
	}
	if remaining := deadline.Sub(before); remaining <= 0 || remaining > 61*time.Second {
		t.Errorf("generation deadline %v from call time, want within the configured 60s", remaining)
	}
}

func TestAskGenerationTimeoutIsNotACancel(t *testing.T) {
	f := newFixture(t)
	f.generator.err = context.DeadlineExceeded

	_, err := f.svc.Ask(context.Background(), &AskInput{UserID: "user-1", Query: "Explain entropy."})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want the deadline error surfaced", err)
	}

	// The caller never cancelled, so no cancelled doubt may be recorded.
	f.doubts.mu.Lock()
	defer f.doubts.mu.Unlock()
	for _, d := range f.doubts.doubts {
		if d.Status == models.StatusCancelled {
			t.Error("a provider timeout must not record the doubt as cancelled")
		}
	}
}

func TestAskProviderErrorSurfaces(t *testing.T) {
	f := newFixture(t)
	wantErr := errors.New("model unavailable")
	f.generator.err = wantErr

	_, err := f.svc.Ask(context.Background(), &AskInput{UserID: "user-1", Query: "Explain entropy."})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want the provider error", err)
	}
}

package interview

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/interviewer/internal/content"
	"github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/store"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewService(s, content.NewGenerator(nil), nil), s
}

// stepClock advances by step on every call.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := cur
		cur = cur.Add(step)
		return t
	}
}

func TestStartGeneric(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.Start(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.TotalQuestions != content.FallbackQuestionCount {
		t.Errorf("expected %d questions, got %d", content.FallbackQuestionCount, res.TotalQuestions)
	}
	if res.QuestionIndex != 0 || res.CurrentQuestion != res.Session.Questions[0] {
		t.Errorf("expected first question at index 0, got %d %q", res.QuestionIndex, res.CurrentQuestion)
	}
	if res.Session.Role != GenericRole || res.Session.Difficulty != model.DifficultyMedium {
		t.Errorf("expected generic context, got role=%q difficulty=%q", res.Session.Role, res.Session.Difficulty)
	}
	if res.Session.Status != model.StatusInProgress || res.Session.JobID != nil {
		t.Errorf("unexpected session state %+v", res.Session)
	}
}

func TestStartWithJob(t *testing.T) {
	svc, s := newTestService(t)
	if err := s.UpsertJob(model.Job{ID: "j1", Title: "Platform Engineer", Description: "Run Kubernetes"}); err != nil {
		t.Fatalf("UpsertJob: %v", err)
	}
	if err := s.UpsertJob(model.Job{ID: "j2", Title: "SRE", Difficulty: model.DifficultyHard, Skills: []string{"linux"}}); err != nil {
		t.Fatalf("UpsertJob: %v", err)
	}
	ctx := context.Background()

	res, err := svc.Start(ctx, "u1", "j1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	sess := res.Session
	if sess.JobID == nil || *sess.JobID != "j1" || sess.Role != "Platform Engineer" {
		t.Errorf("expected job context, got %+v", sess)
	}
	if sess.Difficulty != model.DifficultyMedium {
		t.Errorf("expected derived MEDIUM difficulty, got %q", sess.Difficulty)
	}

	res, err = svc.Start(ctx, "u1", "j2")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.Session.Difficulty != model.DifficultyHard || len(res.Session.ExtractedSkills) != 1 {
		t.Errorf("expected job difficulty and skills, got %+v", res.Session)
	}

	res, err = svc.Start(ctx, "u1", "missing")
	if err != nil {
		t.Fatalf("Start with unknown job: %v", err)
	}
	if res.Session.Role != GenericRole || res.Session.JobID != nil {
		t.Errorf("expected generic fallback for unknown job, got %+v", res.Session)
	}
}

func TestSubmitAnswerLifecycle(t *testing.T) {
	svc, s := newTestService(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = stepClock(start, 30*time.Second)

	completed := make(chan string, 1)
	svc.OnComplete = func(sessionID, _ string) { completed <- sessionID }

	ctx := context.Background()
	res, err := svc.Start(ctx, "u1", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := res.Session.ID
	total := res.TotalQuestions

	if _, err := svc.SubmitAnswer(ctx, id, "u2", "not mine to answer"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other user, got %v", err)
	}

	for i := 0; i < total-1; i++ {
		answer := "A detailed answer describing a real project and the code I wrote."
		if i == 2 {
			answer = ""
		}
		sub, err := svc.SubmitAnswer(ctx, id, "u1", answer)
		if err != nil {
			t.Fatalf("SubmitAnswer %d: %v", i, err)
		}
		if sub.IsCompleted {
			t.Fatalf("completed early at answer %d", i)
		}
		if sub.QuestionIndex != i+1 || sub.NextQuestion != res.Session.Questions[i+1] {
			t.Errorf("answer %d: expected next index %d, got %d", i, i+1, sub.QuestionIndex)
		}
	}

	sub, err := svc.SubmitAnswer(ctx, id, "u1", "Final answer with enough words to count as detailed output.")
	if err != nil {
		t.Fatalf("final SubmitAnswer: %v", err)
	}
	if !sub.IsCompleted || sub.Session.Status != model.StatusCompleted {
		t.Fatalf("expected completion, got %+v", sub)
	}
	if sub.Session.Score == nil || *sub.Session.Score < 1 || *sub.Session.Score > 10 {
		t.Errorf("expected score in [1,10], got %v", sub.Session.Score)
	}

	select {
	case got := <-completed:
		if got != id {
			t.Errorf("OnComplete got %s, want %s", got, id)
		}
	case <-time.After(2 * time.Second):
		t.Error("OnComplete was not called")
	}

	stored, err := s.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(stored.Answers) != total || stored.CompletedAt == nil || stored.Feedback == "" {
		t.Errorf("expected stored completion, got %+v", stored)
	}
	if d := stored.QuestionTimings[0].Duration; d != 30 {
		t.Errorf("expected 30s for the first answer, got %v", d)
	}

	if _, err := svc.SubmitAnswer(ctx, id, "u1", "one more answer after completion"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound after completion, got %v", err)
	}
}

func TestSubmitAnswerHeuristicFallback(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.Start(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := res.Session.ID
	for i := 0; i < res.TotalQuestions-1; i++ {
		if _, err := svc.SubmitAnswer(context.Background(), id, "u1", "short"); err != nil {
			t.Fatalf("SubmitAnswer: %v", err)
		}
	}

	// A cancelled context makes feedback generation fail.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sub, err := svc.SubmitAnswer(ctx, id, "u1", "short")
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if *sub.Session.Score != 1 {
		t.Errorf("expected heuristic score 1, got %d", *sub.Session.Score)
	}
	if sub.Session.Feedback != HeuristicFeedback(context.Background(), 1) {
		t.Errorf("unexpected feedback %q", sub.Session.Feedback)
	}
}

func TestConcurrentSubmits(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	res, err := svc.Start(ctx, "u1", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := res.Session.ID

	const writers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, notFound := 0, 0
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SubmitAnswer(ctx, id, "u1", "concurrent answer text")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, model.ErrNotFound):
				notFound++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != res.TotalQuestions || notFound != writers-res.TotalQuestions {
		t.Errorf("expected %d accepted and %d rejected, got %d and %d",
			res.TotalQuestions, writers-res.TotalQuestions, ok, notFound)
	}
	sess, err := s.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(sess.Answers) != len(sess.Questions) || sess.Status != model.StatusCompleted {
		t.Errorf("expected a completed session with every answer, got %d answers, %s", len(sess.Answers), sess.Status)
	}
}

func TestListAndDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sessions, err := svc.List(ctx, "nobody")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if sessions == nil || len(sessions) != 0 {
		t.Errorf("expected empty non-nil list, got %v", sessions)
	}

	res, err := svc.Start(ctx, "u1", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.Get(ctx, res.Session.ID, "u2"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other user, got %v", err)
	}
	if err := svc.Delete(ctx, res.Session.ID, "u2"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting as other user, got %v", err)
	}
	if err := svc.Delete(ctx, res.Session.ID, "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, res.Session.ID, "u1"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected session to be gone, got %v", err)
	}
}

func TestHeuristicScore(t *testing.T) {
	long := "I led a development effort where the main problem was slow code in production systems."
	tests := []struct {
		name    string
		answers []string
		want    int
	}{
		{"no answers", nil, 1},
		{"short without keywords", []string{"yes", "no"}, 1},
		{"keywords only", []string{"experience with project code"}, 2},
		{"long with one keyword", []string{"I have 5 years of experience with distributed systems and resolved a production incident."}, 2},
		{"long with keywords", []string{long}, 3},
		{"capped", []string{long, long, long, long, long}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HeuristicScore(tt.answers); got != tt.want {
				t.Errorf("HeuristicScore() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHeuristicFeedbackBands(t *testing.T) {
	ctx := context.Background()
	if HeuristicFeedback(ctx, 7) == HeuristicFeedback(ctx, 6) {
		t.Error("expected different feedback for 7 and 6")
	}
	if HeuristicFeedback(ctx, 5) == HeuristicFeedback(ctx, 4) {
		t.Error("expected different feedback for 5 and 4")
	}
	if HeuristicFeedback(ctx, 10) != i18n.T(ctx, "HeuristicStrong") {
		t.Error("expected strong feedback for 10")
	}
}

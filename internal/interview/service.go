// Package interview runs the interview session state machine: a session is
// created IN_PROGRESS with its full question list and becomes COMPLETED when
// the answer count reaches the question count.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/interviewer/internal/content"
	"github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/keylock"
	"github.com/pavelanni/interviewer/internal/metrics"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/store"
)

// GenericRole is used when a session has no resolvable job.
const GenericRole = "Software Engineer"

var technicalKeywords = []string{"experience", "project", "technology", "problem", "solution", "code", "development"}

// StartResult is returned by Start.
type StartResult struct {
	Session         *model.InterviewSession `json:"session"`
	CurrentQuestion string                  `json:"current_question"`
	QuestionIndex   int                     `json:"question_index"`
	TotalQuestions  int                     `json:"total_questions"`
}

// SubmitResult is returned by SubmitAnswer. NextQuestion and QuestionIndex are
// only meaningful while IsCompleted is false.
type SubmitResult struct {
	Session        *model.InterviewSession `json:"session"`
	IsCompleted    bool                    `json:"is_completed"`
	NextQuestion   string                  `json:"next_question,omitempty"`
	QuestionIndex  int                     `json:"question_index"`
	TotalQuestions int                     `json:"total_questions"`
}

// Service owns session state transitions.
type Service struct {
	store *store.Store
	gen   *content.Generator
	locks *keylock.Map
	now   func() time.Time

	// OnComplete, when set, runs in its own goroutine after a session completes.
	OnComplete func(sessionID, userID string)
}

// NewService builds the session service. Operations on one session id are
// serialized through locks, which may be shared with other services. A nil map
// gets a private one.
func NewService(s *store.Store, gen *content.Generator, locks *keylock.Map) *Service {
	if locks == nil {
		locks = new(keylock.Map)
	}
	return &Service{store: s, gen: gen, locks: locks, now: func() time.Time { return time.Now().UTC() }}
}

// Start creates a session for userID. An unknown jobID falls back to a
// generic software engineering interview.
func (s *Service) Start(ctx context.Context, userID, jobID string) (*StartResult, error) {
	sess := model.InterviewSession{
		ID:         uuid.NewString(),
		UserID:     userID,
		Answers:    []string{},
		Status:     model.StatusInProgress,
		Role:       GenericRole,
		Difficulty: model.DifficultyMedium,
	}

	if jobID != "" {
		job, err := s.store.GetJob(jobID)
		switch {
		case err == nil:
			s.applyJob(ctx, &sess, job)
		case errors.Is(err, model.ErrNotFound):
			slog.Info("job not found, using generic interview", "job_id", jobID)
		default:
			return nil, fmt.Errorf("load job %s: %w", jobID, err)
		}
	}

	sess.Questions = s.gen.GenerateQuestions(ctx, content.QuestionRequest{
		JobDescription: sess.JobDescription,
		Role:           sess.Role,
		Difficulty:     sess.Difficulty,
	})
	sess.StartedAt = s.now()
	if err := s.store.CreateSession(sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	metrics.SessionsStarted.Inc()
	slog.Info("interview started", "session_id", sess.ID, "user_id", userID,
		"role", sess.Role, "questions", len(sess.Questions))

	return &StartResult{
		Session:         &sess,
		CurrentQuestion: sess.Questions[0],
		QuestionIndex:   0,
		TotalQuestions:  len(sess.Questions),
	}, nil
}

func (s *Service) applyJob(ctx context.Context, sess *model.InterviewSession, job *model.Job) {
	id := job.ID
	sess.JobID = &id
	sess.Role = job.Title
	sess.JobDescription = job.Description
	sess.ExtractedSkills = job.Skills
	sess.Difficulty = job.Difficulty

	if sess.Difficulty == "" || len(sess.ExtractedSkills) == 0 {
		details := s.gen.ExtractJobDetails(ctx, job.Description)
		if sess.Difficulty == "" {
			sess.Difficulty = model.ParseDifficulty(string(details.Difficulty))
		}
		if len(sess.ExtractedSkills) == 0 {
			sess.ExtractedSkills = details.Skills
		}
	}
}

// SubmitAnswer appends an answer to an in-progress session the user owns.
// The last answer completes and scores the session in the same write.
func (s *Service) SubmitAnswer(ctx context.Context, sessionID, userID, answer string) (*SubmitResult, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.store.GetSessionForUser(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.StatusInProgress || sess.Done() {
		return nil, fmt.Errorf("session %s is not active: %w", sessionID, model.ErrNotFound)
	}

	now := s.now()
	idx := sess.CurrentIndex()
	from := sess.StartedAt
	if prev, ok := sess.QuestionTimings[idx-1]; ok && !prev.EndedAt.IsZero() {
		from = prev.EndedAt
	}
	if sess.QuestionTimings == nil {
		sess.QuestionTimings = make(map[int]model.QuestionTiming)
	}
	sess.QuestionTimings[idx] = model.QuestionTiming{
		StartedAt: from,
		EndedAt:   now,
		Duration:  math.Max(0, now.Sub(from).Seconds()),
	}

	update := store.AnswerUpdate{
		SessionID: sessionID,
		UserID:    userID,
		PrevCount: idx,
		Answers:   append(sess.Answers, answer),
		Timings:   sess.QuestionTimings,
	}
	sess.Answers = update.Answers

	if !sess.Done() {
		if err := s.store.AppendAnswer(update); err != nil {
			return nil, conflictAsNotFound(sessionID, err)
		}
		next := sess.CurrentIndex()
		return &SubmitResult{
			Session:        sess,
			NextQuestion:   sess.Questions[next],
			QuestionIndex:  next,
			TotalQuestions: len(sess.Questions),
		}, nil
	}

	score, feedback, scoring := s.score(ctx, sess)
	if err := s.store.CompleteSession(update, score, feedback, now); err != nil {
		return nil, conflictAsNotFound(sessionID, err)
	}
	sess.Status = model.StatusCompleted
	sess.CompletedAt = &now
	sess.Score = &score
	sess.Feedback = feedback
	metrics.SessionsCompleted.WithLabelValues(scoring).Inc()
	slog.Info("interview completed", "session_id", sessionID, "score", score, "scoring", scoring)

	if s.OnComplete != nil {
		go s.OnComplete(sessionID, userID)
	}
	return &SubmitResult{
		Session:        sess,
		IsCompleted:    true,
		QuestionIndex:  len(sess.Questions),
		TotalQuestions: len(sess.Questions),
	}, nil
}

// score produces the completion score and feedback. The generated feedback is
// preferred; any failure falls back to the keyword heuristic.
func (s *Service) score(ctx context.Context, sess *model.InterviewSession) (int, string, string) {
	fb, err := s.gen.GenerateComprehensiveFeedback(ctx, content.SessionData{
		Questions:      sess.Questions,
		Answers:        sess.Answers,
		JobDescription: sess.JobDescription,
		Role:           sess.Role,
	})
	if err == nil {
		return int(clamp(math.Round(fb.OverallScore), 1, 10)), fb.DetailedFeedback, "feedback"
	}
	slog.Warn("comprehensive feedback failed, using keyword heuristic", "session_id", sess.ID, "error", err)
	score := HeuristicScore(sess.Answers)
	return score, HeuristicFeedback(ctx, score), "heuristic"
}

// HeuristicScore scores answers by length and technical keywords: one point
// per answer longer than 50 characters and half a point per keyword present,
// rounded and clamped to [1, 10].
func HeuristicScore(answers []string) int {
	var score float64
	for _, a := range answers {
		if len([]rune(a)) > 50 {
			score++
		}
		lower := strings.ToLower(a)
		for _, kw := range technicalKeywords {
			if strings.Contains(lower, kw) {
				score += 0.5
			}
		}
	}
	return int(clamp(math.Round(score), 1, 10))
}

// HeuristicFeedback returns the localized feedback band for a heuristic score.
func HeuristicFeedback(ctx context.Context, score int) string {
	switch {
	case score >= 7:
		return i18n.T(ctx, "HeuristicStrong")
	case score >= 5:
		return i18n.T(ctx, "HeuristicGood")
	default:
		return i18n.T(ctx, "HeuristicWeak")
	}
}

// Get returns a session the user owns.
func (s *Service) Get(_ context.Context, sessionID, userID string) (*model.InterviewSession, error) {
	return s.store.GetSessionForUser(sessionID, userID)
}

// List returns the user's sessions, newest first.
func (s *Service) List(_ context.Context, userID string) ([]model.InterviewSession, error) {
	sessions, err := s.store.ListSessionsForUser(userID)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []model.InterviewSession{}
	}
	return sessions, nil
}

// Delete removes a session the user owns.
func (s *Service) Delete(_ context.Context, sessionID, userID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()
	return s.store.DeleteSessionForUser(sessionID, userID)
}

func conflictAsNotFound(sessionID string, err error) error {
	if errors.Is(err, model.ErrConflict) {
		return fmt.Errorf("session %s is not active: %w", sessionID, model.ErrNotFound)
	}
	return err
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

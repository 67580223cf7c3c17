// Package report turns a completed interview session into its single,
// immutable scoring report.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/interviewer/internal/content"
	"github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/keylock"
	"github.com/pavelanni/interviewer/internal/metrics"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/store"
)

// Service generates and reads reports.
type Service struct {
	store *store.Store
	gen   *content.Generator
	locks *keylock.Map
}

// NewService builds a report service. locks must be the map the interview
// service uses so a session delete waits for an in-flight report. A nil map
// gets a private one.
func NewService(s *store.Store, gen *content.Generator, locks *keylock.Map) *Service {
	if locks == nil {
		locks = new(keylock.Map)
	}
	return &Service{store: s, gen: gen, locks: locks}
}

// Get returns the stored report of a session the user owns.
func (s *Service) Get(ctx context.Context, sessionID, userID string) (*model.InterviewReport, error) {
	if _, err := s.store.GetSessionForUser(sessionID, userID); err != nil {
		return nil, err
	}
	return s.store.GetReport(sessionID)
}

// Generate returns the session's report, building it on first call. Repeated
// calls return the stored report unchanged. The session must be completed.
func (s *Service) Generate(ctx context.Context, sessionID, userID string) (*model.InterviewReport, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.store.GetSessionForUser(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if existing, err := s.store.GetReport(sessionID); err == nil {
		return existing, nil
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	if sess.Status != model.StatusCompleted {
		return nil, fmt.Errorf("session %s is not completed: %w", sessionID, model.ErrConflict)
	}

	analyses := s.analyze(ctx, sess)
	fb, err := s.gen.GenerateComprehensiveFeedback(ctx, content.SessionData{
		Questions:      sess.Questions,
		Answers:        sess.Answers,
		JobDescription: sess.JobDescription,
		Role:           sess.Role,
		Analyses:       analyses,
	})
	if err != nil {
		return nil, fmt.Errorf("comprehensive feedback for %s: %w", sessionID, err)
	}

	m := Compute(analyses, sess.ExtractedSkills)
	r := model.InterviewReport{
		ID:                   uuid.NewString(),
		SessionID:            sessionID,
		OverallScore:         fb.OverallScore,
		TechnicalScore:       fb.TechnicalScore,
		CommunicationScore:   fb.CommunicationScore,
		ConfidenceScore:      m.Behavioral.ConfidenceLevel,
		QuestionAnalyses:     analyses,
		Strengths:            nonNil(fb.Strengths),
		Weaknesses:           nonNil(fb.Weaknesses),
		ImprovementAreas:     nonNil(fb.ImprovementAreas),
		Metrics:              m,
		HiringRecommendation: fb.Recommendation,
		DetailedFeedback:     fb.DetailedFeedback,
		CreatedAt:            time.Now().UTC(),
	}
	created, err := s.store.InsertReport(r)
	if err != nil {
		return nil, fmt.Errorf("store report for %s: %w", sessionID, err)
	}
	if created {
		metrics.ReportsGenerated.Inc()
		slog.Info("report generated", "session_id", sessionID, "overall_score", r.OverallScore,
			"recommendation", r.HiringRecommendation)
	}
	return s.store.GetReport(sessionID)
}

func (s *Service) analyze(ctx context.Context, sess *model.InterviewSession) []model.QuestionAnalysis {
	analyses := make([]model.QuestionAnalysis, 0, len(sess.Questions))
	for i, q := range sess.Questions {
		qa := model.QuestionAnalysis{Question: q}
		if t, ok := sess.QuestionTimings[i]; ok {
			qa.ResponseTime = t.Duration
		}
		if i < len(sess.Answers) && sess.Answers[i] != "" {
			qa.Answer = sess.Answers[i]
			qa.AnswerAnalysis = s.gen.AnalyzeAnswer(ctx, q, qa.Answer, &content.AnalysisContext{
				JobDescription:  sess.JobDescription,
				PreviousAnswers: sess.Answers[:i],
			})
		} else {
			qa.AnswerAnalysis = model.AnswerAnalysis{
				Feedback:   i18n.T(ctx, "NoAnswerProvided"),
				Strengths:  []string{},
				Weaknesses: []string{i18n.T(ctx, "WeaknessNotProvided")},
			}
		}
		qa.Strengths = nonNil(qa.Strengths)
		qa.Weaknesses = nonNil(qa.Weaknesses)
		analyses = append(analyses, qa)
	}
	return analyses
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Package content generates interview questions and scores answers. Every
// operation has a model-backed source and a deterministic fallback; the
// Generator is the only place that chooses between them.
package content

import (
	"context"

	"github.com/pavelanni/interviewer/internal/model"
)

// QuestionRequest is the job context questions are generated for.
type QuestionRequest struct {
	JobDescription string
	Role           string
	Difficulty     model.Difficulty
}

// AnalysisContext is optional context for scoring a single answer.
type AnalysisContext struct {
	JobDescription  string
	PreviousAnswers []string
}

// SessionData is the input to comprehensive feedback.
type SessionData struct {
	Questions      []string
	Answers        []string
	JobDescription string
	Role           string
	Analyses       []model.QuestionAnalysis
}

// Source produces content for each operation. An error from a Source means
// the result is unusable and the caller should use another Source.
type Source interface {
	Questions(ctx context.Context, req QuestionRequest) ([]string, error)
	AnalyzeAnswer(ctx context.Context, question, answer string, actx *AnalysisContext) (model.AnswerAnalysis, error)
	ComprehensiveFeedback(ctx context.Context, data SessionData) (model.ComprehensiveFeedback, error)
	JobDetails(ctx context.Context, jobDescription string) (model.JobDetails, error)
}

// FollowUpSource can suggest a follow-up question. It has no fallback.
type FollowUpSource interface {
	FollowUp(ctx context.Context, question, answer string) (string, error)
}

package content

import (
	"context"
	"log/slog"

	"github.com/pavelanni/interviewer/internal/metrics"
	"github.com/pavelanni/interviewer/internal/model"
)

// Generator is the single boundary between callers and the unreliable model.
// Callers never learn whether the model was reachable: every operation except
// GenerateFollowUp always yields a usable result.
type Generator struct {
	primary  Source
	fallback Source
}

// NewGenerator creates a generator. primary may be nil, in which case every
// operation is served by the fallback.
func NewGenerator(primary Source) *Generator {
	return &Generator{primary: primary, fallback: FallbackSource{}}
}

func (g *Generator) degrade(op string, err error) {
	metrics.ContentFallbacks.WithLabelValues(op).Inc()
	if err != nil {
		slog.Warn("content generation failed, using fallback", "op", op, "error", err)
	}
}

// GenerateQuestions returns between 8 and 10 questions for the given context.
// A short model answer is topped up from the static list.
func (g *Generator) GenerateQuestions(ctx context.Context, req QuestionRequest) []string {
	fallback, _ := g.fallback.Questions(ctx, req)
	if g.primary == nil {
		g.degrade("questions", nil)
		return fallback
	}
	qs, err := g.primary.Questions(ctx, req)
	if err != nil {
		g.degrade("questions", err)
		return fallback
	}
	if len(qs) < FallbackQuestionCount {
		seen := make(map[string]bool, len(qs))
		for _, q := range qs {
			seen[q] = true
		}
		for _, q := range fallback {
			if len(qs) >= FallbackQuestionCount {
				break
			}
			if !seen[q] {
				qs = append(qs, q)
			}
		}
	}
	return qs
}

// AnalyzeAnswer scores one answer.
func (g *Generator) AnalyzeAnswer(ctx context.Context, question, answer string, actx *AnalysisContext) model.AnswerAnalysis {
	if g.primary != nil {
		a, err := g.primary.AnalyzeAnswer(ctx, question, answer, actx)
		if err == nil {
			return a
		}
		g.degrade("analysis", err)
	} else {
		g.degrade("analysis", nil)
	}
	a, _ := g.fallback.AnalyzeAnswer(ctx, question, answer, actx)
	return a
}

// GenerateComprehensiveFeedback evaluates a whole session. It fails only for a
// session without answers or when ctx is already done.
func (g *Generator) GenerateComprehensiveFeedback(ctx context.Context, data SessionData) (model.ComprehensiveFeedback, error) {
	if err := ctx.Err(); err != nil {
		return model.ComprehensiveFeedback{}, err
	}
	if g.primary != nil && len(data.Answers) > 0 {
		fb, err := g.primary.ComprehensiveFeedback(ctx, data)
		if err == nil {
			return fb, nil
		}
		g.degrade("comprehensive", err)
	} else {
		g.degrade("comprehensive", nil)
	}
	return g.fallback.ComprehensiveFeedback(ctx, data)
}

// ExtractJobDetails pulls skills, difficulty and requirements out of a job description.
func (g *Generator) ExtractJobDetails(ctx context.Context, jobDescription string) model.JobDetails {
	if g.primary != nil {
		d, err := g.primary.JobDetails(ctx, jobDescription)
		if err == nil {
			return d
		}
		g.degrade("job_details", err)
	} else {
		g.degrade("job_details", nil)
	}
	d, _ := g.fallback.JobDetails(ctx, jobDescription)
	return d
}

// GenerateFollowUp suggests a deeper question. ok is false when no suggestion
// could be produced; there is no static fallback.
func (g *Generator) GenerateFollowUp(ctx context.Context, question, answer string) (string, bool) {
	fs, isFS := g.primary.(FollowUpSource)
	if !isFS {
		return "", false
	}
	q, err := fs.FollowUp(ctx, question, answer)
	if err != nil {
		slog.Warn("follow-up generation failed", "error", err)
		return "", false
	}
	return q, true
}

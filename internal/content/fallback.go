package content

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/model"
)

const (
	defaultRole = "software engineer"

	// FallbackQuestionCount is the size of the static question list.
	FallbackQuestionCount = 8

	// Answers longer than this count as detailed.
	detailedAnswerLen = 50
	// Mean answer length below this earns a "brief answers" weakness.
	briefMeanLen = 50
)

// FallbackSource computes content locally from answer lengths. It never calls
// the network and its output depends only on its input and the request language.
type FallbackSource struct{}

// Questions returns the static question list, interpolating the role title.
func (FallbackSource) Questions(ctx context.Context, req QuestionRequest) ([]string, error) {
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = i18n.T(ctx, "DefaultRole")
	}
	return i18n.Lines(ctx, "FallbackQuestion", FallbackQuestionCount, map[string]any{"Role": role}), nil
}

// AnalyzeAnswer scores an answer by length alone.
func (FallbackSource) AnalyzeAnswer(ctx context.Context, _, answer string, _ *AnalysisContext) (model.AnswerAnalysis, error) {
	n := utf8.RuneCountInString(answer)
	a := model.AnswerAnalysis{
		Score:          clamp(math.Floor(float64(n)/20), 1, 10),
		Strengths:      []string{},
		Weaknesses:     []string{},
		TechnicalDepth: math.Min(float64(n)/200, 1),
		Relevance:      0.6,
	}
	if n > detailedAnswerLen {
		a.Feedback = i18n.T(ctx, "AnalysisDetailed")
		a.Strengths = append(a.Strengths, i18n.T(ctx, "StrengthDetailedResponse"))
	} else {
		a.Feedback = i18n.T(ctx, "AnalysisBrief")
		a.Weaknesses = append(a.Weaknesses, i18n.T(ctx, "WeaknessTooBrief"))
	}
	return a, nil
}

// ComprehensiveFeedback scores the session from the mean answer length.
func (FallbackSource) ComprehensiveFeedback(ctx context.Context, data SessionData) (model.ComprehensiveFeedback, error) {
	if len(data.Answers) == 0 {
		return model.ComprehensiveFeedback{}, fmt.Errorf("comprehensive feedback without answers: %w", model.ErrValidation)
	}
	total := 0
	for _, a := range data.Answers {
		total += utf8.RuneCountInString(a)
	}
	mean := float64(total) / float64(len(data.Answers))
	overall := clamp(math.Floor(mean/30), 1, 10)

	fb := model.ComprehensiveFeedback{
		OverallScore:       overall,
		TechnicalScore:     overall,
		CommunicationScore: overall,
		DetailedFeedback: i18n.Tp(ctx, "SummaryFeedback", len(data.Answers),
			map[string]any{"Average": int(math.Round(mean))}),
		Strengths:        []string{i18n.T(ctx, "StrengthCompletedAll")},
		Weaknesses:       []string{},
		ImprovementAreas: []string{i18n.T(ctx, "ImprovementMoreExamples")},
		Recommendation:   RecommendationFor(overall),
	}
	if mean < briefMeanLen {
		fb.Weaknesses = append(fb.Weaknesses, i18n.T(ctx, "WeaknessBriefAnswers"))
	}
	return fb, nil
}

// JobDetails returns empty skills and requirements at MEDIUM difficulty.
func (FallbackSource) JobDetails(context.Context, string) (model.JobDetails, error) {
	return model.JobDetails{Skills: []string{}, Difficulty: model.DifficultyMedium, Requirements: []string{}}, nil
}

// RecommendationFor maps a 0-10 score onto HIRE, CONSIDER or REJECT.
func RecommendationFor(score float64) model.HiringRecommendation {
	switch {
	case score >= 7:
		return model.RecommendHire
	case score >= 5:
		return model.RecommendConsider
	default:
		return model.RecommendReject
	}
}

func analysisDefault(ctx context.Context) string      { return i18n.T(ctx, "AnalysisDefault") }
func comprehensiveDefault(ctx context.Context) string { return i18n.T(ctx, "ComprehensiveDefault") }

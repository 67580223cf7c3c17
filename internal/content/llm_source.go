package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/interviewer/internal/llm"
	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/model"
)

// errNoQuestions marks a response that parsed to zero questions.
var errNoQuestions = errors.New("no questions in response")

// LLMSource renders a fixed prompt, calls the provider and parses the reply.
type LLMSource struct {
	provider llm.Provider
	prompts  *prompts.Library
}

// NewLLMSource creates a model-backed source.
func NewLLMSource(p llm.Provider, lib *prompts.Library) *LLMSource {
	return &LLMSource{provider: p, prompts: lib}
}

func (s *LLMSource) call(ctx context.Context, op prompts.Operation, data any) (string, error) {
	p, err := s.prompts.Render(op, data)
	if err != nil {
		return "", err
	}
	raw, err := s.provider.Generate(ctx, llm.Request{
		Prompt:      p.Text,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		JSON:        p.JSON,
	})
	if err != nil {
		return "", err
	}
	slog.Debug("content response", "op", op, "raw", prompts.Truncate(raw, 200))
	return raw, nil
}

func (s *LLMSource) Questions(ctx context.Context, req QuestionRequest) ([]string, error) {
	raw, err := s.call(ctx, prompts.OpQuestions, prompts.QuestionsData{
		Role:           roleOr(req.Role, defaultRole),
		JobDescription: req.JobDescription,
		Difficulty:     string(difficultyOr(req.Difficulty)),
	})
	if err != nil {
		return nil, err
	}
	qs := parseQuestions(raw)
	if len(qs) == 0 {
		return nil, errNoQuestions
	}
	return qs, nil
}

func (s *LLMSource) AnalyzeAnswer(ctx context.Context, question, answer string, actx *AnalysisContext) (model.AnswerAnalysis, error) {
	data := prompts.AnalysisData{Question: question, Answer: answer}
	if actx != nil {
		data.JobDescription = actx.JobDescription
		data.PreviousAnswers = actx.PreviousAnswers
	}
	raw, err := s.call(ctx, prompts.OpAnalysis, data)
	if err != nil {
		return model.AnswerAnalysis{}, err
	}
	obj, err := decodeObject(raw)
	if err != nil {
		return model.AnswerAnalysis{}, fmt.Errorf("parse analysis: %w", err)
	}
	return model.AnswerAnalysis{
		Score:          numberOr(obj, 5, 0, 10, "score"),
		Feedback:       stringOr(obj, analysisDefault(ctx), "feedback"),
		Strengths:      stringsOf(obj, "strengths"),
		Weaknesses:     stringsOf(obj, "weaknesses"),
		TechnicalDepth: numberOr(obj, 0.5, 0, 1, "technicalDepth", "technical_depth"),
		Relevance:      numberOr(obj, 0.5, 0, 1, "relevance"),
	}, nil
}

func (s *LLMSource) ComprehensiveFeedback(ctx context.Context, data SessionData) (model.ComprehensiveFeedback, error) {
	scores := make([]prompts.QuestionScore, 0, len(data.Analyses))
	for _, qa := range data.Analyses {
		scores = append(scores, prompts.QuestionScore{Question: qa.Question, Score: qa.Score})
	}
	raw, err := s.call(ctx, prompts.OpComprehensive, prompts.ComprehensiveData{
		Role:           roleOr(data.Role, "Software Engineer"),
		JobDescription: data.JobDescription,
		Questions:      data.Questions,
		Answers:        data.Answers,
		Analyses:       scores,
	})
	if err != nil {
		return model.ComprehensiveFeedback{}, err
	}
	obj, err := decodeObject(raw)
	if err != nil {
		return model.ComprehensiveFeedback{}, fmt.Errorf("parse comprehensive feedback: %w", err)
	}
	rec, ok := model.ParseRecommendation(strings.ToUpper(stringOr(obj, "", "hiringRecommendation", "hiring_recommendation")))
	if !ok {
		rec = model.RecommendConsider
	}
	return model.ComprehensiveFeedback{
		OverallScore:       numberOr(obj, 5, 0, 10, "overallScore", "overall_score"),
		TechnicalScore:     numberOr(obj, 5, 0, 10, "technicalScore", "technical_score"),
		CommunicationScore: numberOr(obj, 5, 0, 10, "communicationScore", "communication_score"),
		DetailedFeedback:   stringOr(obj, comprehensiveDefault(ctx), "detailedFeedback", "detailed_feedback"),
		Strengths:          stringsOf(obj, "strengths"),
		Weaknesses:         stringsOf(obj, "weaknesses"),
		ImprovementAreas:   stringsOf(obj, "improvementAreas", "improvement_areas"),
		Recommendation:     rec,
	}, nil
}

func (s *LLMSource) JobDetails(ctx context.Context, jobDescription string) (model.JobDetails, error) {
	raw, err := s.call(ctx, prompts.OpJobDetails, prompts.JobDetailsData{JobDescription: jobDescription})
	if err != nil {
		return model.JobDetails{}, err
	}
	obj, err := decodeObject(raw)
	if err != nil {
		return model.JobDetails{}, fmt.Errorf("parse job details: %w", err)
	}
	return model.JobDetails{
		Skills:       stringsOf(obj, "skills"),
		Difficulty:   model.ParseDifficulty(strings.ToUpper(stringOr(obj, "", "difficulty"))),
		Requirements: stringsOf(obj, "requirements"),
	}, nil
}

func (s *LLMSource) FollowUp(ctx context.Context, question, answer string) (string, error) {
	raw, err := s.call(ctx, prompts.OpFollowUp, prompts.FollowUpData{Question: question, Answer: answer})
	if err != nil {
		return "", err
	}
	q := strings.TrimSpace(raw)
	if q == "" {
		return "", errNoQuestions
	}
	return q, nil
}

func roleOr(role, def string) string {
	if strings.TrimSpace(role) == "" {
		return def
	}
	return role
}

func difficultyOr(d model.Difficulty) model.Difficulty {
	if d == "" {
		return model.DifficultyMedium
	}
	return d
}

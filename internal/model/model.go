package model

import (
	"context"
	"time"
)

// User is the authenticated caller. Identity management lives outside this
// service; only the subject id and the admin bit travel with a request.
type User struct {
	ID    string
	Admin bool
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// SessionStatus represents the lifecycle state of an interview session.
// NOT_STARTED is implicit and never persisted.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "IN_PROGRESS"
	StatusCompleted  SessionStatus = "COMPLETED"
)

// Difficulty represents the level an interview is pitched at.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// ParseDifficulty returns the matching difficulty, or MEDIUM for anything unknown.
func ParseDifficulty(s string) Difficulty {
	switch Difficulty(s) {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return Difficulty(s)
	}
	return DifficultyMedium
}

// HiringRecommendation is the categorical outcome of a report.
type HiringRecommendation string

const (
	RecommendStrongHire HiringRecommendation = "STRONG_HIRE"
	RecommendHire       HiringRecommendation = "HIRE"
	RecommendConsider   HiringRecommendation = "CONSIDER"
	RecommendReject     HiringRecommendation = "REJECT"
)

// ParseRecommendation reports whether s is one of the four known values.
func ParseRecommendation(s string) (HiringRecommendation, bool) {
	switch HiringRecommendation(s) {
	case RecommendStrongHire, RecommendHire, RecommendConsider, RecommendReject:
		return HiringRecommendation(s), true
	}
	return "", false
}

// Job is a position a candidate can interview for.
type Job struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Difficulty  Difficulty `json:"difficulty,omitempty"`
	Skills      []string   `json:"skills,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// JobImport is used for loading jobs from JSON.
type JobImport struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Difficulty  Difficulty `json:"difficulty"`
	Skills      []string   `json:"skills"`
}

// JobDetails is what the content generator extracts from a job description.
type JobDetails struct {
	Skills       []string   `json:"skills"`
	Difficulty   Difficulty `json:"difficulty"`
	Requirements []string   `json:"requirements"`
}

// QuestionTiming records how long the candidate spent on one question.
type QuestionTiming struct {
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Duration  float64   `json:"duration"` // seconds
}

// InterviewSession is one end-to-end interview attempt. len(Answers) never
// exceeds len(Questions); Status is COMPLETED exactly when they are equal.
type InterviewSession struct {
	ID                   string                 `json:"id"`
	UserID               string                 `json:"user_id"`
	JobID                *string                `json:"job_id,omitempty"`
	Questions            []string               `json:"questions"`
	Answers              []string               `json:"answers"`
	Status               SessionStatus          `json:"status"`
	Score                *int                   `json:"score,omitempty"`
	Feedback             string                 `json:"feedback,omitempty"`
	StartedAt            time.Time              `json:"started_at"`
	CompletedAt          *time.Time             `json:"completed_at,omitempty"`
	JobDescription       string                 `json:"job_description,omitempty"`
	Role                 string                 `json:"role,omitempty"`
	Difficulty           Difficulty             `json:"difficulty,omitempty"`
	ExtractedSkills      []string               `json:"extracted_skills,omitempty"`
	QuestionTimings      map[int]QuestionTiming `json:"question_timings,omitempty"`
	CheatingScore        float64                `json:"cheating_score"`
	SuspiciousActivities []string               `json:"suspicious_activities,omitempty"`
}

// CurrentIndex is the index of the next unanswered question.
func (s *InterviewSession) CurrentIndex() int {
	return len(s.Answers)
}

// Done reports whether every question has an answer.
func (s *InterviewSession) Done() bool {
	return len(s.Answers) >= len(s.Questions)
}

// AnswerAnalysis is the scored evaluation of a single answer.
type AnswerAnalysis struct {
	Score          float64  `json:"score"`
	Feedback       string   `json:"feedback"`
	Strengths      []string `json:"strengths"`
	Weaknesses     []string `json:"weaknesses"`
	TechnicalDepth float64  `json:"technical_depth"`
	Relevance      float64  `json:"relevance"`
}

// QuestionAnalysis is produced once per question while generating a report.
type QuestionAnalysis struct {
	Question     string `json:"question"`
	Answer       string `json:"answer"`
	AnswerAnalysis
	ResponseTime float64 `json:"response_time"` // seconds
}

// ComprehensiveFeedback is the session-level evaluation.
type ComprehensiveFeedback struct {
	OverallScore       float64              `json:"overall_score"`
	TechnicalScore     float64              `json:"technical_score"`
	CommunicationScore float64              `json:"communication_score"`
	DetailedFeedback   string               `json:"detailed_feedback"`
	Strengths          []string             `json:"strengths"`
	Weaknesses         []string             `json:"weaknesses"`
	ImprovementAreas   []string             `json:"improvement_areas"`
	Recommendation     HiringRecommendation `json:"recommendation"`
}

// CommunicationMetrics groups the speech-style signals of a report.
type CommunicationMetrics struct {
	AverageResponseTime float64 `json:"average_response_time"`
	SpeechClarity       float64 `json:"speech_clarity"`
	Pace                float64 `json:"pace"` // words per minute
	FillerWordsCount    int     `json:"filler_words_count"`
}

// TechnicalMetrics groups the content signals of a report.
type TechnicalMetrics struct {
	TechnicalDepth float64 `json:"technical_depth"`
	RelevanceScore float64 `json:"relevance_score"`
	AccuracyScore  float64 `json:"accuracy_score"`
}

// BehavioralMetrics groups the demeanour signals of a report.
type BehavioralMetrics struct {
	ConfidenceLevel float64 `json:"confidence_level"`
	EngagementLevel float64 `json:"engagement_level"`
	TimeManagement  float64 `json:"time_management"`
}

// Skill levels used by SkillGap.
const (
	SkillBeginner     = "BEGINNER"
	SkillIntermediate = "INTERMEDIATE"
)

// SkillGap compares the level a job requires with what the answers showed.
type SkillGap struct {
	Required     string `json:"required"`
	Demonstrated string `json:"demonstrated"`
	Gap          int    `json:"gap"`
}

// ChartPoint is one bar of the per-question performance chart.
type ChartPoint struct {
	Question       int     `json:"question"`
	Score          float64 `json:"score"`
	TechnicalDepth float64 `json:"technical_depth"`
	Relevance      float64 `json:"relevance"`
}

// PerformanceChart is the per-question score series.
type PerformanceChart struct {
	Scores       []ChartPoint `json:"scores"`
	AverageScore float64      `json:"average_score"`
}

// TimelineEntry places one question on the interview timeline.
type TimelineEntry struct {
	Question  int     `json:"question"`
	Timestamp float64 `json:"timestamp"` // seconds from start
	Duration  float64 `json:"duration"`
	Score     float64 `json:"score"`
}

// ReportMetrics is the output of the metrics engine.
type ReportMetrics struct {
	Communication    CommunicationMetrics `json:"communication"`
	Technical        TechnicalMetrics     `json:"technical"`
	Behavioral       BehavioralMetrics    `json:"behavioral"`
	SkillGaps        map[string]SkillGap  `json:"skill_gaps,omitempty"`
	RequirementMatch float64              `json:"requirement_match"`
	PerformanceChart PerformanceChart     `json:"performance_chart"`
	Timeline         []TimelineEntry      `json:"timeline"`
}

// InterviewReport is the single, immutable scoring artifact of a completed session.
type InterviewReport struct {
	ID                   string               `json:"id"`
	SessionID            string               `json:"session_id"`
	OverallScore         float64              `json:"overall_score"`
	TechnicalScore       float64              `json:"technical_score"`
	CommunicationScore   float64              `json:"communication_score"`
	ConfidenceScore      float64              `json:"confidence_score"`
	QuestionAnalyses     []QuestionAnalysis   `json:"question_analyses"`
	Strengths            []string             `json:"strengths"`
	Weaknesses           []string             `json:"weaknesses"`
	ImprovementAreas     []string             `json:"improvement_areas"`
	Metrics              ReportMetrics        `json:"metrics"`
	HiringRecommendation HiringRecommendation `json:"hiring_recommendation"`
	DetailedFeedback     string               `json:"detailed_feedback"`
	CreatedAt            time.Time            `json:"created_at"`
}

// FlagType enumerates proctoring violations.
type FlagType string

const (
	FlagMultipleFaces   FlagType = "MULTIPLE_FACES"
	FlagTabSwitching    FlagType = "TAB_SWITCHING"
	FlagCVMismatch      FlagType = "CV_MISMATCH"
	FlagAudioAnomaly    FlagType = "AUDIO_ANOMALY"
	FlagBackgroundNoise FlagType = "BACKGROUND_NOISE"
)

// CheatingFlag is one append-only proctoring observation.
type CheatingFlag struct {
	ID          int64          `json:"id"`
	SessionID   string         `json:"session_id"`
	Type        FlagType       `json:"type"`
	Severity    float64        `json:"severity"`
	Description string         `json:"description"`
	Evidence    map[string]any `json:"evidence,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// AudioAnomalies are the audio signals reported by the client.
type AudioAnomalies struct {
	LongSilence     bool `json:"longSilence" mapstructure:"longSilence"`
	BackgroundNoise bool `json:"backgroundNoise" mapstructure:"backgroundNoise"`
	Echo            bool `json:"echo" mapstructure:"echo"`
}

// DetectionData is raw proctoring telemetry as pushed by the candidate's browser.
type DetectionData struct {
	MultipleFaces  bool            `json:"multipleFaces" mapstructure:"multipleFaces"`
	FaceCount      int             `json:"faceCount" mapstructure:"faceCount"`
	TabSwitches    int             `json:"tabSwitches" mapstructure:"tabSwitches"`
	TabSwitchCount int             `json:"tabSwitchCount" mapstructure:"tabSwitchCount"`
	CVText         string          `json:"cvText" mapstructure:"cvText"`
	AnswerText     string          `json:"answerText" mapstructure:"answerText"`
	AudioAnomalies *AudioAnomalies `json:"audioAnomalies,omitempty" mapstructure:"audioAnomalies"`
	Timestamp      string          `json:"timestamp,omitempty" mapstructure:"timestamp"`
}

package report

import (
	"math"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/interviewer/internal/model"
)

// Fixed weights of the metrics engine.
const (
	ClarityDetailed     = 0.8
	ClarityBrief        = 0.5
	ClarityLengthCutoff = 50 // characters

	ConfidenceDepthWeight     = 0.6
	ConfidenceRelevanceWeight = 0.4
	ConfidenceClarityWeight   = 0.3
	ConfidenceDivisor         = 1.3

	EngagementTimeWeight      = 0.5
	EngagementRelevanceWeight = 0.5
	EngagementTimeScale       = 60.0 // seconds

	TimeVarianceScale = 100.0

	AccuracyDepthWeight     = 0.7
	AccuracyRelevanceWeight = 0.3

	ChartScale = 10.0

	// TimelineSpacing is the nominal gap between questions on the timeline.
	TimelineSpacing = 60.0
)

// FillerWords is the fixed filler vocabulary. A word counts only when a whole
// whitespace-separated token equals an entry, so "you know" never matches.
var FillerWords = []string{"um", "uh", "like", "you know", "actually", "basically"}

var whitespace = regexp.MustCompile(`\s+`)

// Compute derives report metrics from per-question analyses and the skills
// extracted from the job. It is a pure function of its inputs.
func Compute(analyses []model.QuestionAnalysis, skills []string) model.ReportMetrics {
	n := float64(len(analyses))
	m := model.ReportMetrics{
		PerformanceChart: model.PerformanceChart{Scores: []model.ChartPoint{}},
		Timeline:         []model.TimelineEntry{},
	}
	if n == 0 {
		m.SkillGaps = skillGaps(skills, nil)
		return m
	}

	var totalRT, totalDepth, totalRel, totalClarity, totalScore float64
	words, fillers := 0, 0
	for _, qa := range analyses {
		totalRT += qa.ResponseTime
		totalDepth += qa.TechnicalDepth
		totalRel += qa.Relevance
		totalScore += qa.Score
		if utf8.RuneCountInString(qa.Answer) > ClarityLengthCutoff {
			totalClarity += ClarityDetailed
		} else {
			totalClarity += ClarityBrief
		}
		words += len(splitWords(qa.Answer))
		fillers += countFillers(qa.Answer)
	}

	avgRT := totalRT / n
	avgDepth := totalDepth / n
	avgRel := totalRel / n
	clarity := math.Min(totalClarity/n, 1)

	pace := 0.0
	if minutes := totalRT / 60; minutes > 0 {
		pace = float64(words) / minutes
	}

	confidence := (avgDepth*ConfidenceDepthWeight + avgRel*ConfidenceRelevanceWeight + clarity*ConfidenceClarityWeight) / ConfidenceDivisor
	engagement := math.Min((1-math.Min(avgRT/EngagementTimeScale, 1))*EngagementTimeWeight+avgRel*EngagementRelevanceWeight, 1)

	var variance float64
	for _, qa := range analyses {
		d := qa.ResponseTime - avgRT
		variance += d * d
	}
	variance /= n

	m.Communication = model.CommunicationMetrics{
		AverageResponseTime: avgRT,
		SpeechClarity:       clarity,
		Pace:                pace,
		FillerWordsCount:    fillers,
	}
	m.Technical = model.TechnicalMetrics{
		TechnicalDepth: avgDepth,
		RelevanceScore: avgRel,
		AccuracyScore:  avgDepth*AccuracyDepthWeight + avgRel*AccuracyRelevanceWeight,
	}
	m.Behavioral = model.BehavioralMetrics{
		ConfidenceLevel: confidence,
		EngagementLevel: engagement,
		TimeManagement:  math.Max(0, 1-variance/TimeVarianceScale),
	}
	m.RequirementMatch = (avgDepth + avgRel + confidence) / 3
	m.SkillGaps = skillGaps(skills, analyses)

	for i, qa := range analyses {
		m.PerformanceChart.Scores = append(m.PerformanceChart.Scores, model.ChartPoint{
			Question:       i + 1,
			Score:          qa.Score,
			TechnicalDepth: qa.TechnicalDepth * ChartScale,
			Relevance:      qa.Relevance * ChartScale,
		})
		m.Timeline = append(m.Timeline, model.TimelineEntry{
			Question:  i + 1,
			Timestamp: float64(i) * TimelineSpacing,
			Duration:  qa.ResponseTime,
			Score:     qa.Score,
		})
	}
	m.PerformanceChart.AverageScore = totalScore / n
	return m
}

// skillGaps maps each extracted skill to whether any answer mentions it.
// It returns nil when no skills were extracted.
func skillGaps(skills []string, analyses []model.QuestionAnalysis) map[string]model.SkillGap {
	if len(skills) == 0 {
		return nil
	}
	gaps := make(map[string]model.SkillGap, len(skills))
	for _, skill := range skills {
		needle := strings.ToLower(skill)
		mentioned := false
		for _, qa := range analyses {
			if strings.Contains(strings.ToLower(qa.Answer), needle) {
				mentioned = true
				break
			}
		}
		g := model.SkillGap{Required: model.SkillIntermediate, Demonstrated: model.SkillBeginner, Gap: 1}
		if mentioned {
			g.Demonstrated = model.SkillIntermediate
			g.Gap = 0
		}
		gaps[skill] = g
	}
	return gaps
}

// splitWords splits on whitespace runs and keeps the empty edge pieces, so an
// empty answer is one word and surrounding whitespace adds one each.
func splitWords(s string) []string {
	return whitespace.Split(s, -1)
}

// countFillers counts lowercased tokens equal to a filler entry.
func countFillers(answer string) int {
	count := 0
	for _, w := range splitWords(strings.ToLower(answer)) {
		if slices.Contains(FillerWords, w) {
			count++
		}
	}
	return count
}

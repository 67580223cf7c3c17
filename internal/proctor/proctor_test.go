package proctor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateSession(model.InterviewSession{
		ID: "s1", UserID: "u1", Questions: []string{"Q?"}, Status: model.StatusInProgress, StartedAt: time.Now().UTC(),
	}))
	return NewService(s, 0)
}

func TestEvaluateFaces(t *testing.T) {
	flags, activities := Evaluate(model.DetectionData{FaceCount: 3})
	require.Len(t, flags, 1)
	assert.Equal(t, model.FlagMultipleFaces, flags[0].Type)
	assert.InDelta(t, 0.6, flags[0].Severity, 1e-9)
	assert.Equal(t, []string{"Multiple faces detected in video feed"}, activities)

	flags, _ = Evaluate(model.DetectionData{MultipleFaces: true})
	require.Len(t, flags, 1)
	assert.InDelta(t, 0.4, flags[0].Severity, 1e-9)
	assert.Contains(t, flags[0].Description, "2 faces")

	flags, _ = Evaluate(model.DetectionData{FaceCount: 1})
	assert.Empty(t, flags)
}

func TestEvaluateTabSwitching(t *testing.T) {
	tests := []struct {
		name     string
		data     model.DetectionData
		severity float64 // 0 means no flag
	}{
		{"at limit", model.DetectionData{TabSwitchCount: 3}, 0},
		{"legacy field", model.DetectionData{TabSwitches: 5}, 0.5},
		{"capped", model.DetectionData{TabSwitchCount: 12}, 1},
		{"count wins over legacy field", model.DetectionData{TabSwitchCount: 2, TabSwitches: 9}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, _ := Evaluate(tt.data)
			if tt.severity == 0 {
				assert.Empty(t, flags)
				return
			}
			require.Len(t, flags, 1)
			assert.Equal(t, model.FlagTabSwitching, flags[0].Type)
			assert.InDelta(t, tt.severity, flags[0].Severity, 1e-9)
		})
	}
}

func TestEvaluateCVMismatch(t *testing.T) {
	flags, _ := Evaluate(model.DetectionData{CVText: "Kubernetes", AnswerText: "pizza"})
	require.Len(t, flags, 1)
	assert.Equal(t, model.FlagCVMismatch, flags[0].Type)
	assert.InDelta(t, 0.5, flags[0].Severity, 1e-9)

	flags, _ = Evaluate(model.DetectionData{CVText: "Built Kubernetes operators", AnswerText: "I built Kubernetes operators."})
	assert.Empty(t, flags)

	// No key terms on one side yields the neutral score.
	flags, _ = Evaluate(model.DetectionData{CVText: "a an the", AnswerText: "pizza"})
	assert.Empty(t, flags)

	flags, _ = Evaluate(model.DetectionData{CVText: "Kubernetes"})
	assert.Empty(t, flags)
}

func TestEvaluateAudio(t *testing.T) {
	flags, activities := Evaluate(model.DetectionData{
		AudioAnomalies: &model.AudioAnomalies{LongSilence: true, BackgroundNoise: true, Echo: true},
	})
	require.Len(t, flags, 3)
	assert.Equal(t, model.FlagAudioAnomaly, flags[0].Type)
	assert.Equal(t, model.FlagBackgroundNoise, flags[1].Type)
	assert.Equal(t, model.FlagAudioAnomaly, flags[2].Type)
	assert.Len(t, activities, 3)
	assert.Equal(t, true, flags[2].Evidence["echo"])
}

func TestKeyTerms(t *testing.T) {
	terms := KeyTerms("The Kubernetes, kubernetes and Terraform: they were with Go!")
	assert.Equal(t, []string{"kubernetes", "terraform"}, terms)

	long := ""
	for _, w := range []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel",
		"india", "juliet", "kilo", "lima", "mike", "november", "oscar", "papa", "quebec", "romeo",
		"sierra", "tango", "uniform", "victor"} {
		long += w + " "
	}
	assert.Len(t, KeyTerms(long), 20)
	assert.Equal(t, NeutralSimilarity, Similarity("the and", "anything"))
}

func TestProcessScores(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	data := model.DetectionData{FaceCount: 3, AudioAnomalies: &model.AudioAnomalies{LongSilence: true}}

	res, err := svc.Process(ctx, "s1", data)
	require.NoError(t, err)
	assert.Equal(t, 2, res.FlagsCreated)
	assert.InDelta(t, 0.5, res.CheatingScore, 1e-9)
	assert.InDelta(t, 0.5, res.SessionCheatingScore, 1e-9)

	res, err = svc.Process(ctx, "s1", data)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.SessionCheatingScore, 1e-9)

	res, err = svc.Process(ctx, "s1", model.DetectionData{TabSwitchCount: 10, Timestamp: "2026-05-01T10:00:00Z"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.CheatingScore, 1e-9)
	assert.InDelta(t, 0.6, res.SessionCheatingScore, 1e-9)
	assert.Equal(t, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), res.Flags[0].CreatedAt)

	high, score, err := svc.IsHighRisk(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, high)
	assert.InDelta(t, 0.6, score, 1e-9)

	// A clean report leaves the session score untouched.
	res, err = svc.Process(ctx, "s1", model.DetectionData{})
	require.NoError(t, err)
	assert.Zero(t, res.FlagsCreated)
	assert.Zero(t, res.CheatingScore)
	assert.InDelta(t, 0.6, res.SessionCheatingScore, 1e-9)

	for i := 0; i < 2; i++ {
		_, err = svc.Process(ctx, "s1", model.DetectionData{TabSwitchCount: 10})
		require.NoError(t, err)
	}
	high, score, err = svc.IsHighRisk(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, high)
	assert.InDelta(t, 5.0/7.0, score, 1e-9)

	flags, err := svc.Flags(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, flags, 7)
}

func TestProcessUnknownSession(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Process(ctx, "missing", model.DetectionData{FaceCount: 2})
	assert.True(t, errors.Is(err, model.ErrNotFound), "got %v", err)

	_, err = svc.Process(ctx, "missing", model.DetectionData{})
	assert.True(t, errors.Is(err, model.ErrNotFound), "got %v", err)
}

func TestDecodeDetectionData(t *testing.T) {
	data, err := DecodeDetectionData(map[string]any{
		"faceCount":      "3",
		"multipleFaces":  "true",
		"tabSwitches":    5.0,
		"audioAnomalies": map[string]any{"echo": "1"},
		"timestamp":      "2026-05-01T10:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, data.FaceCount)
	assert.True(t, data.MultipleFaces)
	assert.Equal(t, 5, data.TabSwitches)
	require.NotNil(t, data.AudioAnomalies)
	assert.True(t, data.AudioAnomalies.Echo)

	_, err = DecodeDetectionData(map[string]any{"faceCount": "many"})
	assert.True(t, errors.Is(err, model.ErrValidation), "got %v", err)
}

// Package proctor turns raw proctoring telemetry into persisted cheating
// flags and keeps each session's cheating score current.
package proctor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/pavelanni/interviewer/internal/metrics"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/store"
)

// DefaultThreshold is the session score at which a session counts as high risk.
const DefaultThreshold = 0.7

// Rule constants.
const (
	TabSwitchLimit      = 3
	FaceSeverityScale   = 5.0
	TabSeverityScale    = 10.0
	MismatchThreshold   = 0.3
	MismatchSeverity    = 0.5
	LongSilenceSeverity = 0.4
	NoiseSeverity       = 0.3
	EchoSeverity        = 0.5
)

// Result summarizes one Process call. CheatingScore covers only the flags
// raised by this call; SessionCheatingScore covers the session's whole history.
type Result struct {
	FlagsCreated         int                  `json:"flags_created"`
	CheatingScore        float64              `json:"cheating_score"`
	SessionCheatingScore float64              `json:"session_cheating_score"`
	SuspiciousActivities []string             `json:"suspicious_activities"`
	Flags                []model.CheatingFlag `json:"flags"`
}

type Service struct {
	store     *store.Store
	threshold float64
}

// NewService creates a proctoring service. A non-positive threshold selects
// DefaultThreshold.
func NewService(s *store.Store, threshold float64) *Service {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Service{store: s, threshold: threshold}
}

// Threshold returns the configured high-risk threshold.
func (s *Service) Threshold() float64 { return s.threshold }

// Process evaluates every rule against data, stores the triggered flags and
// recomputes the session score.
func (s *Service) Process(ctx context.Context, sessionID string, data model.DetectionData) (*Result, error) {
	at := time.Now().UTC()
	if data.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, data.Timestamp); err == nil {
			at = ts.UTC()
		}
	}

	flags, activities := Evaluate(data)
	for i := range flags {
		flags[i].SessionID = sessionID
		flags[i].CreatedAt = at
	}

	res := &Result{
		FlagsCreated:         len(flags),
		SuspiciousActivities: activities,
		Flags:                flags,
	}
	if len(flags) == 0 {
		score, err := s.store.SessionCheatingScore(sessionID)
		if err != nil {
			return nil, err
		}
		res.SessionCheatingScore = score
		return res, nil
	}

	score, err := s.store.AddFlags(sessionID, flags, activities)
	if err != nil {
		return nil, fmt.Errorf("store flags for %s: %w", sessionID, err)
	}
	var total float64
	for _, f := range flags {
		total += f.Severity
		metrics.CheatingFlags.WithLabelValues(string(f.Type)).Inc()
	}
	res.CheatingScore = total / float64(len(flags))
	res.SessionCheatingScore = score

	slog.Info("proctoring data processed", "session_id", sessionID, "flags", len(flags),
		"score", res.CheatingScore, "session_score", score)
	return res, nil
}

// Evaluate applies the detection rules. Each rule yields at most one flag.
func Evaluate(data model.DetectionData) ([]model.CheatingFlag, []string) {
	flags := []model.CheatingFlag{}
	activities := []string{}
	add := func(t model.FlagType, severity float64, desc string, evidence map[string]any, activity string) {
		flags = append(flags, model.CheatingFlag{Type: t, Severity: severity, Description: desc, Evidence: evidence})
		activities = append(activities, activity)
	}

	if data.MultipleFaces || data.FaceCount > 1 {
		faces := data.FaceCount
		if faces <= 0 {
			faces = 2
		}
		add(model.FlagMultipleFaces, math.Min(float64(faces)/FaceSeverityScale, 1),
			fmt.Sprintf("Multiple faces detected (%d faces)", faces),
			map[string]any{"faceCount": faces},
			"Multiple faces detected in video feed")
	}

	switches := data.TabSwitchCount
	if switches == 0 {
		switches = data.TabSwitches
	}
	if switches > TabSwitchLimit {
		add(model.FlagTabSwitching, math.Min(float64(switches)/TabSeverityScale, 1),
			fmt.Sprintf("Excessive tab switching detected (%d switches)", switches),
			map[string]any{"switchCount": switches},
			fmt.Sprintf("Tab switched %d times during interview", switches))
	}

	if data.CVText != "" && data.AnswerText != "" {
		if sim := Similarity(data.CVText, data.AnswerText); sim < MismatchThreshold {
			add(model.FlagCVMismatch, MismatchSeverity,
				"Answer content does not align with CV/resume information",
				map[string]any{"similarity": sim},
				"Answer content mismatch with CV")
		}
	}

	if a := data.AudioAnomalies; a != nil {
		evidence := func() map[string]any {
			return map[string]any{"longSilence": a.LongSilence, "backgroundNoise": a.BackgroundNoise, "echo": a.Echo}
		}
		if a.LongSilence {
			add(model.FlagAudioAnomaly, LongSilenceSeverity, "Long periods of silence detected",
				evidence(), "Long silence periods detected")
		}
		if a.BackgroundNoise {
			add(model.FlagBackgroundNoise, NoiseSeverity, "Unusual background noise detected",
				evidence(), "Background noise anomalies")
		}
		if a.Echo {
			add(model.FlagAudioAnomaly, EchoSeverity, "Echo detected in audio (possible external audio source)",
				evidence(), "Audio echo detected")
		}
	}
	return flags, activities
}

// Flags returns a session's flags, oldest first.
func (s *Service) Flags(_ context.Context, sessionID string) ([]model.CheatingFlag, error) {
	flags, err := s.store.ListFlags(sessionID)
	if err != nil {
		return nil, err
	}
	if flags == nil {
		flags = []model.CheatingFlag{}
	}
	return flags, nil
}

// IsHighRisk reports whether the session's full-history score reaches the
// threshold, together with that score.
func (s *Service) IsHighRisk(_ context.Context, sessionID string) (bool, float64, error) {
	score, err := s.store.SessionCheatingScore(sessionID)
	if err != nil {
		return false, 0, err
	}
	return score >= s.threshold, score, nil
}

// DecodeDetectionData converts loosely typed telemetry, such as a decoded
// WebSocket payload, into DetectionData. Numbers and booleans sent as strings
// are accepted.
func DecodeDetectionData(raw map[string]any) (model.DetectionData, error) {
	var data model.DetectionData
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &data,
	})
	if err != nil {
		return data, err
	}
	if err := dec.Decode(raw); err != nil {
		return data, fmt.Errorf("decode detection data: %w: %w", model.ErrValidation, err)
	}
	return data, nil
}

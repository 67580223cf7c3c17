package store

import (
	"errors"
	"fmt"

	"github.com/pavelanni/interviewer/internal/model"
)

// ExportCompletedSessions builds export-ready results for every completed session.
// Sessions without a generated report are included with a nil Report.
func (s *Store) ExportCompletedSessions() ([]model.CandidateResult, error) {
	sessions, err := s.ListCompletedSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	results := make([]model.CandidateResult, 0, len(sessions))
	for _, sess := range sessions {
		report, err := s.GetReport(sess.ID)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("get report %s: %w", sess.ID, err)
		}
		flags, err := s.ListFlags(sess.ID)
		if err != nil {
			return nil, fmt.Errorf("list flags %s: %w", sess.ID, err)
		}
		results = append(results, model.CandidateResult{
			SessionID:     sess.ID,
			UserID:        sess.UserID,
			Role:          sess.Role,
			Difficulty:    sess.Difficulty,
			StartedAt:     sess.StartedAt,
			CompletedAt:   sess.CompletedAt,
			Score:         sess.Score,
			CheatingScore: sess.CheatingScore,
			FlagCount:     len(flags),
			Report:        report,
		})
	}
	return results, nil
}

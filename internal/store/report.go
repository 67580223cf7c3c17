package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pavelanni/interviewer/internal/model"
)

// InsertReport stores a report unless the session already has one.
// It reports whether this call created the row. A session that no longer
// exists yields model.ErrNotFound and nothing is written.
func (s *Store) InsertReport(r model.InterviewReport) (bool, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("encode report: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO interview_reports (id, session_id, overall_score, technical_score, communication_score,
		 confidence_score, hiring_recommendation, data, created_at)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM interview_sessions WHERE id = ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		r.ID, r.SessionID, r.OverallScore, r.TechnicalScore, r.CommunicationScore,
		r.ConfidenceScore, r.HiringRecommendation, string(data), r.CreatedAt, r.SessionID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		return n > 0, err
	}
	var exists int
	err = s.db.QueryRow(`SELECT 1 FROM interview_sessions WHERE id = ?`, r.SessionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("session %s: %w", r.SessionID, model.ErrNotFound)
	}
	return false, err
}

// GetReport returns the report for a session, or model.ErrNotFound.
func (s *Store) GetReport(sessionID string) (*model.InterviewReport, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM interview_reports WHERE session_id = ?`, sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var r model.InterviewReport
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("decode report for %s: %w", sessionID, err)
	}
	return &r, nil
}

package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pavelanni/interviewer/internal/model"
)

// AddFlags appends flags to a session and recomputes its cheating score as the
// mean severity over every flag the session has ever received. The suspicious
// activity descriptions are appended to the session in the same transaction.
// It returns the recomputed score.
func (s *Store) AddFlags(sessionID string, flags []model.CheatingFlag, activities []string) (float64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRow(`SELECT suspicious_activities FROM interview_sessions WHERE id = ?`, sessionID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	for _, f := range flags {
		var evidence any
		if f.Evidence != nil {
			b, err := json.Marshal(f.Evidence)
			if err != nil {
				return 0, fmt.Errorf("encode evidence: %w", err)
			}
			evidence = string(b)
		}
		if _, err := tx.Exec(
			`INSERT INTO cheating_flags (session_id, type, severity, description, evidence, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, f.Type, f.Severity, f.Description, evidence, f.CreatedAt,
		); err != nil {
			return 0, err
		}
	}

	var all []string
	if err := json.Unmarshal([]byte(current), &all); err != nil {
		return 0, fmt.Errorf("decode suspicious activities: %w", err)
	}
	all = append(all, activities...)
	encoded, err := encodeJSON(all, "[]")
	if err != nil {
		return 0, err
	}

	var score float64
	if err := tx.QueryRow(
		`SELECT COALESCE(AVG(severity), 0) FROM cheating_flags WHERE session_id = ?`, sessionID,
	).Scan(&score); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(
		`UPDATE interview_sessions SET cheating_score = ?, suspicious_activities = ? WHERE id = ?`,
		score, encoded, sessionID,
	); err != nil {
		return 0, err
	}
	return score, tx.Commit()
}

// ListFlags returns a session's flags in insertion order.
func (s *Store) ListFlags(sessionID string) ([]model.CheatingFlag, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, type, severity, description, evidence, created_at
		 FROM cheating_flags WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var flags []model.CheatingFlag
	for rows.Next() {
		var f model.CheatingFlag
		var evidence sql.NullString
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Type, &f.Severity, &f.Description, &evidence, &f.CreatedAt); err != nil {
			return nil, err
		}
		if evidence.Valid {
			if err := json.Unmarshal([]byte(evidence.String), &f.Evidence); err != nil {
				return nil, fmt.Errorf("decode evidence for flag %d: %w", f.ID, err)
			}
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// SessionCheatingScore returns the stored full-history cheating score.
func (s *Store) SessionCheatingScore(sessionID string) (float64, error) {
	var score float64
	err := s.db.QueryRow(`SELECT cheating_score FROM interview_sessions WHERE id = ?`, sessionID).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.ErrNotFound
	}
	return score, err
}

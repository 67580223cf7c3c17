package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/interviewer/internal/model"
)

const sessionColumns = `id, user_id, job_id, questions, answers, status, score, feedback,
	started_at, completed_at, job_description, role, difficulty, extracted_skills,
	question_timings, cheating_score, suspicious_activities`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.InterviewSession, error) {
	var sess model.InterviewSession
	var questions, answers, skills, timings, activities string
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.JobID, &questions, &answers, &sess.Status, &sess.Score,
		&sess.Feedback, &sess.StartedAt, &sess.CompletedAt, &sess.JobDescription, &sess.Role,
		&sess.Difficulty, &skills, &timings, &sess.CheatingScore, &activities,
	)
	if err != nil {
		return nil, err
	}
	for _, col := range []struct {
		raw  string
		dest any
	}{
		{questions, &sess.Questions},
		{answers, &sess.Answers},
		{skills, &sess.ExtractedSkills},
		{timings, &sess.QuestionTimings},
		{activities, &sess.SuspiciousActivities},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dest); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", sess.ID, err)
		}
	}
	if sess.Answers == nil {
		sess.Answers = []string{}
	}
	return &sess, nil
}

// CreateSession stores a new interview session.
func (s *Store) CreateSession(sess model.InterviewSession) error {
	questions, err := encodeJSON(sess.Questions, "[]")
	if err != nil {
		return err
	}
	answers, err := encodeJSON(sess.Answers, "[]")
	if err != nil {
		return err
	}
	skills, err := encodeJSON(sess.ExtractedSkills, "[]")
	if err != nil {
		return err
	}
	timings, err := encodeJSON(sess.QuestionTimings, "{}")
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO interview_sessions (id, user_id, job_id, questions, answers, answer_count, status,
		 started_at, job_description, role, difficulty, extracted_skills, question_timings)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.JobID, questions, answers, len(sess.Answers), sess.Status,
		sess.StartedAt, sess.JobDescription, sess.Role, sess.Difficulty, skills, timings,
	)
	return err
}

// GetSession returns a session by ID regardless of owner.
func (s *Store) GetSession(id string) (*model.InterviewSession, error) {
	sess, err := scanSession(s.db.QueryRow(
		`SELECT `+sessionColumns+` FROM interview_sessions WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return sess, err
}

// GetSessionForUser returns a session only if userID owns it.
func (s *Store) GetSessionForUser(id, userID string) (*model.InterviewSession, error) {
	sess, err := scanSession(s.db.QueryRow(
		`SELECT `+sessionColumns+` FROM interview_sessions WHERE id = ? AND user_id = ?`, id, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return sess, err
}

// ListSessionsForUser returns the user's sessions, newest first.
func (s *Store) ListSessionsForUser(userID string) ([]model.InterviewSession, error) {
	return s.listSessions(
		`SELECT `+sessionColumns+` FROM interview_sessions WHERE user_id = ? ORDER BY started_at DESC, id`, userID,
	)
}

// ListCompletedSessions returns every completed session, oldest completion first.
func (s *Store) ListCompletedSessions() ([]model.InterviewSession, error) {
	return s.listSessions(
		`SELECT `+sessionColumns+` FROM interview_sessions WHERE status = ? ORDER BY completed_at, id`,
		model.StatusCompleted,
	)
}

func (s *Store) listSessions(query string, args ...any) ([]model.InterviewSession, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.InterviewSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// DeleteSessionForUser removes a session together with its report and flags.
func (s *Store) DeleteSessionForUser(id, userID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var owner string
	err = tx.QueryRow(`SELECT user_id FROM interview_sessions WHERE id = ?`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
		return model.ErrNotFound
	}
	if err != nil {
		return err
	}
	for _, q := range []string{
		`DELETE FROM interview_reports WHERE session_id = ?`,
		`DELETE FROM cheating_flags WHERE session_id = ?`,
		`DELETE FROM interview_sessions WHERE id = ?`,
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AnswerUpdate is one guarded write to an in-progress session. The write only
// lands if the session still has PrevCount answers, so two writers racing on
// the same session cannot both succeed.
type AnswerUpdate struct {
	SessionID string
	UserID    string
	PrevCount int
	Answers   []string
	Timings   map[int]model.QuestionTiming
}

// AppendAnswer stores the new answer list of a session that stays in progress.
func (s *Store) AppendAnswer(u AnswerUpdate) error {
	answers, timings, err := encodeAnswerUpdate(u)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE interview_sessions SET answers = ?, answer_count = ?, question_timings = ?
		 WHERE id = ? AND user_id = ? AND status = ? AND answer_count = ?`,
		answers, len(u.Answers), timings, u.SessionID, u.UserID, model.StatusInProgress, u.PrevCount,
	)
	return checkGuarded(res, err)
}

// CompleteSession stores the final answer and the terminal state in one write:
// status, completion time, score and feedback change together.
func (s *Store) CompleteSession(u AnswerUpdate, score int, feedback string, completedAt time.Time) error {
	answers, timings, err := encodeAnswerUpdate(u)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE interview_sessions SET answers = ?, answer_count = ?, question_timings = ?,
		 status = ?, completed_at = ?, score = ?, feedback = ?
		 WHERE id = ? AND user_id = ? AND status = ? AND answer_count = ?`,
		answers, len(u.Answers), timings, model.StatusCompleted, completedAt, score, feedback,
		u.SessionID, u.UserID, model.StatusInProgress, u.PrevCount,
	)
	return checkGuarded(res, err)
}

func encodeAnswerUpdate(u AnswerUpdate) (string, string, error) {
	answers, err := encodeJSON(u.Answers, "[]")
	if err != nil {
		return "", "", err
	}
	timings, err := encodeJSON(u.Timings, "{}")
	if err != nil {
		return "", "", err
	}
	return answers, timings, nil
}

func checkGuarded(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrConflict
	}
	return nil
}

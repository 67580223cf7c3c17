package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/interviewer/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT '',
		skills TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS interview_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		job_id TEXT,
		questions TEXT NOT NULL DEFAULT '[]',
		answers TEXT NOT NULL DEFAULT '[]',
		answer_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'IN_PROGRESS',
		score INTEGER,
		feedback TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		job_description TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT '',
		extracted_skills TEXT NOT NULL DEFAULT '[]',
		question_timings TEXT NOT NULL DEFAULT '{}',
		cheating_score REAL NOT NULL DEFAULT 0,
		suspicious_activities TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON interview_sessions(user_id, started_at);

	CREATE TABLE IF NOT EXISTS interview_reports (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL UNIQUE,
		overall_score REAL NOT NULL DEFAULT 0,
		technical_score REAL NOT NULL DEFAULT 0,
		communication_score REAL NOT NULL DEFAULT 0,
		confidence_score REAL NOT NULL DEFAULT 0,
		hiring_recommendation TEXT NOT NULL DEFAULT '',
		data TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES interview_sessions(id)
	);

	CREATE TABLE IF NOT EXISTS cheating_flags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		type TEXT NOT NULL,
		severity REAL NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		evidence TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES interview_sessions(id)
	);
	CREATE INDEX IF NOT EXISTS idx_flags_session ON cheating_flags(session_id);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertJob inserts a job or replaces the mutable fields of an existing one.
func (s *Store) UpsertJob(j model.Job) error {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	skills, err := encodeJSON(j.Skills, "[]")
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO jobs (id, title, description, difficulty, skills, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, description = excluded.description,
		 difficulty = excluded.difficulty, skills = excluded.skills`,
		j.ID, j.Title, j.Description, j.Difficulty, skills, j.CreatedAt,
	)
	return err
}

// GetJob returns a job by ID, or model.ErrNotFound.
func (s *Store) GetJob(id string) (*model.Job, error) {
	var j model.Job
	var skills string
	err := s.db.QueryRow(
		`SELECT id, title, description, difficulty, skills, created_at FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.Title, &j.Description, &j.Difficulty, &skills, &j.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(skills), &j.Skills); err != nil {
		return nil, fmt.Errorf("decode skills: %w", err)
	}
	return &j, nil
}

// ListJobs returns all jobs ordered by title.
func (s *Store) ListJobs() ([]model.Job, error) {
	rows, err := s.db.Query(`SELECT id, title, description, difficulty, skills, created_at FROM jobs ORDER BY title, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		var skills string
		if err := rows.Scan(&j.ID, &j.Title, &j.Description, &j.Difficulty, &skills, &j.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(skills), &j.Skills); err != nil {
			return nil, fmt.Errorf("decode skills for job %s: %w", j.ID, err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// GetImportedFileHash returns the stored hash for a file path.
// Returns empty string and nil error if the path has not been imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT hash FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the hash of an imported file.
func (s *Store) SetImportedFileHash(path, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (path, hash, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, imported_at = excluded.imported_at`,
		path, hash, time.Now().UTC(),
	)
	return err
}

func encodeJSON(v any, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

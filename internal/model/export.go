package model

import "time"

// ReportExport is the top-level JSON structure for report export.
type ReportExport struct {
	ExportedAt time.Time         `json:"exported_at"`
	Count      int               `json:"count"`
	Results    []CandidateResult `json:"results"`
}

// CandidateResult holds one completed session and its report for export.
type CandidateResult struct {
	SessionID     string           `json:"session_id"`
	UserID        string           `json:"user_id"`
	Role          string           `json:"role,omitempty"`
	Difficulty    Difficulty       `json:"difficulty,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	Score         *int             `json:"score,omitempty"`
	CheatingScore float64          `json:"cheating_score"`
	FlagCount     int              `json:"flag_count"`
	Report        *InterviewReport `json:"report,omitempty"`
}

package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/interviewer/internal/model"
)

// ImportResult describes one jobs import.
type ImportResult struct {
	Source    string `json:"source"`
	Count     int    `json:"count"`
	Duplicate bool   `json:"duplicate"`
}

// ImportJobs upserts the jobs in a JSON array. Content already imported under
// the same source name is skipped; the check is by sha256 of the raw bytes.
func (s *Store) ImportJobs(source string, data []byte) (ImportResult, error) {
	res := ImportResult{Source: source}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	stored, err := s.GetImportedFileHash(source)
	if err != nil {
		return res, fmt.Errorf("check import status: %w", err)
	}
	if stored == hash {
		res.Duplicate = true
		return res, nil
	}

	var jobs []model.JobImport
	if err := json.Unmarshal(data, &jobs); err != nil {
		return res, fmt.Errorf("parse jobs %s: %w: %v", source, model.ErrValidation, err)
	}
	for i, j := range jobs {
		if j.ID == "" || j.Title == "" {
			return res, fmt.Errorf("job %d in %s: id and title are required: %w", i, source, model.ErrValidation)
		}
	}

	for _, j := range jobs {
		var difficulty model.Difficulty
		if j.Difficulty != "" {
			difficulty = model.ParseDifficulty(string(j.Difficulty))
		}
		err := s.UpsertJob(model.Job{
			ID:          j.ID,
			Title:       j.Title,
			Description: j.Description,
			Difficulty:  difficulty,
			Skills:      j.Skills,
		})
		if err != nil {
			return res, fmt.Errorf("insert job %s: %w", j.ID, err)
		}
		res.Count++
	}

	if err := s.SetImportedFileHash(source, hash); err != nil {
		return res, fmt.Errorf("record import: %w", err)
	}
	return res, nil
}

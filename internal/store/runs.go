package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Run is the persisted summary of one scraping operation.
type Run struct {
	ID                 string          `json:"operation_id"`
	Status             string          `json:"status"`
	StartedAt          time.Time       `json:"started_at"`
	FinishedAt         *time.Time      `json:"finished_at,omitempty"`
	CompletedLocations int             `json:"completed_locations"`
	TotalLocations     int             `json:"total_locations"`
	ResultsFound       int             `json:"results_found"`
	ErrorsEncountered  int             `json:"errors_encountered"`
	Files              []string        `json:"files"`
	ErrorMessages      []string        `json:"error_messages"`
	Settings           json.RawMessage `json:"settings,omitempty"`
}

type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db.Pool}
}

func (s *RunStore) SaveRun(ctx context.Context, r Run) error {
	files, _ := json.Marshal(nonNil(r.Files))
	msgs, _ := json.Marshal(nonNil(r.ErrorMessages))
	settings := string(r.Settings)
	if settings == "" {
		settings = "{}"
	}
	finished := ""
	if r.FinishedAt != nil {
		finished = r.FinishedAt.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (id, status, started_at, finished_at, completed_locations, total_locations,
                  results_found, errors_encountered, files, error_messages, settings)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  status = excluded.status,
  finished_at = excluded.finished_at,
  completed_locations = excluded.completed_locations,
  total_locations = excluded.total_locations,
  results_found = excluded.results_found,
  errors_encountered = excluded.errors_encountered,
  files = excluded.files,
  error_messages = excluded.error_messages,
  settings = excluded.settings;`,
		r.ID, r.Status, r.StartedAt.UTC().Format(time.RFC3339), finished,
		r.CompletedLocations, r.TotalLocations, r.ResultsFound, r.ErrorsEncountered,
		string(files), string(msgs), settings,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", r.ID, err)
	}
	return nil
}

// ListRuns returns the newest runs first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, status, started_at, finished_at, completed_locations, total_locations,
       results_found, errors_encountered, files, error_messages, settings
FROM runs
ORDER BY started_at DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		var (
			r                         Run
			started, finished         string
			files, msgs, settingsBlob string
		)
		if err := rows.Scan(&r.ID, &r.Status, &started, &finished, &r.CompletedLocations, &r.TotalLocations,
			&r.ResultsFound, &r.ErrorsEncountered, &files, &msgs, &settingsBlob); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		if finished != "" {
			if t, err := time.Parse(time.RFC3339, finished); err == nil {
				r.FinishedAt = &t
			}
		}
		_ = json.Unmarshal([]byte(files), &r.Files)
		_ = json.Unmarshal([]byte(msgs), &r.ErrorMessages)
		r.Settings = json.RawMessage(settingsBlob)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes a run from history. It reports whether a row existed.
func (s *RunStore) DeleteRun(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?;`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

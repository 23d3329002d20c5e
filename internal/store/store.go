// Package store persists sweep runs and their per-section results in
// sqlite, so long sweeps survive process restarts and external tooling can
// query past runs.
package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/signalworks/gridsweep/internal/engine"
)

//go:embed schema.sql
var schemaSQL string

// Run statuses persisted in sweep_runs.status.
const (
	RunStatusRunning  = "running"
	RunStatusComplete = "complete"
	RunStatusError    = "error"
)

// Store provides sweep persistence on a single sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sweep db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing sweep schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// retryOnBusy retries writes that hit sqlite's busy/locked errors, which
// surface under concurrent access even in WAL mode.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		msg := err.Error()
		if !strings.Contains(msg, "database is locked") && !strings.Contains(msg, "busy") {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return err
}

// RunRecord is one persisted sweep run.
type RunRecord struct {
	RunID       string          `json:"run_id"`
	Status      string          `json:"status"`
	Seed        int64           `json:"seed"`
	Request     json.RawMessage `json:"request,omitempty"`
	Cancelled   bool            `json:"cancelled"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// CreateRun inserts a new running sweep and returns its generated ID.
func (s *Store) CreateRun(seed int64, request interface{}) (string, error) {
	runID := uuid.New().String()

	var reqJSON []byte
	if request != nil {
		var err error
		reqJSON, err = json.Marshal(request)
		if err != nil {
			return "", fmt.Errorf("encoding run request: %w", err)
		}
	}

	err := retryOnBusy(func() error {
		_, err := s.db.Exec(
			`INSERT INTO sweep_runs (run_id, status, seed, request, started_at) VALUES (?, ?, ?, ?, ?)`,
			runID, RunStatusRunning, seed, string(reqJSON), time.Now().UTC().Format(time.RFC3339),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("inserting run %s: %w", runID, err)
	}
	return runID, nil
}

// SaveResult stores every section of a finished (possibly partial) sweep and
// marks the run complete.
func (s *Store) SaveResult(runID string, res *engine.GridResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, sec := range res.Sections {
		params, err := json.Marshal(sec.Params)
		if err != nil {
			return fmt.Errorf("encoding params for section %d: %w", sec.Index, err)
		}
		evals, err := json.Marshal(sec.Evaluators)
		if err != nil {
			return fmt.Errorf("encoding evaluators for section %d: %w", sec.Index, err)
		}
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO sweep_sections
			 (run_id, section_index, params, status, drops, failures, evaluators, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, sec.Index, string(params), string(sec.Status),
			sec.Drops, sec.Failures, string(evals), nullStr(sec.Error),
		); err != nil {
			return fmt.Errorf("inserting section %d: %w", sec.Index, err)
		}
	}

	completed := res.CompletedAt.UTC().Format(time.RFC3339)
	if _, err := tx.Exec(
		`UPDATE sweep_runs SET status = ?, cancelled = ?, completed_at = ? WHERE run_id = ?`,
		RunStatusComplete, boolInt(res.Cancelled), completed, runID,
	); err != nil {
		return fmt.Errorf("updating run %s: %w", runID, err)
	}

	return tx.Commit()
}

// MarkRunError records a run that aborted before producing results. The
// failure reason lives in the caller's logs; the store only keeps status.
func (s *Store) MarkRunError(runID string) error {
	return retryOnBusy(func() error {
		_, err := s.db.Exec(
			`UPDATE sweep_runs SET status = ?, completed_at = ? WHERE run_id = ?`,
			RunStatusError, time.Now().UTC().Format(time.RFC3339), runID,
		)
		return err
	})
}

// GetRun returns a single run record.
func (s *Store) GetRun(runID string) (*RunRecord, error) {
	var rec RunRecord
	var request sql.NullString
	var cancelled int
	var startedAt string
	var completedAt sql.NullString

	err := s.db.QueryRow(
		`SELECT run_id, status, seed, request, cancelled, started_at, completed_at
		 FROM sweep_runs WHERE run_id = ?`, runID,
	).Scan(&rec.RunID, &rec.Status, &rec.Seed, &request, &cancelled, &startedAt, &completedAt)
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}

	if request.Valid && request.String != "" {
		rec.Request = json.RawMessage(request.String)
	}
	rec.Cancelled = cancelled != 0
	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		rec.StartedAt = t
	}
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			rec.CompletedAt = &t
		}
	}
	return &rec, nil
}

// LoadResult reconstructs the GridResult of a stored run.
func (s *Store) LoadResult(runID string) (*engine.GridResult, error) {
	rec, err := s.GetRun(runID)
	if err != nil {
		return nil, err
	}

	res := &engine.GridResult{
		RunID:     rec.RunID,
		Seed:      rec.Seed,
		Cancelled: rec.Cancelled,
		StartedAt: rec.StartedAt,
	}
	if rec.CompletedAt != nil {
		res.CompletedAt = *rec.CompletedAt
	}

	rows, err := s.db.Query(
		`SELECT section_index, params, status, drops, failures, evaluators, error
		 FROM sweep_sections WHERE run_id = ? ORDER BY section_index`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading sections for run %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var sec engine.SectionResult
		var params, evals string
		var status string
		var errMsg sql.NullString
		if err := rows.Scan(&sec.Index, &params, &status, &sec.Drops, &sec.Failures, &evals, &errMsg); err != nil {
			return nil, err
		}
		sec.Status = engine.SectionStatus(status)
		if errMsg.Valid {
			sec.Error = errMsg.String
		}
		if err := json.Unmarshal([]byte(params), &sec.Params); err != nil {
			return nil, fmt.Errorf("decoding params for section %d: %w", sec.Index, err)
		}
		if err := json.Unmarshal([]byte(evals), &sec.Evaluators); err != nil {
			return nil, fmt.Errorf("decoding evaluators for section %d: %w", sec.Index, err)
		}
		res.Sections = append(res.Sections, sec)
	}
	return res, rows.Err()
}

// ListRuns returns all runs, most recent first.
func (s *Store) ListRuns() ([]RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, status, seed, request, cancelled, started_at, completed_at
		 FROM sweep_runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var request sql.NullString
		var cancelled int
		var startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(&rec.RunID, &rec.Status, &rec.Seed, &request, &cancelled, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		if request.Valid && request.String != "" {
			rec.Request = json.RawMessage(request.String)
		}
		rec.Cancelled = cancelled != 0
		if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
			rec.StartedAt = t
		}
		if completedAt.Valid {
			if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
				rec.CompletedAt = &t
			}
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package trace records the steps and oracle calls of the in-flight
// run in a run-scoped sqlite database. The HTTP surface serves these
// rows while the run is active; the file carries no history across
// runs.
package trace

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the run database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the trace database and applies the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply trace schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// CreateRun registers a run before its first iteration.
func (s *Store) CreateRun(runID, architecture string, rows, cols, iterations int) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, architecture, rows, cols, iterations) VALUES (?, ?, ?, ?, ?)`,
		runID, architecture, rows, cols, iterations)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun marks a run done and stores its aggregate summary JSON.
func (s *Store) FinishRun(runID, status, summaryJSON string) error {
	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, summary_json = ?, finished_at = CURRENT_TIMESTAMP WHERE run_id = ?`,
		status, summaryJSON, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// RecordStep appends one protocol step.
func (s *Store) RecordStep(rec *StepRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO steps (run_id, iteration, step, batch_json, collision, completed, items_left, feedback)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Iteration, rec.Step, rec.BatchJSON,
		boolInt(rec.Collision), boolInt(rec.Completed), rec.ItemsLeft, rec.Feedback)
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	return nil
}

// RecordCall appends one oracle call.
func (s *Store) RecordCall(rec *CallRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO oracle_calls (run_id, iteration, step, role, backend, agent_id, token_estimate, duration_ms, error_text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Iteration, rec.Step, rec.Role, rec.Backend, rec.AgentID,
		rec.TokenEstimate, rec.DurationMs, rec.ErrorText)
	if err != nil {
		return fmt.Errorf("record call: %w", err)
	}
	return nil
}

// ListSteps returns all recorded steps of a run in order.
func (s *Store) ListSteps(runID string) ([]StepRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, iteration, step, COALESCE(batch_json, ''), collision, completed, items_left, COALESCE(feedback, ''), created_at
		 FROM steps WHERE run_id = ? ORDER BY iteration, step`, runID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var out []StepRecord
	for rows.Next() {
		var rec StepRecord
		var collision, completed int
		if err := rows.Scan(&rec.RunID, &rec.Iteration, &rec.Step, &rec.BatchJSON,
			&collision, &completed, &rec.ItemsLeft, &rec.Feedback, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		rec.Collision = collision != 0
		rec.Completed = completed != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountCalls returns the number of oracle calls recorded for a run.
func (s *Store) CountCalls(runID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM oracle_calls WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count calls: %w", err)
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package trace

import "time"

// Schema creates the run-scoped tables. The database lives for one run
// only; nothing here outlives the experiment it records.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	architecture TEXT NOT NULL,
	rows INTEGER NOT NULL,
	cols INTEGER NOT NULL,
	iterations INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'running',
	summary_json TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	finished_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS steps (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	step INTEGER NOT NULL,
	batch_json TEXT,
	collision INTEGER NOT NULL DEFAULT 0,
	completed INTEGER NOT NULL DEFAULT 0,
	items_left INTEGER NOT NULL,
	feedback TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_steps_run ON steps(run_id, iteration, step);

CREATE TABLE IF NOT EXISTS oracle_calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	step INTEGER NOT NULL,
	role TEXT NOT NULL,
	backend TEXT NOT NULL,
	agent_id TEXT,
	token_estimate INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error_text TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_calls_run ON oracle_calls(run_id, iteration, step);
`

// StepRecord is one protocol step as stored.
type StepRecord struct {
	RunID     string    `json:"run_id"`
	Iteration int       `json:"iteration"`
	Step      int       `json:"step"`
	BatchJSON string    `json:"batch_json"`
	Collision bool      `json:"collision"`
	Completed bool      `json:"completed"`
	ItemsLeft int       `json:"items_left"`
	Feedback  string    `json:"feedback,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CallRecord is one oracle call as stored.
type CallRecord struct {
	RunID         string `json:"run_id"`
	Iteration     int    `json:"iteration"`
	Step          int    `json:"step"`
	Role          string `json:"role"`
	Backend       string `json:"backend"`
	AgentID       string `json:"agent_id,omitempty"`
	TokenEstimate int    `json:"token_estimate"`
	DurationMs    int64  `json:"duration_ms"`
	ErrorText     string `json:"error_text,omitempty"`
}

// Package history persists completed runs and their plugin reports to a
// local SQLite database so past executions can be inspected later.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Run is one persisted request execution.
type Run struct {
	ID          int64
	RunID       string
	FlowID      string
	RequestName string
	Method      string
	URL         string
	Status      int
	DurationMs  int64
	Error       string
	CreatedAt   time.Time
}

// Report is one persisted plugin report entry.
type Report struct {
	ID          int64
	PluginName  string
	RunID       string
	RequestName string
	Seq         int
	Data        string // JSON
	CreatedAt   time.Time
}

// Store wraps the history database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	flow_id TEXT NOT NULL DEFAULT '',
	request_name TEXT NOT NULL,
	method TEXT NOT NULL,
	url TEXT NOT NULL,
	status INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_run_id ON runs(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_flow_id ON runs(flow_id);

CREATE TABLE IF NOT EXISTS reports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	plugin_name TEXT NOT NULL,
	run_id TEXT NOT NULL,
	request_name TEXT NOT NULL DEFAULT '',
	seq INTEGER NOT NULL,
	data TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_reports_run_id ON reports(run_id);
`

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun persists one completed execution.
func (s *Store) RecordRun(ctx context.Context, run *Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, flow_id, request_name, method, url, status, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.FlowID, run.RequestName, run.Method, run.URL,
		run.Status, run.DurationMs, run.Error,
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// RecordReport persists one plugin report entry. Data must marshal to
// JSON; it already survived a round-trip check at report time.
func (s *Store) RecordReport(ctx context.Context, pluginName, runID, requestName string, seq int, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding report data: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (plugin_name, run_id, request_name, seq, data)
		 VALUES (?, ?, ?, ?, ?)`,
		pluginName, runID, requestName, seq, string(payload),
	)
	if err != nil {
		return fmt.Errorf("recording report: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, flow_id, request_name, method, url, status, duration_ms, error, created_at
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		if err := rows.Scan(&run.ID, &run.RunID, &run.FlowID, &run.RequestName,
			&run.Method, &run.URL, &run.Status, &run.DurationMs, &run.Error, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ReportsForRun returns the persisted reports for one run, in sequence
// order.
func (s *Store) ReportsForRun(ctx context.Context, runID string) ([]*Report, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, plugin_name, run_id, request_name, seq, data, created_at
		 FROM reports WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		rep := &Report{}
		if err := rows.Scan(&rep.ID, &rep.PluginName, &rep.RunID, &rep.RequestName,
			&rep.Seq, &rep.Data, &rep.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

// Package history persists suite runs so repeated invocations can spot
// flaky cases and drifting boot times. The store is a single sqlite file;
// losing it costs nothing but the flake report.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"grimm.is/bootcheck/internal/report"
)

// Store provides persistent storage for suite runs.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started DATETIME NOT NULL,
			architecture TEXT NOT NULL,
			suite TEXT NOT NULL,
			overall TEXT NOT NULL,
			total INTEGER NOT NULL,
			passed INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			kernel TEXT,
			rootfs TEXT
		);
		CREATE TABLE IF NOT EXISTS cases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			details TEXT,
			ts DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started);
		CREATE INDEX IF NOT EXISTS idx_cases_name ON cases(name);
		CREATE INDEX IF NOT EXISTS idx_cases_run ON cases(run_id);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create history tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// RecordRun persists one finalized suite run and its cases.
func (s *Store) RecordRun(id string, run *report.SuiteRun, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO runs
		(id, started, architecture, suite, overall, total, passed, failed, skipped, duration_ms, kernel, rootfs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, run.TestRun.Timestamp, run.TestRun.Architecture, run.TestRun.TestSuite,
		run.Results.OverallStatus, run.Results.TotalTests, run.Results.Passed,
		run.Results.Failed, run.Results.Skipped, duration.Milliseconds(),
		run.TestRun.Kernel, run.TestRun.Rootfs)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, c := range run.Results.Tests {
		_, err = tx.Exec(`INSERT INTO cases (run_id, name, status, details, ts)
			VALUES (?, ?, ?, ?, ?)`,
			id, c.Name, string(c.Status), c.Details, c.Timestamp)
		if err != nil {
			return fmt.Errorf("insert case %s: %w", c.Name, err)
		}
	}

	return tx.Commit()
}

// RunSummary is one stored run, newest first from Recent.
type RunSummary struct {
	ID           string
	Started      time.Time
	Architecture string
	Suite        string
	Overall      string
	Total        int
	Passed       int
	Failed       int
	Skipped      int
	Duration     time.Duration
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(limit int) ([]RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT id, started, architecture, suite, overall,
		total, passed, failed, skipped, duration_ms
		FROM runs ORDER BY started DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var ms int64
		if err := rows.Scan(&r.ID, &r.Started, &r.Architecture, &r.Suite,
			&r.Overall, &r.Total, &r.Passed, &r.Failed, &r.Skipped, &ms); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// ExpectedDuration returns the average wall-clock duration of past runs of
// suite, or zero when there is no history. Callers use it to sanity-check
// the configured timeout against reality.
func (s *Store) ExpectedDuration(suite string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var avg sql.NullFloat64
	err := s.db.QueryRow(`SELECT AVG(duration_ms) FROM runs WHERE suite = ?`, suite).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("query expected duration: %w", err)
	}
	if !avg.Valid {
		return 0, nil
	}
	return time.Duration(avg.Float64) * time.Millisecond, nil
}

// Package store keeps a local history of gate runs and baseline snapshots
// in SQLite, so operators can answer "when did this environment last pass"
// without trawling report files.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp   TEXT NOT NULL,
	environment TEXT NOT NULL,
	tolerance   TEXT NOT NULL,
	passed      INTEGER NOT NULL,
	total       INTEGER NOT NULL,
	critical    INTEGER NOT NULL,
	high        INTEGER NOT NULL,
	medium      INTEGER NOT NULL,
	low         INTEGER NOT NULL,
	regressions INTEGER NOT NULL,
	violations  INTEGER NOT NULL,
	warnings    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS baselines (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	generated_at TEXT NOT NULL,
	environment  TEXT NOT NULL,
	findings     INTEGER NOT NULL,
	superseded   INTEGER NOT NULL DEFAULT 0
);
`

// RunRecord is one row of gate-run history.
type RunRecord struct {
	ID          int64
	Timestamp   string
	Environment string
	Tolerance   string
	Passed      bool
	Total       int
	Critical    int
	High        int
	Medium      int
	Low         int
	Regressions int
	Violations  int
	Warnings    int
}

// BaselineRecord is one row of baseline lineage.
type BaselineRecord struct {
	ID          int64
	GeneratedAt string
	Environment string
	Findings    int
	Superseded  bool
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history db open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history db migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRun appends one run outcome to the history.
func (s *Store) RecordRun(r RunRecord) error {
	if r.Timestamp == "" {
		r.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (timestamp, environment, tolerance, passed, total, critical, high, medium, low, regressions, violations, warnings)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp, r.Environment, r.Tolerance, boolInt(r.Passed),
		r.Total, r.Critical, r.High, r.Medium, r.Low,
		r.Regressions, r.Violations, r.Warnings,
	)
	if err != nil {
		return fmt.Errorf("history record run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first, optionally filtered by
// environment.
func (s *Store) RecentRuns(environment string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, timestamp, environment, tolerance, passed, total, critical, high, medium, low, regressions, violations, warnings
		FROM runs`
	args := []any{}
	if environment != "" {
		query += ` WHERE environment = ?`
		args = append(args, environment)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("history query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var passed int
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Environment, &r.Tolerance, &passed,
			&r.Total, &r.Critical, &r.High, &r.Medium, &r.Low,
			&r.Regressions, &r.Violations, &r.Warnings); err != nil {
			return nil, fmt.Errorf("history scan run: %w", err)
		}
		r.Passed = passed != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordBaseline marks previous baselines for the environment superseded and
// inserts the new one. Baselines are append-only lineage, never updated.
func (s *Store) RecordBaseline(b BaselineRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("history record baseline: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE baselines SET superseded = 1 WHERE environment = ? AND superseded = 0`, b.Environment); err != nil {
		return fmt.Errorf("history supersede baselines: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO baselines (generated_at, environment, findings, superseded) VALUES (?, ?, ?, 0)`,
		b.GeneratedAt, b.Environment, b.Findings,
	); err != nil {
		return fmt.Errorf("history insert baseline: %w", err)
	}
	return tx.Commit()
}

// CurrentBaseline returns the non-superseded baseline row for the
// environment, or sql.ErrNoRows when none exists.
func (s *Store) CurrentBaseline(environment string) (BaselineRecord, error) {
	var b BaselineRecord
	var superseded int
	err := s.db.QueryRow(
		`SELECT id, generated_at, environment, findings, superseded FROM baselines
		 WHERE environment = ? AND superseded = 0 ORDER BY id DESC LIMIT 1`,
		environment,
	).Scan(&b.ID, &b.GeneratedAt, &b.Environment, &b.Findings, &superseded)
	if err != nil {
		return BaselineRecord{}, err
	}
	b.Superseded = superseded != 0
	return b, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// Package journal persists run and unit records in a SQLite database so finished runs can be
// listed and inspected after the process exits.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis"
	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis/journal/migrations"
)

// ErrNotFound is returned by GetRun for an unknown run id.
var ErrNotFound = errors.New("journal: run not found")

const timeLayout = time.RFC3339Nano

// Journal is a synthesis.Recorder backed by SQLite. It is safe for concurrent use.
type Journal struct {
	db   *sql.DB
	path string
}

var _ synthesis.Recorder = (*Journal)(nil)

// Open opens (creating if needed) the journal database at path and applies pending migrations.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	j := &Journal{db: db, path: path}
	if err := j.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return j, nil
}

func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) Path() string { return j.path }

func (j *Journal) migrate(fsys fs.FS) error {
	if _, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := j.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := j.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

// RecordUnit upserts one unit; a retried unit overwrites its earlier row.
func (j *Journal) RecordUnit(ctx context.Context, u synthesis.UnitRecord) error {
	issues := u.Issues
	if issues == nil {
		issues = []string{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return fmt.Errorf("marshalling issues: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO units (run_id, idx, workflow, title, status, attempts, score, issues, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, idx) DO UPDATE SET
			workflow = excluded.workflow,
			title = excluded.title,
			status = excluded.status,
			attempts = excluded.attempts,
			score = excluded.score,
			issues = excluded.issues,
			output = excluded.output
	`, u.RunID, u.Index, string(u.Workflow), u.Title, u.Status, u.Attempts, u.Score, string(issuesJSON), u.Output)
	if err != nil {
		return fmt.Errorf("recording unit %s/%d: %w", u.RunID, u.Index, err)
	}
	return nil
}

// RecordRun upserts the run summary. The quality report, when present, is stored as JSON.
func (j *Journal) RecordRun(ctx context.Context, r synthesis.RunRecord) error {
	var report sql.NullString
	if r.Report != nil {
		raw, err := json.Marshal(r.Report)
		if err != nil {
			return fmt.Errorf("marshalling report: %w", err)
		}
		report = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, workflow, status, source, units, started_at, finished_at, error, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			source = excluded.source,
			units = excluded.units,
			finished_at = excluded.finished_at,
			error = excluded.error,
			report = excluded.report
	`, r.RunID, string(r.Workflow), string(r.Status), r.Source, r.Units,
		formatTime(r.StartedAt), formatTime(r.FinishedAt), r.Err, report)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", r.RunID, err)
	}
	return nil
}

// Run is a stored run with its units in index order.
type Run struct {
	synthesis.RunRecord
	UnitRecords []synthesis.UnitRecord
}

// ListRuns returns the most recent runs first. limit <= 0 returns all of them.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]synthesis.RunRecord, error) {
	query := `SELECT run_id, workflow, status, source, units, started_at, finished_at, error, report
		FROM runs ORDER BY started_at DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []synthesis.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun loads one run and its units.
func (j *Journal) GetRun(ctx context.Context, runID string) (Run, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT run_id, workflow, status, source, units, started_at, finished_at, error, report
		FROM runs WHERE run_id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, idx, workflow, title, status, attempts, score, issues, output
		FROM units WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return Run{}, fmt.Errorf("loading units: %w", err)
	}
	defer rows.Close()

	run := Run{RunRecord: rec}
	for rows.Next() {
		var (
			u        synthesis.UnitRecord
			workflow string
			issues   string
		)
		if err := rows.Scan(&u.RunID, &u.Index, &workflow, &u.Title, &u.Status, &u.Attempts, &u.Score, &issues, &u.Output); err != nil {
			return Run{}, fmt.Errorf("scanning unit: %w", err)
		}
		u.Workflow = synthesis.Workflow(workflow)
		if err := json.Unmarshal([]byte(issues), &u.Issues); err != nil {
			return Run{}, fmt.Errorf("decoding issues: %w", err)
		}
		if len(u.Issues) == 0 {
			u.Issues = nil
		}
		run.UnitRecords = append(run.UnitRecords, u)
	}
	return run, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (synthesis.RunRecord, error) {
	var (
		r                 synthesis.RunRecord
		workflow, status  string
		started, finished string
		report            sql.NullString
	)
	if err := s.Scan(&r.RunID, &workflow, &status, &r.Source, &r.Units, &started, &finished, &r.Err, &report); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scanning run: %w", err)
	}
	r.Workflow = synthesis.Workflow(workflow)
	r.Status = synthesis.RunStatus(status)
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	if report.Valid {
		var q synthesis.QualityReport
		if err := json.Unmarshal([]byte(report.String), &q); err != nil {
			return r, fmt.Errorf("decoding report: %w", err)
		}
		r.Report = &q
	}
	return r, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

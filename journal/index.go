// Package journal records every invocation: a SQLite index of runs and
// per-command outcomes, and a zstd-compressed JSONL trace of committed poses.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timestamps are stored fixed-width so they sort as text
const tsFormat = "2006-01-02T15:04:05.000000000Z"

// Run is one invocation's summary row.
type Run struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	Backend      string
	Commands     int
	Frames       int
	OutcomeKind  string // "" on full success
	FailedIndex  int    // -1 when no command failed
	Message      string
	ArtifactPath string
	TracePath    string
}

// CommandRow is one command's outcome within a run.
type CommandRow struct {
	RunID          string
	Index          int
	Description    string
	Committed      bool
	Reason         string
	FramesAppended int
}

// Index is the SQLite run index. Writes are synchronous.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (or creates) the index at path.
func OpenIndex(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Index{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			backend TEXT NOT NULL,
			commands INTEGER NOT NULL,
			frames INTEGER NOT NULL,
			outcome_kind TEXT NOT NULL,
			failed_index INTEGER NOT NULL,
			message TEXT,
			artifact_path TEXT,
			trace_path TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS command_results (
			run_id TEXT NOT NULL REFERENCES runs(id),
			idx INTEGER NOT NULL,
			description TEXT NOT NULL,
			committed INTEGER NOT NULL,
			reason TEXT NOT NULL,
			frames INTEGER NOT NULL,
			PRIMARY KEY (run_id, idx)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Index) Close() error {
	return ix.db.Close()
}

// Record stores a run and its command rows in one transaction.
func (ix *Index) Record(ctx context.Context, run Run, rows []CommandRow) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, backend, commands, frames, outcome_kind, failed_index, message, artifact_path, trace_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(tsFormat),
		run.FinishedAt.UTC().Format(tsFormat),
		run.Backend, run.Commands, run.Frames,
		run.OutcomeKind, run.FailedIndex, run.Message,
		run.ArtifactPath, run.TracePath,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	for _, r := range rows {
		committed := 0
		if r.Committed {
			committed = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO command_results (run_id, idx, description, committed, reason, frames) VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, r.Index, r.Description, committed, r.Reason, r.FramesAppended,
		); err != nil {
			return fmt.Errorf("insert command %d of run %s: %w", r.Index, run.ID, err)
		}
	}
	return tx.Commit()
}

// Recent returns the latest runs, newest first.
func (ix *Index) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, backend, commands, frames, outcome_kind, failed_index,
		        COALESCE(message, ''), COALESCE(artifact_path, ''), COALESCE(trace_path, '')
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Backend, &r.Commands, &r.Frames,
			&r.OutcomeKind, &r.FailedIndex, &r.Message, &r.ArtifactPath, &r.TracePath); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(tsFormat, started)
		r.FinishedAt, _ = time.Parse(tsFormat, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Commands returns the command rows of a run in index order.
func (ix *Index) Commands(ctx context.Context, runID string) ([]CommandRow, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT idx, description, committed, reason, frames FROM command_results WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommandRow
	for rows.Next() {
		r := CommandRow{RunID: runID}
		var committed int
		if err := rows.Scan(&r.Index, &r.Description, &committed, &r.Reason, &r.FramesAppended); err != nil {
			return nil, err
		}
		r.Committed = committed != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

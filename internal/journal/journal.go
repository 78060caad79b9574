// Package journal keeps a durable local record of file outcomes.
//
// Each pipeline run appends one entry. The journal answers two questions: what
// happened to recent files (for operators), and whether a file's exact content
// was stored by a run whose backup move failed (so the retry archives it
// without inserting it a second time).
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/celllog/internal/ingest"
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id     INTEGER NOT NULL,
	file_name   TEXT    NOT NULL,
	checksum    TEXT    NOT NULL DEFAULT '',
	stage       TEXT    NOT NULL,
	result      TEXT    NOT NULL,
	rows        INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	document_id TEXT    NOT NULL DEFAULT '',
	committed   INTEGER NOT NULL DEFAULT 0,
	destination TEXT    NOT NULL DEFAULT '',
	error_code  TEXT    NOT NULL DEFAULT '',
	error       TEXT    NOT NULL DEFAULT '',
	alert       INTEGER NOT NULL DEFAULT 0,
	started_at  TEXT    NOT NULL,
	finished_at TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS outcomes_committed ON outcomes (file_name, checksum) WHERE committed = 1;
`

// Entry is one journaled outcome.
type Entry struct {
	ID          int64     `json:"id"`
	TaskID      uint64    `json:"task_id"`
	FileName    string    `json:"file_name"`
	Checksum    string    `json:"checksum,omitempty"`
	Stage       string    `json:"stage"`
	Result      string    `json:"result"`
	Rows        int       `json:"rows"`
	Skipped     int       `json:"skipped"`
	DocumentID  string    `json:"document_id,omitempty"`
	Committed   bool      `json:"committed"`
	Destination string    `json:"destination,omitempty"`
	ErrorCode   string    `json:"error_code,omitempty"`
	Error       string    `json:"error,omitempty"`
	Alert       bool      `json:"alert"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Journal is a sqlite-backed outcome log.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One writer keeps sqlite from returning SQLITE_BUSY under concurrent tasks.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends an outcome.
func (j *Journal) Record(ctx context.Context, o ingest.Outcome) error {
	info := ingest.Describe(o.Err)
	errText := ""
	if o.Err != nil {
		errText = o.Err.Error()
	}
	alert := ingest.Classify(o.Err) == ingest.KindArchival

	// The run's context may already be cancelled at shutdown; the entry
	// must still be written.
	ctx = context.WithoutCancel(ctx)

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO outcomes (
			task_id, file_name, checksum, stage, result, rows, skipped,
			document_id, committed, destination, error_code, error, alert,
			started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(o.TaskID), o.File, o.Checksum, string(o.Stage), string(o.Result), o.Rows, o.Skipped,
		o.DocumentID, o.Committed, o.Destination, info.Code, errText, alert,
		o.Started.UTC().Format(time.RFC3339Nano), o.Finished.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal record: %w", err)
	}
	return nil
}

// Unarchived reports whether the latest stored run of a file with this name
// and content checksum failed to move it to backup. A later successful
// archive clears the state, so a re-dropped copy is stored again.
func (j *Journal) Unarchived(ctx context.Context, fileName, checksum string) (bool, error) {
	if checksum == "" {
		return false, nil
	}
	var result string
	err := j.db.QueryRowContext(ctx, `
		SELECT result FROM outcomes
		WHERE committed = 1 AND file_name = ? AND checksum = ?
		ORDER BY id DESC LIMIT 1`,
		fileName, checksum,
	).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("journal lookup: %w", err)
	}
	return result == string(ingest.ResultUnarchived), nil
}

// Recent returns up to limit entries, newest first. Only alerts are returned
// when alertsOnly is set.
func (j *Journal) Recent(ctx context.Context, limit int, alertsOnly bool) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, task_id, file_name, checksum, stage, result, rows, skipped,
		       document_id, committed, destination, error_code, error, alert,
		       started_at, finished_at
		FROM outcomes`
	if alertsOnly {
		query += ` WHERE alert = 1`
	}
	query += ` ORDER BY id DESC LIMIT ?`

	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e               Entry
			taskID          int64
			started, finish string
		)
		if err := rows.Scan(
			&e.ID, &taskID, &e.FileName, &e.Checksum, &e.Stage, &e.Result, &e.Rows, &e.Skipped,
			&e.DocumentID, &e.Committed, &e.Destination, &e.ErrorCode, &e.Error, &e.Alert,
			&started, &finish,
		); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		e.TaskID = uint64(taskID)
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		e.FinishedAt, _ = time.Parse(time.RFC3339Nano, finish)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal rows: %w", err)
	}
	return entries, nil
}

// Package history persists a per-invocation audit trail of tool commands to
// SQLite, so past deploys and workflow runs survive host restarts and can be
// inspected later.
package history

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one tool invocation. Secret values are never part of a record;
// commands are stored by operation name and stage only.
type Record struct {
	ID        int64          `json:"id"`
	Op        string         `json:"op"`
	Workspace string         `json:"workspace"`
	Stage     string         `json:"stage,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   sql.NullTime   `json:"ended_at"`
	ExitCode  sql.NullInt64  `json:"exit_code"`
	Error     sql.NullString `json:"error"`
}

// DB stores records in a SQLite file (modernc.org/sqlite, CGO-free).
// Use ":memory:" for an in-memory database.
type DB struct {
	db *sql.DB
}

// Open opens the history database at path.
func Open(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty history path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (h *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS command_history(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			op TEXT NOT NULL,
			workspace TEXT NOT NULL,
			stage TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP NULL,
			exit_code INTEGER NULL,
			error TEXT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_command_history_workspace ON command_history(workspace);`,
		`CREATE INDEX IF NOT EXISTS idx_command_history_started ON command_history(started_at);`,
	}
	for _, q := range stmts {
		if _, err := h.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (h *DB) Close() error { return h.db.Close() }

// RecordStart inserts an in-flight invocation and returns its row id, which
// RecordEnd closes out once the command finishes.
func (h *DB) RecordStart(ctx context.Context, op, ws, stage string) (int64, error) {
	res, err := h.db.ExecContext(ctx, `
		INSERT INTO command_history(op, workspace, stage, started_at)
		VALUES(?, ?, ?, ?);`,
		op, ws, stage, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (h *DB) RecordEnd(ctx context.Context, id int64, exitCode int, runErr error) error {
	var errStr sql.NullString
	if runErr != nil {
		errStr = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := h.db.ExecContext(ctx, `
		UPDATE command_history
		SET ended_at=?, exit_code=?, error=?
		WHERE id=?;`,
		time.Now().UTC(), exitCode, errStr, id)
	return err
}

// Recent returns the newest records, optionally filtered to one workspace.
func (h *DB) Recent(ctx context.Context, ws string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `
		SELECT id, op, workspace, stage, started_at, ended_at, exit_code, error
		FROM command_history`
	args := []any{}
	if ws != "" {
		q += ` WHERE workspace=?`
		args = append(args, ws)
	}
	q += ` ORDER BY started_at DESC, id DESC LIMIT ?;`
	args = append(args, limit)
	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

// PurgeOlderThan deletes finished records older than the cutoff.
func (h *DB) PurgeOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, `
		DELETE FROM command_history WHERE ended_at IS NOT NULL AND ended_at < ?;`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	out := make([]Record, 0)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Op, &r.Workspace, &r.Stage, &r.StartedAt, &r.EndedAt, &r.ExitCode, &r.Error); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

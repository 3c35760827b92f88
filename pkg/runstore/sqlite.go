package runstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	message_id  TEXT NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	tool_call_id TEXT NOT NULL DEFAULT '',
	is_error    INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL,
	UNIQUE(run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_turns_run ON turns(run_id, seq);
`

// SQLiteStore is a Sink backed by a local sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping run store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize run store schema: %w", err)
	}

	// sqlite supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteStore{db: db}, nil
}

// AppendTurns implements Sink. Turns are written in one transaction so a
// run's record is all-or-nothing.
func (s *SQLiteStore) AppendTurns(ctx context.Context, turns []Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin turn append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO turns (run_id, seq, message_id, role, content, tool_call_id, is_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare turn insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range turns {
		t := &turns[i]
		if _, err := stmt.ExecContext(ctx,
			t.RunID, t.Seq, t.MessageID, t.Role, t.Content, t.ToolCallID, t.IsError, t.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert turn %d of run %s: %w", t.Seq, t.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit turn append: %w", err)
	}
	return nil
}

// Turns returns a run's turns in sequence order.
func (s *SQLiteStore) Turns(ctx context.Context, runID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, message_id, role, content, tool_call_id, is_error, created_at
		FROM turns WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query turns for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.RunID, &t.Seq, &t.MessageID, &t.Role, &t.Content,
			&t.ToolCallID, &t.IsError, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}

// Close implements Sink.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close run store: %w", err)
	}
	return nil
}

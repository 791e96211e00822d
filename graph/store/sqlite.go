package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed Checkpointer, following the reference
// schema: checkpoints(thread_id, seq, created_at, node, step, state_json,
// queue_json) with primary key (thread_id, seq), plus messages and
// sessions tables. AppendMessage and Messages keep a per-thread chat
// transcript in the messages table; nothing in this package reads or
// writes the sessions table.
type SQLiteStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore opens (creating if absent) a SQLite database at path and
// ensures its schema exists. Pass ":memory:" for an ephemeral database.
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrap(KindConnection, "open", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, wrap(KindConnection, pragma, err)
		}
	}

	s := &SQLiteStore[S]{db: db, path: path}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore[S]) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			node TEXT NOT NULL,
			step INTEGER NOT NULL,
			state_json TEXT NOT NULL,
			queue_json TEXT NOT NULL,
			PRIMARY KEY (thread_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			thread_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (thread_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			thread_id TEXT NOT NULL PRIMARY KEY,
			session_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return wrap(KindMigration, "create schema", err)
		}
	}
	return nil
}

// Save implements Checkpointer. seq is the checkpoint's Step, matching
// the reference schema's (thread_id, seq) primary key.
func (s *SQLiteStore[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
	if s.isClosed() {
		return wrap(KindConnection, "save", sql.ErrConnDone)
	}
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return wrap(KindSerialization, "marshal state", err)
	}
	queueJSON, err := json.Marshal(cp.PendingQueue)
	if err != nil {
		return wrap(KindSerialization, "marshal pending queue", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, seq, created_at, node, step, state_json, queue_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id, seq) DO UPDATE SET
			created_at = excluded.created_at,
			node = excluded.node,
			step = excluded.step,
			state_json = excluded.state_json,
			queue_json = excluded.queue_json
	`, cp.ThreadID, cp.Step, cp.CreatedAt.Format(time.RFC3339Nano), cp.Node, cp.Step, string(stateJSON), string(queueJSON))
	if err != nil {
		return wrap(KindQuery, "save checkpoint", err)
	}
	return nil
}

// Load implements Checkpointer.
func (s *SQLiteStore[S]) Load(ctx context.Context, threadID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]
	if s.isClosed() {
		return zero, wrap(KindConnection, "load", sql.ErrConnDone)
	}

	var (
		stateJSON, queueJSON, createdAt string
		cp                              Checkpoint[S]
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT thread_id, seq, created_at, node, step, state_json, queue_json
		FROM checkpoints WHERE thread_id = ? ORDER BY seq DESC LIMIT 1
	`, threadID).Scan(&cp.ThreadID, &cp.Step, &createdAt, &cp.Node, &cp.Step, &stateJSON, &queueJSON)
	if err == sql.ErrNoRows {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, wrap(KindQuery, "load checkpoint", err)
	}
	if cp.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return zero, wrap(KindSerialization, "parse created_at", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return zero, wrap(KindSerialization, "unmarshal state", err)
	}
	if err := json.Unmarshal([]byte(queueJSON), &cp.PendingQueue); err != nil {
		return zero, wrap(KindSerialization, "unmarshal pending queue", err)
	}
	return cp, nil
}

// List implements Checkpointer.
func (s *SQLiteStore[S]) List(ctx context.Context, threadID string) ([]Metadata, error) {
	if s.isClosed() {
		return nil, wrap(KindConnection, "list", sql.ErrConnDone)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, seq, node, created_at FROM checkpoints
		WHERE thread_id = ? ORDER BY seq ASC
	`, threadID)
	if err != nil {
		return nil, wrap(KindQuery, "list checkpoints", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Metadata
	for rows.Next() {
		var m Metadata
		var createdAt string
		if err := rows.Scan(&m.ThreadID, &m.Step, &m.Node, &createdAt); err != nil {
			return nil, wrap(KindQuery, "scan checkpoint row", err)
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, wrap(KindSerialization, "parse created_at", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(KindQuery, "iterate checkpoint rows", err)
	}
	return out, nil
}

// AppendMessage persists one chat turn to the messages table.
func (s *SQLiteStore[S]) AppendMessage(ctx context.Context, threadID string, seq int, role, content string) error {
	if s.isClosed() {
		return wrap(KindConnection, "append message", sql.ErrConnDone)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (thread_id, seq, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(thread_id, seq) DO UPDATE SET role = excluded.role, content = excluded.content
	`, threadID, seq, role, content, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return wrap(KindQuery, "append message", err)
	}
	return nil
}

// Messages returns the thread's chat history from the messages table,
// ordered by seq.
func (s *SQLiteStore[S]) Messages(ctx context.Context, threadID string) ([]TranscriptMessage, error) {
	if s.isClosed() {
		return nil, wrap(KindConnection, "messages", sql.ErrConnDone)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content FROM messages WHERE thread_id = ? ORDER BY seq ASC
	`, threadID)
	if err != nil {
		return nil, wrap(KindQuery, "query messages", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TranscriptMessage
	for rows.Next() {
		var m TranscriptMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, wrap(KindQuery, "scan message row", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore[S]) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close closes the underlying database connection. Safe to call more
// than once.
func (s *SQLiteStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore[S]) Ping(ctx context.Context) error {
	if s.isClosed() {
		return wrap(KindConnection, "ping", sql.ErrConnDone)
	}
	return s.db.PingContext(ctx)
}

// TranscriptMessage is one chat turn in a thread's transcript.
type TranscriptMessage struct {
	Role    string
	Content string
}

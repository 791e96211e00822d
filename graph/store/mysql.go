package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB-backed Checkpointer for production
// deployments needing persistence across process restarts and multiple
// workers. Same reference schema as SQLiteStore.
type MySQLStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore opens a connection pool against dsn and ensures the
// schema exists. dsn follows the go-sql-driver/mysql DSN format, e.g.
// "user:pass@tcp(127.0.0.1:3306)/agentgraph?parseTime=true".
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, wrap(KindConnection, "open", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, wrap(KindConnection, "ping", err)
	}

	s := &MySQLStore[S]{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore[S]) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id VARCHAR(255) NOT NULL,
			seq BIGINT NOT NULL,
			created_at DATETIME(6) NOT NULL,
			node VARCHAR(255) NOT NULL,
			step BIGINT NOT NULL,
			state_json LONGTEXT NOT NULL,
			queue_json LONGTEXT NOT NULL,
			PRIMARY KEY (thread_id, seq)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS messages (
			thread_id VARCHAR(255) NOT NULL,
			seq BIGINT NOT NULL,
			role VARCHAR(32) NOT NULL,
			content LONGTEXT NOT NULL,
			created_at DATETIME(6) NOT NULL,
			PRIMARY KEY (thread_id, seq)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS sessions (
			thread_id VARCHAR(255) NOT NULL PRIMARY KEY,
			session_id VARCHAR(255) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL
		) ENGINE=InnoDB`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return wrap(KindMigration, "create schema", err)
		}
	}
	return nil
}

// Save implements Checkpointer.
func (s *MySQLStore[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
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
		ON DUPLICATE KEY UPDATE
			created_at = VALUES(created_at),
			node = VALUES(node),
			step = VALUES(step),
			state_json = VALUES(state_json),
			queue_json = VALUES(queue_json)
	`, cp.ThreadID, cp.Step, cp.CreatedAt.UTC(), cp.Node, cp.Step, string(stateJSON), string(queueJSON))
	if err != nil {
		return wrap(KindQuery, "save checkpoint", err)
	}
	return nil
}

// Load implements Checkpointer.
func (s *MySQLStore[S]) Load(ctx context.Context, threadID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]
	if s.isClosed() {
		return zero, wrap(KindConnection, "load", sql.ErrConnDone)
	}

	var (
		stateJSON, queueJSON string
		cp                   Checkpoint[S]
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT thread_id, seq, created_at, node, step, state_json, queue_json
		FROM checkpoints WHERE thread_id = ? ORDER BY seq DESC LIMIT 1
	`, threadID).Scan(&cp.ThreadID, &cp.Step, &cp.CreatedAt, &cp.Node, &cp.Step, &stateJSON, &queueJSON)
	if err == sql.ErrNoRows {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, wrap(KindQuery, "load checkpoint", err)
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
func (s *MySQLStore[S]) List(ctx context.Context, threadID string) ([]Metadata, error) {
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
		if err := rows.Scan(&m.ThreadID, &m.Step, &m.Node, &m.CreatedAt); err != nil {
			return nil, wrap(KindQuery, "scan checkpoint row", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendMessage persists one chat turn to the messages table.
func (s *MySQLStore[S]) AppendMessage(ctx context.Context, threadID string, seq int, role, content string) error {
	if s.isClosed() {
		return wrap(KindConnection, "append message", sql.ErrConnDone)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (thread_id, seq, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE role = VALUES(role), content = VALUES(content)
	`, threadID, seq, role, content, time.Now().UTC())
	if err != nil {
		return wrap(KindQuery, "append message", err)
	}
	return nil
}

// Messages returns the thread's chat history from the messages table,
// ordered by seq.
func (s *MySQLStore[S]) Messages(ctx context.Context, threadID string) ([]TranscriptMessage, error) {
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

func (s *MySQLStore[S]) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close closes the connection pool. Safe to call more than once.
func (s *MySQLStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies connectivity to the database.
func (s *MySQLStore[S]) Ping(ctx context.Context) error {
	if s.isClosed() {
		return wrap(KindConnection, "ping", sql.ErrConnDone)
	}
	return s.db.PingContext(ctx)
}

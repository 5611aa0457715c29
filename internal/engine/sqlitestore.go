package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

// SQLiteMemoryStore persists conversation history to a SQLite database,
// one row per session holding its full message slice as JSON. Grounded
// stylistically on the teacher's session-store pattern (one durable
// backend alongside the in-process default) but re-keyed to this engine's
// (userID, sessionID) -> []arc.Message shape; the teacher's own Postgres/
// CockroachDB session backend was dropped (DESIGN.md) since nothing in
// this engine needs a networked database, only a durable single-node one.
type SQLiteMemoryStore struct {
	db *sql.DB
}

// OpenSQLiteMemoryStore opens (creating if absent) a SQLite database at
// path and ensures its schema exists.
func OpenSQLiteMemoryStore(path string) (*SQLiteMemoryStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite memory store: open: %w", err)
	}
	store := &SQLiteMemoryStore{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteMemoryStoreFromDB wraps an already-open *sql.DB, used by tests
// to inject a go-sqlmock connection instead of a real file.
func NewSQLiteMemoryStoreFromDB(db *sql.DB) *SQLiteMemoryStore {
	return &SQLiteMemoryStore{db: db}
}

func (s *SQLiteMemoryStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	messages   TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("sqlite memory store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteMemoryStore) Get(ctx context.Context, sessionID string) ([]arc.Message, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT messages FROM sessions WHERE session_id = ?`, sessionID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite memory store: get: %w", err)
	}
	var messages []arc.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, fmt.Errorf("sqlite memory store: decode: %w", err)
	}
	return messages, nil
}

func (s *SQLiteMemoryStore) Save(ctx context.Context, userID, sessionID string, messages []arc.Message) error {
	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("sqlite memory store: encode: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO sessions (session_id, user_id, messages, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET user_id = excluded.user_id, messages = excluded.messages, updated_at = excluded.updated_at`,
		sessionID, userID, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite memory store: save: %w", err)
	}
	return nil
}

func (s *SQLiteMemoryStore) Remove(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("sqlite memory store: remove: %w", err)
	}
	return nil
}

func (s *SQLiteMemoryStore) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("sqlite memory store: list: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite memory store: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLiteMemoryStore) Close() error {
	return s.db.Close()
}

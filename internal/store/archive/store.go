// Package archive persists conversation transcripts to SQLite so live
// sessions can be rebuilt after a restart. Role and content round-trip
// exactly, system message included; the message order is preserved
// through an explicit sequence column.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/zhouzirui/exec-dashboard/backend/internal/model/conversation"
)

// ErrSnapshotNotFound reports an unknown session identifier.
var ErrSnapshotNotFound = errors.New("session snapshot not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	session_id TEXT    NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	role       TEXT    NOT NULL,
	content    TEXT    NOT NULL,
	PRIMARY KEY (session_id, seq)
);
`

// SessionSnapshot is the serialized form of one session: the full
// request-message sequence (system message first when set) plus the
// session clock.
type SessionSnapshot struct {
	ID        string
	StartedAt time.Time
	Messages  []conversation.Message
}

// Store is a SQLite-backed snapshot archive. Safe for concurrent use;
// each call takes its own pooled connection.
type Store struct {
	pool *sqlitex.Pool
}

// Open creates or opens the archive database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: 4,
		PrepareConn: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, `
				PRAGMA journal_mode = WAL;
				PRAGMA busy_timeout = 5000;
				PRAGMA foreign_keys = ON;
			`, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("archive: opening %s: %w", path, err)
	}

	store := &Store{pool: pool}
	if err := store.ensureSchema(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("archive: taking connection: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("archive: creating schema: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the stored state of one session in a single
// transaction: the session row is upserted and its message rows are
// rewritten from scratch.
func (s *Store) SaveSnapshot(ctx context.Context, snap SessionSnapshot) (err error) {
	if snap.ID == "" {
		return errors.New("archive: snapshot id is empty")
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("archive: taking connection: %w", err)
	}
	defer s.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("archive: beginning transaction: %w", err)
	}
	defer endFn(&err)

	err = sqlitex.Execute(conn, `
		INSERT INTO sessions (id, started_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET started_at = excluded.started_at, updated_at = excluded.updated_at
	`, &sqlitex.ExecOptions{
		Args: []any{snap.ID, snap.StartedAt.Unix(), time.Now().Unix()},
	})
	if err != nil {
		return fmt.Errorf("archive: upserting session %s: %w", snap.ID, err)
	}

	err = sqlitex.Execute(conn, "DELETE FROM messages WHERE session_id = ?", &sqlitex.ExecOptions{
		Args: []any{snap.ID},
	})
	if err != nil {
		return fmt.Errorf("archive: clearing messages for %s: %w", snap.ID, err)
	}

	for seq, msg := range snap.Messages {
		err = sqlitex.Execute(conn, "INSERT INTO messages (session_id, seq, role, content) VALUES (?, ?, ?, ?)", &sqlitex.ExecOptions{
			Args: []any{snap.ID, seq, string(msg.Role), msg.Content},
		})
		if err != nil {
			return fmt.Errorf("archive: inserting message %d for %s: %w", seq, snap.ID, err)
		}
	}

	return nil
}

// LoadSnapshot reads one session back, messages ordered by sequence.
func (s *Store) LoadSnapshot(ctx context.Context, sessionID string) (SessionSnapshot, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return SessionSnapshot{}, fmt.Errorf("archive: taking connection: %w", err)
	}
	defer s.pool.Put(conn)

	snap := SessionSnapshot{ID: sessionID}
	found := false

	err = sqlitex.Execute(conn, "SELECT started_at FROM sessions WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{sessionID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			snap.StartedAt = time.Unix(stmt.ColumnInt64(0), 0).UTC()
			return nil
		},
	})
	if err != nil {
		return SessionSnapshot{}, fmt.Errorf("archive: loading session %s: %w", sessionID, err)
	}
	if !found {
		return SessionSnapshot{}, ErrSnapshotNotFound
	}

	err = sqlitex.Execute(conn, "SELECT role, content FROM messages WHERE session_id = ? ORDER BY seq", &sqlitex.ExecOptions{
		Args: []any{sessionID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			snap.Messages = append(snap.Messages, conversation.Message{
				Role:    conversation.Role(stmt.ColumnText(0)),
				Content: stmt.ColumnText(1),
			})
			return nil
		},
	})
	if err != nil {
		return SessionSnapshot{}, fmt.Errorf("archive: loading messages for %s: %w", sessionID, err)
	}

	return snap, nil
}

// ListSessions returns all archived session identifiers, most recently
// updated first.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: taking connection: %w", err)
	}
	defer s.pool.Put(conn)

	var ids []string
	err = sqlitex.Execute(conn, "SELECT id FROM sessions ORDER BY updated_at DESC", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			ids = append(ids, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("archive: listing sessions: %w", err)
	}
	return ids, nil
}

// DeleteSession removes a session and its messages. Deleting an unknown
// session is a no-op.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("archive: taking connection: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, "DELETE FROM sessions WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{sessionID},
	})
	if err != nil {
		return fmt.Errorf("archive: deleting session %s: %w", sessionID, err)
	}
	return nil
}

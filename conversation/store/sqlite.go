package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[M].
//
// It stores sessions and transcripts in a single-file database, which makes
// it the natural choice for the CLI demos and single-process web deployments.
//
// Features:
//   - Single file database (e.g., "./automed.db")
//   - Auto-migration on first use
//   - WAL mode for concurrent reads
//   - Transactional writes
//
// Schema:
//   - automed_sessions: one row per session header
//   - automed_messages: transcript entries keyed by (session_id, seq_no)
type SQLiteStore[M any] struct {
	sqlStore[M]
	path string
}

const sqliteUpsertSession = `
	INSERT INTO automed_sessions (id, participants, round_limit, current_round, is_terminated, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		participants = excluded.participants,
		round_limit = excluded.round_limit,
		current_round = excluded.current_round,
		is_terminated = excluded.is_terminated,
		updated_at = excluded.updated_at`

const sqliteUpsertMessage = `
	INSERT INTO automed_messages (session_id, seq_no, message, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(session_id, seq_no) DO UPDATE SET message = excluded.message`

// NewSQLiteStore creates a new SQLite-backed store.
//
// The path parameter specifies the database file location:
//   - "./automed.db" - file in current directory
//   - ":memory:" - in-memory database (data lost on close)
//
// Example:
//
//	st, err := store.NewSQLiteStore[conversation.Message]("./automed.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore[M any](path string) (*SQLiteStore[M], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time; a single connection also keeps
	// ":memory:" databases alive for the life of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore[M]{
		sqlStore: sqlStore[M]{
			db: db,
			dialect: dialect{
				upsertSession: sqliteUpsertSession,
				upsertMessage: sqliteUpsertMessage,
			},
		},
		path: path,
	}

	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Path returns the database location the store was opened with.
func (s *SQLiteStore[M]) Path() string {
	return s.path
}

func (s *SQLiteStore[M]) createTables(ctx context.Context) error {
	sessionsTable := `
		CREATE TABLE IF NOT EXISTS automed_sessions (
			id TEXT PRIMARY KEY,
			participants TEXT NOT NULL,
			round_limit INTEGER NOT NULL,
			current_round INTEGER NOT NULL,
			is_terminated INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, sessionsTable); err != nil {
		return fmt.Errorf("failed to create automed_sessions table: %w", err)
	}

	messagesTable := `
		CREATE TABLE IF NOT EXISTS automed_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES automed_sessions(id) ON DELETE CASCADE,
			seq_no INTEGER NOT NULL,
			message TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(session_id, seq_no)
		)
	`
	if _, err := s.db.ExecContext(ctx, messagesTable); err != nil {
		return fmt.Errorf("failed to create automed_messages table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_sessions_updated ON automed_sessions(updated_at)"); err != nil {
		return fmt.Errorf("failed to create idx_sessions_updated: %w", err)
	}

	return nil
}

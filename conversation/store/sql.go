package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// dialect holds the statements that differ between SQL backends.
type dialect struct {
	upsertSession string
	upsertMessage string
}

const (
	selectSessionSQL = `SELECT id, participants, round_limit, current_round, is_terminated, created_at, updated_at
		FROM automed_sessions WHERE id = ?`
	listSessionsSQL = `SELECT id, participants, round_limit, current_round, is_terminated, created_at, updated_at
		FROM automed_sessions ORDER BY updated_at DESC, id ASC`
	sessionExistsSQL  = `SELECT 1 FROM automed_sessions WHERE id = ?`
	selectMessagesSQL = `SELECT message FROM automed_messages WHERE session_id = ? ORDER BY seq_no ASC`
	deleteMessagesSQL = `DELETE FROM automed_messages WHERE session_id = ?`
	deleteSessionSQL  = `DELETE FROM automed_sessions WHERE id = ?`
)

// sqlStore implements Store[M] on database/sql. SQLiteStore and MySQLStore
// embed it and supply their dialect and schema.
type sqlStore[M any] struct {
	db      *sql.DB
	dialect dialect
	mu      sync.RWMutex
	closed  bool
}

func (s *sqlStore[M]) checkOpen() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// SaveSession implements Store.
func (s *sqlStore[M]) SaveSession(ctx context.Context, rec SessionRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	rec = stamp(rec)
	participants, err := json.Marshal(rec.Participants)
	if err != nil {
		return fmt.Errorf("failed to marshal participants: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.dialect.upsertSession,
		rec.ID, string(participants), rec.RoundLimit, rec.CurrentRound, rec.Terminated,
		rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", rec.ID, err)
	}
	return nil
}

// LoadSession implements Store.
func (s *sqlStore[M]) LoadSession(ctx context.Context, id string) (SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return SessionRecord{}, err
	}

	rec, err := scanSession(s.db.QueryRowContext(ctx, selectSessionSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return rec, nil
}

// AppendMessage implements Store.
func (s *sqlStore[M]) AppendMessage(ctx context.Context, sessionID string, seq int, msg M) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := sessionExists(ctx, tx, sessionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.dialect.upsertMessage,
			sessionID, seq, string(data), time.Now().UTC().UnixNano()); err != nil {
			return fmt.Errorf("failed to append message to session %s: %w", sessionID, err)
		}
		return nil
	})
}

// LoadTranscript implements Store.
func (s *sqlStore[M]) LoadTranscript(ctx context.Context, sessionID string) ([]M, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var out []M
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := sessionExists(ctx, tx, sessionID); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, selectMessagesSQL, sessionID)
		if err != nil {
			return fmt.Errorf("failed to query transcript: %w", err)
		}
		defer func() { _ = rows.Close() }()

		out = []M{}
		for rows.Next() {
			var data string
			if err := rows.Scan(&data); err != nil {
				return fmt.Errorf("failed to scan message: %w", err)
			}
			var msg M
			if err := json.Unmarshal([]byte(data), &msg); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			out = append(out, msg)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListSessions implements Store.
func (s *sqlStore[M]) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := listSessionsSQL
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []SessionRecord{}
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return out, nil
}

// DeleteSession implements Store.
func (s *sqlStore[M]) DeleteSession(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deleteMessagesSQL, id); err != nil {
			return fmt.Errorf("failed to delete transcript: %w", err)
		}
		res, err := tx.ExecContext(ctx, deleteSessionSQL, id)
		if err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Close closes the database connection. Safe to call more than once.
func (s *sqlStore[M]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *sqlStore[M]) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// withTx runs fn in a transaction, committing on success and rolling back
// on error or panic.
func (s *sqlStore[M]) withTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func sessionExists(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, sessionExistsSQL, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up session %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (SessionRecord, error) {
	var (
		rec          SessionRecord
		participants string
		createdAt    int64
		updatedAt    int64
	)
	if err := row.Scan(&rec.ID, &participants, &rec.RoundLimit, &rec.CurrentRound,
		&rec.Terminated, &createdAt, &updatedAt); err != nil {
		return SessionRecord{}, err
	}
	if err := json.Unmarshal([]byte(participants), &rec.Participants); err != nil {
		return SessionRecord{}, fmt.Errorf("failed to unmarshal participants: %w", err)
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return rec, nil
}

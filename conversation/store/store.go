// Package store provides persistence for conversation sessions and transcripts.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested session ID does not exist.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// SessionRecord is the persisted header of a session: everything except the
// transcript itself.
type SessionRecord struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	RoundLimit   int       `json:"round_limit"`
	CurrentRound int       `json:"current_round"`
	Terminated   bool      `json:"terminated"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store persists session headers and their transcripts.
//
// It enables:
//   - Saving session progress after every turn
//   - Resuming a session in another process
//   - Listing recent sessions
//
// Implementations:
//   - MemStore: in-memory, for tests and the default configuration
//   - SQLiteStore: single-file database
//   - MySQLStore: shared relational database
//
// Type parameter M is the transcript message type (must be JSON-serializable
// for the SQL stores). Messages are keyed by (session ID, seq), where seq is
// the message's position in the transcript.
type Store[M any] interface {
	// SaveSession inserts or updates a session header.
	SaveSession(ctx context.Context, rec SessionRecord) error

	// LoadSession returns the header for id, or ErrNotFound.
	LoadSession(ctx context.Context, id string) (SessionRecord, error)

	// AppendMessage stores msg at position seq. Writing the same seq
	// twice replaces the earlier message, so retried writes are harmless.
	// Returns ErrNotFound if the session was never saved.
	AppendMessage(ctx context.Context, sessionID string, seq int, msg M) error

	// LoadTranscript returns the session's messages ordered by seq.
	// Returns ErrNotFound if the session does not exist.
	LoadTranscript(ctx context.Context, sessionID string) ([]M, error)

	// ListSessions returns up to limit headers, most recently updated first.
	// A limit <= 0 returns all sessions.
	ListSessions(ctx context.Context, limit int) ([]SessionRecord, error)

	// DeleteSession removes a session and its transcript. Deleting an unknown
	// session returns ErrNotFound.
	DeleteSession(ctx context.Context, id string) error

	// Close releases resources held by the store.
	Close() error
}

// stamp fills in zero timestamps with the current time.
func stamp(rec SessionRecord) SessionRecord {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	return rec
}

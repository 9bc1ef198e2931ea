package store

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory implementation of Store[M].
//
// It is safe for concurrent use. Data is lost when the process exits.
//
// Example:
//
//	st := store.NewMemStore[conversation.Message]()
//	orch := conversation.New(provider, conversation.WithStore(st))
type MemStore[M any] struct {
	mu       sync.RWMutex
	sessions map[string]SessionRecord
	messages map[string]map[int]M // sessionID -> seq -> message
	closed   bool
}

// NewMemStore creates a new empty in-memory store.
func NewMemStore[M any]() *MemStore[M] {
	return &MemStore[M]{
		sessions: make(map[string]SessionRecord),
		messages: make(map[string]map[int]M),
	}
}

// SaveSession implements Store.
func (m *MemStore[M]) SaveSession(ctx context.Context, rec SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	rec = stamp(rec)
	if existing, ok := m.sessions[rec.ID]; ok {
		rec.CreatedAt = existing.CreatedAt
	}
	rec.Participants = append([]string(nil), rec.Participants...)
	m.sessions[rec.ID] = rec
	if _, ok := m.messages[rec.ID]; !ok {
		m.messages[rec.ID] = make(map[int]M)
	}
	return nil
}

// LoadSession implements Store.
func (m *MemStore[M]) LoadSession(ctx context.Context, id string) (SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return SessionRecord{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return SessionRecord{}, ErrClosed
	}

	rec, ok := m.sessions[id]
	if !ok {
		return SessionRecord{}, ErrNotFound
	}
	rec.Participants = append([]string(nil), rec.Participants...)
	return rec, nil
}

// AppendMessage implements Store.
func (m *MemStore[M]) AppendMessage(ctx context.Context, sessionID string, seq int, msg M) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	bySeq, ok := m.messages[sessionID]
	if !ok {
		return ErrNotFound
	}
	bySeq[seq] = msg
	return nil
}

// LoadTranscript implements Store.
func (m *MemStore[M]) LoadTranscript(ctx context.Context, sessionID string) ([]M, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	bySeq, ok := m.messages[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	seqs := make([]int, 0, len(bySeq))
	for r := range bySeq {
		seqs = append(seqs, r)
	}
	sort.Ints(seqs)

	out := make([]M, 0, len(seqs))
	for _, r := range seqs {
		out = append(out, bySeq[r])
	}
	return out, nil
}

// ListSessions implements Store.
func (m *MemStore[M]) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	out := make([]SessionRecord, 0, len(m.sessions))
	for _, rec := range m.sessions {
		rec.Participants = append([]string(nil), rec.Participants...)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteSession implements Store.
func (m *MemStore[M]) DeleteSession(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

// Close marks the store closed. Subsequent calls return ErrClosed.
func (m *MemStore[M]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

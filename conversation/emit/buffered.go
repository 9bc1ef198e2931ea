package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory.
//
// Events are organized by session ID for retrieval and filtering. Used by
// tests and by the web live mode to report what happened in a session.
//
// Warning: every event is kept until Clear is called.
//
// Example usage:
//
//	emitter := emit.NewBufferedEmitter()
//	orch := conversation.New(provider, conversation.WithEmitter(emitter))
//
//	session, _ := orch.StartSession(ctx, team, 6, "I have a fever")
//	orch.RunToCompletion(ctx, session)
//
//	all := emitter.GetHistory(session.ID())
//	skipped := emitter.GetHistoryWithFilter(session.ID(), emit.HistoryFilter{Msg: emit.EventTurnSkipped})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // sessionID -> events
}

// HistoryFilter specifies criteria for filtering session history.
//
// All fields are optional and combined with AND logic.
type HistoryFilter struct {
	Persona  string // Filter by speaker (empty = no filter)
	Msg      string // Filter by event name (empty = no filter)
	MinRound *int   // Minimum round (nil = no filter)
	MaxRound *int   // Maximum round (nil = no filter)
}

// NewBufferedEmitter creates a new BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.SessionID] = append(b.events[event.SessionID], event)
}

// GetHistory returns a copy of all events for a session in emission order.
// Returns an empty slice if none exist.
func (b *BufferedEmitter) GetHistory(sessionID string) []Event {
	return b.GetHistoryWithFilter(sessionID, HistoryFilter{})
}

// GetHistoryWithFilter returns the events for a session that match filter.
func (b *BufferedEmitter) GetHistoryWithFilter(sessionID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[sessionID] {
		if matchesFilter(event, filter) {
			result = append(result, event)
		}
	}
	return result
}

func matchesFilter(event Event, filter HistoryFilter) bool {
	if filter.Persona != "" && event.Persona != filter.Persona {
		return false
	}
	if filter.Msg != "" && event.Msg != filter.Msg {
		return false
	}
	if filter.MinRound != nil && event.Round < *filter.MinRound {
		return false
	}
	if filter.MaxRound != nil && event.Round > *filter.MaxRound {
		return false
	}
	return true
}

// Clear removes stored events for one session, or for all sessions when
// sessionID is empty.
func (b *BufferedEmitter) Clear(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sessionID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, sessionID)
}

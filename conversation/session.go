package conversation

import (
	"time"

	"github.com/dshills/automed/conversation/store"
	"github.com/samber/lo"
)

// State is the lifecycle state of a Session.
type State int

const (
	// StateActive sessions accept further Advance calls.
	StateActive State = iota
	// StateTerminated sessions have reached their round limit. Final.
	StateTerminated
)

// String returns "active" or "terminated".
func (s State) String() string {
	if s == StateTerminated {
		return "terminated"
	}
	return "active"
}

// Session is one multi-persona conversation.
//
// A Session is owned by the caller that started it and must not be advanced
// from more than one goroutine at a time.
type Session struct {
	id           string
	participants []Persona
	roundLimit   int
	currentRound int
	terminated   bool
	transcript   Transcript
	turns        map[string]int
	createdAt    time.Time
	counted      bool // included in the active_sessions gauge
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Participants returns a copy of the speaking order.
func (s *Session) Participants() []Persona {
	return append([]Persona(nil), s.participants...)
}

// RoundLimit returns the total number of rounds the session will run.
func (s *Session) RoundLimit() int { return s.roundLimit }

// CurrentRound returns the number of rounds consumed so far.
func (s *Session) CurrentRound() int { return s.currentRound }

// Terminated reports whether the round limit has been reached.
func (s *Session) Terminated() bool { return s.terminated }

// State returns the lifecycle state.
func (s *Session) State() State {
	if s.terminated {
		return StateTerminated
	}
	return StateActive
}

// CreatedAt returns when the session was started.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Transcript returns a copy of the messages so far.
func (s *Session) Transcript() Transcript {
	return append(Transcript(nil), s.transcript...)
}

// NextSpeaker returns the persona that will take the next round. It reports
// false once the session is terminated.
func (s *Session) NextSpeaker() (Persona, bool) {
	if s.terminated {
		return Persona{}, false
	}
	return s.participants[s.currentRound%len(s.participants)], true
}

// TurnsTaken returns how many messages the named persona has contributed.
func (s *Session) TurnsTaken(name string) int {
	return s.turns[name]
}

// nextRecord is the persisted header for the session as it will be after
// consuming one more round.
func (s *Session) nextRecord(now time.Time) store.SessionRecord {
	next := s.currentRound + 1
	return store.SessionRecord{
		ID:           s.id,
		Participants: participantNames(s.participants),
		RoundLimit:   s.roundLimit,
		CurrentRound: next,
		Terminated:   next >= s.roundLimit,
		CreatedAt:    s.createdAt,
		UpdatedAt:    now,
	}
}

// consumeRound advances the round counter and terminates at the limit.
func (s *Session) consumeRound() {
	s.currentRound++
	if s.currentRound >= s.roundLimit {
		s.terminated = true
	}
}

func participantNames(participants []Persona) []string {
	return lo.Map(participants, func(p Persona, _ int) string { return p.Name() })
}

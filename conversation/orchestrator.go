package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/automed/conversation/emit"
	"github.com/dshills/automed/conversation/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultCompletionTimeout bounds a single provider call.
const DefaultCompletionTimeout = 120 * time.Second

// Orchestrator drives sessions round by round.
//
// Its configuration is fixed at construction. An Orchestrator is safe for
// concurrent use by multiple goroutines, each advancing its own Session.
type Orchestrator struct {
	provider          Provider
	retry             RetryPolicy
	completionTimeout time.Duration
	emitter           emit.Emitter
	store             store.Store[Message]
	metrics           *Metrics
	logger            *zap.Logger
	now               func() time.Time
	newID             func() string
}

// Option is a functional option for configuring an Orchestrator.
//
// Example:
//
//	orch, err := conversation.New(provider,
//	    conversation.WithRetryPolicy(conversation.DefaultRetryPolicy()),
//	    conversation.WithCompletionTimeout(60*time.Second),
//	    conversation.WithStore(store.NewMemStore[conversation.Message]()),
//	)
type Option func(*Orchestrator) error

// WithRetryPolicy sets the retry policy. Default: DefaultRetryPolicy().
func WithRetryPolicy(rp RetryPolicy) Option {
	return func(o *Orchestrator) error {
		if err := rp.Validate(); err != nil {
			return err
		}
		o.retry = rp
		return nil
	}
}

// WithCompletionTimeout bounds every provider call. Zero disables the
// per-call deadline. Default: DefaultCompletionTimeout.
func WithCompletionTimeout(d time.Duration) Option {
	return func(o *Orchestrator) error {
		if d < 0 {
			return fmt.Errorf("%w: completion timeout %v is negative", ErrInvalidConfiguration, d)
		}
		o.completionTimeout = d
		return nil
	}
}

// WithEmitter sets the event emitter. Default: emit.NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(o *Orchestrator) error {
		if e != nil {
			o.emitter = e
		}
		return nil
	}
}

// WithStore persists sessions and transcripts. Without a store sessions live
// only in memory and ResumeSession is unavailable.
func WithStore(st store.Store[Message]) Option {
	return func(o *Orchestrator) error {
		o.store = st
		return nil
	}
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) error {
		o.metrics = m
		return nil
	}
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) error {
		if l != nil {
			o.logger = l
		}
		return nil
	}
}

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) error {
		if now != nil {
			o.now = now
		}
		return nil
	}
}

// New creates an Orchestrator around provider.
func New(provider Provider, opts ...Option) (*Orchestrator, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider is nil", ErrInvalidConfiguration)
	}

	o := &Orchestrator{
		provider:          provider,
		retry:             DefaultRetryPolicy(),
		completionTimeout: DefaultCompletionTimeout,
		emitter:           emit.NewNullEmitter(),
		logger:            zap.NewNop(),
		now:               func() time.Time { return time.Now().UTC() },
		newID:             uuid.NewString,
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// StartSession validates the participants, records the opening message as
// round 0 authored by InitiatorName, and returns the new ACTIVE session.
//
// Returns an error wrapping ErrInvalidConfiguration, and a nil session, when
// participants is empty, roundLimit <= 0, a name is repeated, or the
// opening message is blank.
func (o *Orchestrator) StartSession(ctx context.Context, participants []Persona, roundLimit int, opening string) (*Session, error) {
	if err := validateParticipants(participants); err != nil {
		return nil, err
	}
	if roundLimit <= 0 {
		return nil, fmt.Errorf("%w: round limit %d must be positive", ErrInvalidConfiguration, roundLimit)
	}
	if strings.TrimSpace(opening) == "" {
		return nil, fmt.Errorf("%w: opening message is empty", ErrInvalidConfiguration)
	}

	now := o.now()
	s := &Session{
		id:           o.newID(),
		participants: append([]Persona(nil), participants...),
		roundLimit:   roundLimit,
		turns:        make(map[string]int, len(participants)),
		createdAt:    now,
	}
	first := Message{Speaker: InitiatorName, Content: opening, Round: 0, CreatedAt: now}

	if o.store != nil {
		rec := store.SessionRecord{
			ID:           s.id,
			Participants: participantNames(s.participants),
			RoundLimit:   roundLimit,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := o.store.SaveSession(ctx, rec); err != nil {
			return nil, fmt.Errorf("save session %s: %w", s.id, err)
		}
		if err := o.store.AppendMessage(ctx, s.id, 0, first); err != nil {
			return nil, fmt.Errorf("save opening message: %w", err)
		}
	}
	s.transcript = Transcript{first}

	o.logger.Info("session started",
		zap.String("session_id", s.id),
		zap.Strings("participants", participantNames(s.participants)),
		zap.Int("round_limit", roundLimit),
	)
	o.emitter.Emit(emit.Event{
		SessionID: s.id,
		Msg:       emit.EventSessionStart,
		Meta: map[string]interface{}{
			"participants": strings.Join(participantNames(s.participants), ","),
			"round_limit":  roundLimit,
		},
	})
	o.metrics.SessionStarted(false)
	s.counted = true

	return s, nil
}

// ResumeSession rebuilds a stored session. participants must carry the same
// names, in the same order, as when the session was started.
func (o *Orchestrator) ResumeSession(ctx context.Context, id string, participants []Persona) (*Session, error) {
	if o.store == nil {
		return nil, fmt.Errorf("%w: resuming requires a store", ErrInvalidConfiguration)
	}
	if err := validateParticipants(participants); err != nil {
		return nil, err
	}

	rec, err := o.store.LoadSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	names := participantNames(participants)
	if strings.Join(names, "\x00") != strings.Join(rec.Participants, "\x00") {
		return nil, fmt.Errorf("%w: session %s was started with participants %v, got %v",
			ErrInvalidConfiguration, id, rec.Participants, names)
	}

	transcript, err := o.store.LoadTranscript(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load transcript %s: %w", id, err)
	}

	s := &Session{
		id:           rec.ID,
		participants: append([]Persona(nil), participants...),
		roundLimit:   rec.RoundLimit,
		currentRound: rec.CurrentRound,
		terminated:   rec.Terminated,
		transcript:   Transcript(transcript),
		turns:        make(map[string]int, len(participants)),
		createdAt:    rec.CreatedAt,
	}
	for _, m := range s.transcript.Replies() {
		s.turns[m.Speaker]++
	}

	o.logger.Info("session resumed",
		zap.String("session_id", s.id),
		zap.Int("current_round", s.currentRound),
		zap.Bool("terminated", s.terminated),
	)
	o.emitter.Emit(emit.Event{
		SessionID: s.id,
		Round:     s.currentRound,
		Msg:       emit.EventSessionResumed,
		Meta:      map[string]interface{}{"terminated": s.terminated},
	})
	if !s.terminated {
		o.metrics.SessionStarted(true)
		s.counted = true
	}

	return s, nil
}

// Advance runs one round.
//
// The speaker is participants[CurrentRound mod len(participants)]. It is
// called with its instructions, the full transcript and its temperature; the
// reply is appended with Round = CurrentRound and the round is consumed, so
// the speaker of a reply at round r is participants[r mod len(participants)].
// When the round limit is reached the session terminates.
//
// Advance returns (nil, nil) when the turn is skipped: the reply was blank or
// the persona has used up its MaxTurns. A skipped turn still consumes the
// round.
//
// On provider failure, after retries, the round is not consumed and the
// session stays ACTIVE, so the caller may call Advance again. The error
// wraps a *ProviderError. A terminated session returns ErrSessionTerminated
// and is not modified.
func (o *Orchestrator) Advance(ctx context.Context, s *Session) (*Message, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: session is nil", ErrInvalidConfiguration)
	}
	if s.terminated {
		return nil, ErrSessionTerminated
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.counted {
		o.metrics.SessionReactivated()
		s.counted = true
	}

	persona := s.participants[s.currentRound%len(s.participants)]
	round := s.currentRound
	logger := o.logger.With(
		zap.String("session_id", s.id),
		zap.Int("round", round),
		zap.String("persona", persona.Name()),
	)

	if limit := persona.Style().MaxTurns; limit > 0 && s.turns[persona.Name()] >= limit {
		return nil, o.skip(ctx, s, persona, round, "max_turns", 0, logger)
	}

	req := CompletionRequest{
		Persona:      persona,
		Instructions: persona.Instructions(),
		Transcript:   s.Transcript(),
		Temperature:  persona.Temperature(),
	}

	start := time.Now()
	text, err := o.complete(ctx, s, persona, round, req, logger)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		kind := errorKind(err)
		logger.Error("round failed", zap.String("kind", string(kind)), zap.Error(err))
		o.metrics.RecordTurn(persona.Name(), "failed", latency)
		o.metrics.IncrementProviderErrors(kind)
		o.emitter.Emit(emit.Event{
			SessionID: s.id,
			Round:     round,
			Persona:   persona.Name(),
			Msg:       emit.EventProviderError,
			Meta: map[string]interface{}{
				"error":      err.Error(),
				"kind":       string(kind),
				"latency_ms": latency.Milliseconds(),
			},
		})
		return nil, fmt.Errorf("round %d (%s): %w", round, persona.Name(), err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, o.skip(ctx, s, persona, round, "empty_reply", latency, logger)
	}

	now := o.now()
	msg := Message{Speaker: persona.Name(), Content: text, Round: round, CreatedAt: now}

	if o.store != nil {
		if err := o.store.AppendMessage(ctx, s.id, len(s.transcript), msg); err != nil {
			return nil, fmt.Errorf("save round %d: %w", round, err)
		}
		if err := o.store.SaveSession(ctx, s.nextRecord(now)); err != nil {
			return nil, fmt.Errorf("save session %s: %w", s.id, err)
		}
	}

	s.transcript = append(s.transcript, msg)
	s.turns[persona.Name()]++
	s.consumeRound()

	logger.Debug("round completed", zap.Duration("latency", latency), zap.Int("chars", len(text)))
	o.metrics.RecordTurn(persona.Name(), "completed", latency)
	o.emitter.Emit(emit.Event{
		SessionID: s.id,
		Round:     round,
		Persona:   persona.Name(),
		Msg:       emit.EventTurnComplete,
		Meta:      map[string]interface{}{"latency_ms": latency.Milliseconds()},
	})
	o.finishIfTerminated(s)

	result := msg
	return &result, nil
}

// RunToCompletion advances s until it terminates. On the first failure it
// releases s and returns the transcript so far together with the error.
func (o *Orchestrator) RunToCompletion(ctx context.Context, s *Session) (Transcript, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: session is nil", ErrInvalidConfiguration)
	}
	for !s.terminated {
		if _, err := o.Advance(ctx, s); err != nil {
			o.Release(s)
			return s.Transcript(), err
		}
	}
	return s.Transcript(), nil
}

// Release stops counting an unfinished session as active. Callers driving s
// with Advance should call it when they give up on s. Releasing a terminated
// or already released session does nothing; a later Advance counts s again.
func (o *Orchestrator) Release(s *Session) {
	if s == nil || s.terminated || !s.counted {
		return
	}
	s.counted = false
	o.logger.Info("session released",
		zap.String("session_id", s.id),
		zap.Int("current_round", s.currentRound),
	)
	o.metrics.SessionReleased()
}

// complete calls the provider under the retry policy.
func (o *Orchestrator) complete(ctx context.Context, s *Session, persona Persona, round int, req CompletionRequest, logger *zap.Logger) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= o.retry.MaxAttempts; attempt++ {
		text, err := completeWithTimeout(ctx, o.provider, req, o.completionTimeout)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt == o.retry.MaxAttempts || !o.retry.retryable(err) {
			break
		}

		delay := computeBackoff(attempt-1, o.retry.BaseDelay, o.retry.MaxDelay, nil)
		kind := errorKind(err)
		logger.Warn("provider call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		o.metrics.IncrementRetries(persona.Name(), kind)
		o.emitter.Emit(emit.Event{
			SessionID: s.id,
			Round:     round,
			Persona:   persona.Name(),
			Msg:       emit.EventRetry,
			Meta: map[string]interface{}{
				"attempt":  attempt,
				"kind":     string(kind),
				"delay_ms": delay.Milliseconds(),
			},
		})

		if err := sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

// skip consumes the round without appending a message.
func (o *Orchestrator) skip(ctx context.Context, s *Session, persona Persona, round int, reason string, latency time.Duration, logger *zap.Logger) error {
	if o.store != nil {
		if err := o.store.SaveSession(ctx, s.nextRecord(o.now())); err != nil {
			return fmt.Errorf("save session %s: %w", s.id, err)
		}
	}

	s.consumeRound()

	logger.Info("round skipped", zap.String("reason", reason))
	o.metrics.RecordTurn(persona.Name(), "skipped", latency)
	o.emitter.Emit(emit.Event{
		SessionID: s.id,
		Round:     round,
		Persona:   persona.Name(),
		Msg:       emit.EventTurnSkipped,
		Meta:      map[string]interface{}{"reason": reason},
	})
	o.finishIfTerminated(s)
	return nil
}

func (o *Orchestrator) finishIfTerminated(s *Session) {
	if !s.terminated {
		return
	}
	counted := s.counted
	s.counted = false
	o.logger.Info("session completed",
		zap.String("session_id", s.id),
		zap.Int("rounds", s.currentRound),
		zap.Int("messages", len(s.transcript)),
	)
	o.emitter.Emit(emit.Event{
		SessionID: s.id,
		Round:     s.currentRound,
		Msg:       emit.EventSessionEnd,
		Meta:      map[string]interface{}{"messages": len(s.transcript)},
	})
	if counted {
		o.metrics.SessionCompleted()
	}
}

func validateParticipants(participants []Persona) error {
	if len(participants) == 0 {
		return fmt.Errorf("%w: no participants", ErrInvalidConfiguration)
	}
	seen := make(map[string]bool, len(participants))
	for i, p := range participants {
		switch {
		case p.Name() == "":
			return fmt.Errorf("%w: participant %d was not built with NewPersona", ErrInvalidConfiguration, i)
		case strings.EqualFold(p.Name(), InitiatorName):
			return fmt.Errorf("%w: participant name %q is reserved", ErrInvalidConfiguration, InitiatorName)
		case seen[p.Name()]:
			return fmt.Errorf("%w: duplicate participant %q", ErrInvalidConfiguration, p.Name())
		}
		seen[p.Name()] = true
	}
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package emit

// Event represents an observability event emitted while a session runs.
//
// Events describe the lifecycle of a conversation:
//   - Session start, resume and end
//   - Completed and skipped turns
//   - Retries and provider failures
type Event struct {
	// SessionID identifies the session that emitted this event.
	SessionID string

	// Round is the round the event refers to. Zero for the opening message
	// and for session-level events.
	Round int

	// Persona is the speaker the event refers to.
	// Empty string for session-level events.
	Persona string

	// Msg names the event. Use the Event* constants.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "latency_ms": provider call duration in milliseconds
	//   - "error": error details
	//   - "kind": provider error kind
	//   - "attempt": retry attempt number (1 for the first retry)
	//   - "tokens_in", "tokens_out": token usage when known
	Meta map[string]interface{}
}

// Event names emitted by the orchestrator.
const (
	EventSessionStart   = "session_start"
	EventSessionResumed = "session_resumed"
	EventSessionEnd     = "session_end"
	EventTurnComplete   = "turn_complete"
	EventTurnSkipped    = "turn_skipped"
	EventRetry          = "retry"
	EventProviderError  = "provider_error"
)

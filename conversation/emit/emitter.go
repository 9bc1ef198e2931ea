package emit

// Emitter receives and processes observability events from a conversation.
//
// Emitters enable pluggable observability backends:
//   - Logging: stdout, files, zap
//   - Distributed tracing: OpenTelemetry
//   - Testing: in-memory history
//
// Implementations should be non-blocking and safe for concurrent use, since
// one orchestrator may drive many sessions at once. Emit should not panic.
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	Emit(event Event)
}

package emit

// NullEmitter implements Emitter by discarding all events.
//
// Used when AUTOMED_EVENTS is "none" and as the orchestrator default.
type NullEmitter struct{}

// NewNullEmitter creates a new NullEmitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (n *NullEmitter) Emit(Event) {}

package emit

import "go.uber.org/zap"

// ZapEmitter implements Emitter by logging each event through a zap logger.
//
// Events are written at Info, except provider_error which is written at Warn.
// Meta entries become zap.Any fields.
type ZapEmitter struct {
	logger *zap.Logger
}

// NewZapEmitter creates a ZapEmitter. A nil logger discards everything.
func NewZapEmitter(logger *zap.Logger) *ZapEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapEmitter{logger: logger.Named("events")}
}

// Emit logs the event.
func (z *ZapEmitter) Emit(event Event) {
	fields := make([]zap.Field, 0, len(event.Meta)+3)
	fields = append(fields,
		zap.String("session_id", event.SessionID),
		zap.Int("round", event.Round),
	)
	if event.Persona != "" {
		fields = append(fields, zap.String("persona", event.Persona))
	}
	for k, v := range event.Meta {
		fields = append(fields, zap.Any(k, v))
	}

	if event.Msg == EventProviderError {
		z.logger.Warn(event.Msg, fields...)
		return
	}
	z.logger.Info(event.Msg, fields...)
}

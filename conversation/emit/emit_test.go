package emit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	_ Emitter = (*NullEmitter)(nil)
	_ Emitter = (*LogEmitter)(nil)
	_ Emitter = (*BufferedEmitter)(nil)
	_ Emitter = (*OTelEmitter)(nil)
	_ Emitter = (*ZapEmitter)(nil)
)

func turnEvent(round int, persona string) Event {
	return Event{
		SessionID: "sess-1",
		Round:     round,
		Persona:   persona,
		Msg:       EventTurnComplete,
		Meta:      map[string]interface{}{"latency_ms": 12},
	}
}

func TestLogEmitter_Text(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name:  "turn with persona and meta",
			event: turnEvent(2, "Medical_Advisor"),
			want:  `[turn_complete] session=sess-1 round=2 persona=Medical_Advisor meta={"latency_ms":12}`,
		},
		{
			name:  "session event without persona",
			event: Event{SessionID: "sess-1", Msg: EventSessionStart},
			want:  `[session_start] session=sess-1 round=0`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewLogEmitter(&buf, false).Emit(tt.event)
			if got := strings.TrimSpace(buf.String()); got != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestLogEmitter_JSON(t *testing.T) {
	var buf bytes.Buffer
	NewLogEmitter(&buf, true).Emit(turnEvent(1, "Healthcare_Facilitator"))

	var decoded struct {
		SessionID string                 `json:"sessionID"`
		Round     int                    `json:"round"`
		Persona   string                 `json:"persona"`
		Msg       string                 `json:"msg"`
		Meta      map[string]interface{} `json:"meta"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if decoded.SessionID != "sess-1" || decoded.Round != 1 || decoded.Persona != "Healthcare_Facilitator" {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Msg != EventTurnComplete {
		t.Errorf("msg = %q, want %q", decoded.Msg, EventTurnComplete)
	}
	if v, ok := decoded.Meta["latency_ms"].(float64); !ok || v != 12 {
		t.Errorf("meta latency_ms = %v, want 12", decoded.Meta["latency_ms"])
	}
}

func TestLogEmitter_ConcurrentLinesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(&buf, true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(round int) {
			defer wg.Done()
			emitter.Emit(turnEvent(round, "p"))
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("got %d lines, want 20", len(lines))
	}
	for _, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Errorf("interleaved line: %s", line)
		}
	}
}

func TestBufferedEmitter(t *testing.T) {
	emitter := NewBufferedEmitter()
	emitter.Emit(Event{SessionID: "sess-1", Msg: EventSessionStart})
	emitter.Emit(turnEvent(1, "A"))
	emitter.Emit(Event{SessionID: "sess-1", Round: 2, Persona: "B", Msg: EventTurnSkipped})
	emitter.Emit(turnEvent(3, "A"))
	emitter.Emit(Event{SessionID: "sess-2", Msg: EventSessionStart})

	t.Run("history preserves order per session", func(t *testing.T) {
		history := emitter.GetHistory("sess-1")
		if len(history) != 4 {
			t.Fatalf("got %d events, want 4", len(history))
		}
		if history[0].Msg != EventSessionStart || history[3].Round != 3 {
			t.Errorf("history out of order: %+v", history)
		}
	})

	t.Run("filters combine", func(t *testing.T) {
		minRound, maxRound := 2, 3
		tests := []struct {
			name   string
			filter HistoryFilter
			want   int
		}{
			{"by persona", HistoryFilter{Persona: "A"}, 2},
			{"by msg", HistoryFilter{Msg: EventTurnSkipped}, 1},
			{"from round", HistoryFilter{MinRound: &minRound}, 2},
			{"persona and range", HistoryFilter{Persona: "A", MinRound: &minRound, MaxRound: &maxRound}, 1},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := emitter.GetHistoryWithFilter("sess-1", tt.filter); len(got) != tt.want {
					t.Errorf("got %d events, want %d", len(got), tt.want)
				}
			})
		}
	})

	t.Run("unknown session is empty not nil", func(t *testing.T) {
		got := emitter.GetHistory("missing")
		if got == nil || len(got) != 0 {
			t.Errorf("GetHistory(missing) = %#v, want empty slice", got)
		}
	})

	t.Run("history is a copy", func(t *testing.T) {
		got := emitter.GetHistory("sess-1")
		got[0].Msg = "mutated"
		if emitter.GetHistory("sess-1")[0].Msg != EventSessionStart {
			t.Error("mutating returned history changed the buffer")
		}
	})

	t.Run("clear", func(t *testing.T) {
		emitter.Clear("sess-2")
		if len(emitter.GetHistory("sess-2")) != 0 {
			t.Error("sess-2 not cleared")
		}
		if len(emitter.GetHistory("sess-1")) == 0 {
			t.Error("clearing sess-2 removed sess-1")
		}

		emitter.Clear("")
		if len(emitter.GetHistory("sess-1")) != 0 {
			t.Error("Clear(\"\") kept sess-1")
		}
	})
}

func TestNullEmitter(t *testing.T) {
	NewNullEmitter().Emit(turnEvent(1, "A"))
}

func TestZapEmitter(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	emitter := NewZapEmitter(zap.New(core))

	emitter.Emit(turnEvent(1, "Safety_Moderator"))
	emitter.Emit(Event{SessionID: "sess-1", Round: 1, Persona: "Safety_Moderator", Msg: EventProviderError,
		Meta: map[string]interface{}{"kind": "rate_limited"}})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	first := entries[0]
	if first.Level != zapcore.InfoLevel || first.Message != EventTurnComplete || first.LoggerName != "events" {
		t.Errorf("first entry = level %v msg %q logger %q", first.Level, first.Message, first.LoggerName)
	}
	fields := first.ContextMap()
	if fields["session_id"] != "sess-1" || fields["persona"] != "Safety_Moderator" {
		t.Errorf("first entry fields = %v", fields)
	}

	if entries[1].Level != zapcore.WarnLevel {
		t.Errorf("provider_error logged at %v, want warn", entries[1].Level)
	}
	if kind := entries[1].ContextMap()["kind"]; kind != "rate_limited" {
		t.Errorf("kind = %v, want rate_limited", kind)
	}

	// A nil logger falls back to a no-op.
	NewZapEmitter(nil).Emit(turnEvent(1, "A"))
}

func newRecordingTracer(t *testing.T) (*OTelEmitter, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewOTelEmitter(tp.Tracer("test")), exporter
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func TestOTelEmitter_Emit(t *testing.T) {
	emitter, exporter := newRecordingTracer(t)

	emitter.Emit(Event{
		SessionID: "sess-1",
		Round:     2,
		Persona:   "Mental_Health_Specialist",
		Msg:       EventTurnComplete,
		Meta: map[string]interface{}{
			"tokens_in":  120,
			"latency_ms": int64(900),
			"duration":   1500 * time.Millisecond,
			"cached":     false,
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name != EventTurnComplete {
		t.Errorf("span name = %q, want %q", span.Name, EventTurnComplete)
	}
	if span.EndTime.Before(span.StartTime) {
		t.Error("span ends before it starts")
	}

	attrs := attributeMap(span.Attributes)
	want := map[string]interface{}{
		"automed.session_id":      "sess-1",
		"automed.round":           int64(2),
		"automed.persona":         "Mental_Health_Specialist",
		"automed.llm.tokens_in":   int64(120),
		"automed.turn.latency_ms": int64(900),
		"duration":                int64(1500),
		"cached":                  false,
	}
	for key, value := range want {
		if attrs[key] != value {
			t.Errorf("attribute %s = %v (%T), want %v (%T)", key, attrs[key], attrs[key], value, value)
		}
	}
}

func TestOTelEmitter_ErrorStatus(t *testing.T) {
	emitter, exporter := newRecordingTracer(t)

	emitter.Emit(Event{
		SessionID: "sess-1",
		Round:     1,
		Msg:       EventProviderError,
		Meta:      map[string]interface{}{"error": "openai: rate_limited: slow down", "kind": "rate_limited"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error || span.Status.Description != "openai: rate_limited: slow down" {
		t.Errorf("status = %+v", span.Status)
	}
	if len(span.Events) == 0 {
		t.Error("error was not recorded as a span event")
	}
	if kind := attributeMap(span.Attributes)["automed.error.kind"]; kind != "rate_limited" {
		t.Errorf("automed.error.kind = %v, want rate_limited", kind)
	}
}

func TestOTelEmitter_EmitBatch(t *testing.T) {
	emitter, exporter := newRecordingTracer(t)

	if err := emitter.EmitBatch(context.Background(), []Event{turnEvent(1, "A"), turnEvent(2, "B")}); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	if n := len(exporter.GetSpans()); n != 2 {
		t.Fatalf("got %d spans, want 2", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := emitter.EmitBatch(ctx, []Event{turnEvent(3, "C")}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if n := len(exporter.GetSpans()); n != 2 {
		t.Errorf("cancelled batch exported spans: have %d, want 2", n)
	}
}

func TestOTelEmitter_Flush(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})

	emitter := NewOTelEmitter(tp.Tracer("test"))
	emitter.Emit(turnEvent(1, "A"))

	if err := emitter.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n := len(exporter.GetSpans()); n != 1 {
		t.Errorf("got %d spans after flush, want 1", n)
	}
}

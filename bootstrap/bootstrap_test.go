package bootstrap

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/automed/config"
	"github.com/dshills/automed/conversation"
	"github.com/dshills/automed/conversation/model"
	"github.com/dshills/automed/conversation/model/anthropic"
	"github.com/dshills/automed/conversation/model/google"
	"github.com/dshills/automed/conversation/model/openai"
	"github.com/dshills/automed/healthcare"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func testConfig() config.Config {
	return config.Config{
		Provider:         config.ProviderOpenAI,
		OpenAIKey:        "sk-test",
		MaxTokens:        256,
		RoundLimit:       4,
		RetryMaxAttempts: 1,
		Store:            "memory",
		LogLevel:         "info",
		Events:           "none",
		HTTPAddr:         ":0",
		WebMode:          "demo",
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = NewLogger("warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	_, err = NewLogger("chatty")
	assert.ErrorIs(t, err, conversation.ErrInvalidConfiguration)
}

func TestNewChatModel(t *testing.T) {
	cfg := testConfig()
	m, err := NewChatModel(cfg)
	require.NoError(t, err)
	assert.IsType(t, &openai.ChatModel{}, m)

	cfg.Provider, cfg.AnthropicKey = config.ProviderAnthropic, "ak"
	m, err = NewChatModel(cfg)
	require.NoError(t, err)
	assert.IsType(t, &anthropic.ChatModel{}, m)

	cfg.Provider, cfg.GoogleKey = config.ProviderGoogle, "gk"
	m, err = NewChatModel(cfg)
	require.NoError(t, err)
	assert.IsType(t, &google.ChatModel{}, m)

	cfg.GoogleKey = ""
	_, err = NewChatModel(cfg)
	assert.ErrorIs(t, err, conversation.ErrInvalidConfiguration)
}

func TestNewStore(t *testing.T) {
	cfg := testConfig()
	st, err := NewStore(cfg)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	cfg.Store, cfg.StoreDSN = "sqlite", filepath.Join(t.TempDir(), "automed.db")
	st, err = NewStore(cfg)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	cfg.Store = "redis"
	_, err = NewStore(cfg)
	assert.ErrorIs(t, err, conversation.ErrInvalidConfiguration)
}

func TestLoadTeam(t *testing.T) {
	team, err := LoadTeam(testConfig())
	require.NoError(t, err)
	assert.Len(t, team.Personas, len(healthcare.DefaultTeam()))
	assert.Equal(t, 4, team.RoundLimit)

	path := filepath.Join(t.TempDir(), "team.yaml")
	require.NoError(t, os.WriteFile(path, []byte("round_limit: 2\npersonas:\n  - name: Nurse\n"), 0o600))
	cfg := testConfig()
	cfg.TeamFile = path
	team, err = LoadTeam(cfg)
	require.NoError(t, err)
	assert.Equal(t, "Nurse", team.Personas[0].Name())
	assert.Equal(t, 2, team.RoundLimit)

	t.Run("configured limit applies when the file sets none", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "team.yaml")
		require.NoError(t, os.WriteFile(path, []byte("personas:\n  - name: Nurse\n"), 0o600))
		cfg := testConfig()
		cfg.TeamFile = path
		cfg.RoundLimit = 7
		team, err := LoadTeam(cfg)
		require.NoError(t, err)
		assert.Equal(t, 7, team.RoundLimit)
	})
}

func TestApp_Consult(t *testing.T) {
	var events bytes.Buffer
	cfg := testConfig()
	cfg.Events = "json"
	mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "Please rest and drink fluids."}}}

	app, err := New(cfg,
		WithChatModel(mock),
		WithLogger(zap.NewNop()),
		WithEventWriter(&events),
	)
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close(context.Background())) }()

	s, transcript, err := app.Consult(context.Background(), "I have a fever")
	require.NoError(t, err)
	assert.True(t, s.Terminated())
	assert.Len(t, transcript, 5)
	assert.Equal(t, 4, mock.CallCount())
	assert.Equal(t, 256, mock.Calls[0].Params.MaxTokens)

	stored, err := app.Store.LoadTranscript(context.Background(), s.ID())
	require.NoError(t, err)
	assert.Len(t, stored, 5)

	lines := strings.Split(strings.TrimSpace(events.String()), "\n")
	assert.Len(t, lines, 6)
	assert.Contains(t, lines[0], `"msg":"session_start"`)

	count, err := testutil.GatherAndCount(app.Registry, "automed_turns_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestApp_ConsultFailureReleasesSession(t *testing.T) {
	mock := &model.MockChatModel{Err: &model.ProviderError{Kind: model.KindAuthFailure, Provider: "openai"}}
	app, err := New(testConfig(), WithChatModel(mock), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close(context.Background())) }()

	for i := 0; i < 5; i++ {
		_, _, err := app.Consult(context.Background(), "I have a fever")
		require.Error(t, err)
	}

	const want = `
# HELP automed_active_sessions Sessions started or resumed in this process that have not terminated or been released
# TYPE automed_active_sessions gauge
automed_active_sessions 0
`
	assert.NoError(t, testutil.GatherAndCompare(app.Registry, strings.NewReader(want), "automed_active_sessions"))
}

func TestApp_OTelEvents(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	cfg := testConfig()
	cfg.Events = "otel"
	cfg.RoundLimit = 1

	app, err := New(cfg,
		WithChatModel(&model.MockChatModel{Responses: []model.ChatOut{{Text: "ok"}}}),
		WithLogger(zap.NewNop()),
		WithRegistry(prometheus.NewRegistry()),
		WithTracerProviderOptions(sdktrace.WithSpanProcessor(recorder)),
	)
	require.NoError(t, err)

	_, _, err = app.Consult(context.Background(), "hello")
	require.NoError(t, err)
	require.NoError(t, app.Close(context.Background()))

	names := make([]string, 0)
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Equal(t, []string{"session_start", "turn_complete", "session_end"}, names)
}

func TestNew_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.Events = "kafka"
	_, err := New(cfg, WithChatModel(&model.MockChatModel{}), WithLogger(zap.NewNop()))
	assert.ErrorIs(t, err, conversation.ErrInvalidConfiguration)

	cfg = testConfig()
	cfg.TeamFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = New(cfg, WithChatModel(&model.MockChatModel{}), WithLogger(zap.NewNop()))
	assert.Error(t, err)

	cfg = testConfig()
	cfg.OpenAIKey = ""
	_, err = New(cfg, WithLogger(zap.NewNop()))
	assert.ErrorIs(t, err, conversation.ErrInvalidConfiguration)
}

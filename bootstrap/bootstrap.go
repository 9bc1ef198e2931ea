// Package bootstrap assembles a ready-to-use AutoMed orchestrator from a
// config.Config: logger, chat model, store, emitter, metrics and team.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dshills/automed/config"
	"github.com/dshills/automed/conversation"
	"github.com/dshills/automed/conversation/emit"
	"github.com/dshills/automed/conversation/model"
	"github.com/dshills/automed/conversation/model/anthropic"
	"github.com/dshills/automed/conversation/model/google"
	"github.com/dshills/automed/conversation/model/openai"
	"github.com/dshills/automed/conversation/store"
	"github.com/dshills/automed/healthcare"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TracerName identifies spans created by the OTel emitter.
const TracerName = "github.com/dshills/automed"

// App holds the assembled components. Close releases them.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Registry     *prometheus.Registry
	Metrics      *conversation.Metrics
	Emitter      emit.Emitter
	Store        store.Store[conversation.Message]
	Team         healthcare.Team
	Orchestrator *conversation.Orchestrator

	tracerProvider *sdktrace.TracerProvider
}

type settings struct {
	logger      *zap.Logger
	chat        model.ChatModel
	eventWriter io.Writer
	registry    *prometheus.Registry
	traceOpts   []sdktrace.TracerProviderOption
}

// Option customises New.
type Option func(*settings)

// WithLogger uses l instead of building one from the configured level.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithChatModel replaces the configured provider adapter.
func WithChatModel(m model.ChatModel) Option {
	return func(s *settings) { s.chat = m }
}

// WithEventWriter sets where text and JSON events go. Default: os.Stdout.
func WithEventWriter(w io.Writer) Option {
	return func(s *settings) { s.eventWriter = w }
}

// WithRegistry registers metrics on r instead of a fresh registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(s *settings) { s.registry = r }
}

// WithTracerProviderOptions is passed to sdktrace.NewTracerProvider when
// events are "otel", typically to attach an exporter.
func WithTracerProviderOptions(opts ...sdktrace.TracerProviderOption) Option {
	return func(s *settings) { s.traceOpts = append(s.traceOpts, opts...) }
}

// New builds an App from cfg.
func New(cfg config.Config, opts ...Option) (*App, error) {
	s := settings{eventWriter: os.Stdout}
	for _, opt := range opts {
		opt(&s)
	}

	app := &App{Config: cfg, Logger: s.logger}
	if app.Logger == nil {
		logger, err := NewLogger(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		app.Logger = logger
	}

	chat := s.chat
	if chat == nil {
		var err error
		if chat, err = NewChatModel(cfg); err != nil {
			return nil, err
		}
	}

	team, err := LoadTeam(cfg)
	if err != nil {
		return nil, err
	}
	app.Team = team

	app.Registry = s.registry
	if app.Registry == nil {
		app.Registry = prometheus.NewRegistry()
	}
	app.Metrics = conversation.NewMetrics(app.Registry)

	app.Emitter, app.tracerProvider, err = newEmitter(cfg.Events, app.Logger, s.eventWriter, s.traceOpts)
	if err != nil {
		return nil, err
	}

	app.Store, err = NewStore(cfg)
	if err != nil {
		_ = app.Close(context.Background())
		return nil, err
	}

	provider := conversation.NewModelProvider(chat,
		conversation.WithMaxTokens(cfg.MaxTokens),
		conversation.WithRequestsPerMinute(cfg.RequestsPerMinute),
	)
	app.Orchestrator, err = conversation.New(provider,
		conversation.WithRetryPolicy(cfg.RetryPolicy()),
		conversation.WithCompletionTimeout(cfg.CompletionTimeout),
		conversation.WithEmitter(app.Emitter),
		conversation.WithStore(app.Store),
		conversation.WithMetrics(app.Metrics),
		conversation.WithLogger(app.Logger),
	)
	if err != nil {
		_ = app.Close(context.Background())
		return nil, err
	}

	app.Logger.Info("automed ready",
		zap.String("provider", cfg.Provider),
		zap.String("store", cfg.Store),
		zap.String("events", cfg.Events),
		zap.Int("participants", len(team.Personas)),
		zap.Int("round_limit", team.RoundLimit),
	)
	return app, nil
}

// Consult runs one full session of the team for the patient's message.
func (a *App) Consult(ctx context.Context, message string) (*conversation.Session, conversation.Transcript, error) {
	s, err := a.Orchestrator.StartSession(ctx, a.Team.Personas, a.Team.RoundLimit, message)
	if err != nil {
		return nil, nil, err
	}
	transcript, err := a.Orchestrator.RunToCompletion(ctx, s)
	return s, transcript, err
}

// Close flushes tracing and closes the store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}

// NewLogger builds a production zap logger at level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level %q: %v", conversation.ErrInvalidConfiguration, level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.Sampling = nil
	return zcfg.Build()
}

// NewChatModel returns the adapter for cfg.Provider.
func NewChatModel(cfg config.Config) (model.ChatModel, error) {
	key := cfg.APIKey()
	if key == "" {
		return nil, fmt.Errorf("%w: %s not set", conversation.ErrInvalidConfiguration, cfg.KeyVariable())
	}
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		return openai.NewChatModel(key, cfg.Model), nil
	case config.ProviderAnthropic:
		return anthropic.NewChatModel(key, cfg.Model), nil
	case config.ProviderGoogle:
		return google.NewChatModel(key, cfg.Model), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", conversation.ErrInvalidConfiguration, cfg.Provider)
	}
}

// NewStore opens the configured session store.
func NewStore(cfg config.Config) (store.Store[conversation.Message], error) {
	switch cfg.Store {
	case "memory", "":
		return store.NewMemStore[conversation.Message](), nil
	case "sqlite":
		st, err := store.NewSQLiteStore[conversation.Message](cfg.StoreDSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	case "mysql":
		st, err := store.NewMySQLStore[conversation.Message](cfg.StoreDSN)
		if err != nil {
			return nil, fmt.Errorf("open mysql store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: unknown store %q", conversation.ErrInvalidConfiguration, cfg.Store)
	}
}

// LoadTeam returns the team file's personas, or the default healthcare team.
// The configured round limit applies unless the team file sets its own.
func LoadTeam(cfg config.Config) (healthcare.Team, error) {
	team := healthcare.Team{Personas: healthcare.DefaultTeam()}
	if cfg.TeamFile != "" {
		var err error
		team, err = healthcare.LoadTeamFile(cfg.TeamFile)
		if err != nil {
			return healthcare.Team{}, fmt.Errorf("load team %s: %w", cfg.TeamFile, err)
		}
	}
	team.RoundLimit = team.RoundLimitOr(cfg.RoundLimit)
	return team, nil
}

func newEmitter(kind string, logger *zap.Logger, w io.Writer, traceOpts []sdktrace.TracerProviderOption) (emit.Emitter, *sdktrace.TracerProvider, error) {
	switch kind {
	case "none", "":
		return emit.NewNullEmitter(), nil, nil
	case "text":
		return emit.NewLogEmitter(w, false), nil, nil
	case "json":
		return emit.NewLogEmitter(w, true), nil, nil
	case "zap":
		return emit.NewZapEmitter(logger), nil, nil
	case "otel":
		opts := append([]sdktrace.TracerProviderOption{sdktrace.WithSampler(sdktrace.AlwaysSample())}, traceOpts...)
		tp := sdktrace.NewTracerProvider(opts...)
		return emit.NewOTelEmitter(tp.Tracer(TracerName)), tp, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown events mode %q", conversation.ErrInvalidConfiguration, kind)
	}
}

// Package config loads AutoMed settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/dshills/automed/conversation"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Config is built once at startup and passed down explicitly.
type Config struct {
	Provider     string `env:"AUTOMED_PROVIDER,default=openai" validate:"oneof=openai anthropic google"`
	OpenAIKey    string `env:"OPENAI_API_KEY"`
	AnthropicKey string `env:"ANTHROPIC_API_KEY"`
	GoogleKey    string `env:"GOOGLE_API_KEY"`
	Model        string `env:"AUTOMED_MODEL"`
	MaxTokens    int    `env:"AUTOMED_MAX_TOKENS,default=1024" validate:"gte=0"`

	RoundLimit        int           `env:"AUTOMED_ROUND_LIMIT,default=6" validate:"gt=0"`
	CompletionTimeout time.Duration `env:"AUTOMED_COMPLETION_TIMEOUT,default=120s" validate:"gte=0"`
	RetryMaxAttempts  int           `env:"AUTOMED_RETRY_MAX_ATTEMPTS,default=3" validate:"gte=1"`
	RetryBaseDelay    time.Duration `env:"AUTOMED_RETRY_BASE_DELAY,default=1s" validate:"gte=0"`
	RetryMaxDelay     time.Duration `env:"AUTOMED_RETRY_MAX_DELAY,default=30s" validate:"gte=0"`
	RequestsPerMinute int           `env:"AUTOMED_REQUESTS_PER_MINUTE,default=0" validate:"gte=0"`

	Store    string `env:"AUTOMED_STORE,default=memory" validate:"oneof=memory sqlite mysql"`
	StoreDSN string `env:"AUTOMED_STORE_DSN" validate:"required_unless=Store memory"`

	TeamFile string `env:"AUTOMED_TEAM_FILE"`
	LogLevel string `env:"AUTOMED_LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	Events   string `env:"AUTOMED_EVENTS,default=none" validate:"oneof=none text json zap otel"`

	HTTPAddr string `env:"AUTOMED_HTTP_ADDR,default=0.0.0.0:5000" validate:"hostname_port"`
	WebMode  string `env:"AUTOMED_WEB_MODE,default=demo" validate:"oneof=demo live"`
}

var validate = validator.New()

// Load reads .env from the working directory when present, then the process
// environment. Errors wrap conversation.ErrInvalidConfiguration.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: read .env: %v", conversation.ErrInvalidConfiguration, err)
	}

	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return Config{}, fmt.Errorf("%w: read environment: %v", conversation.ErrInvalidConfiguration, err)
	}
	return FromEnvSet(es)
}

// FromEnvSet builds and validates a Config from es.
func FromEnvSet(es env.EnvSet) (Config, error) {
	var cfg Config
	if err := env.Unmarshal(es, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", conversation.ErrInvalidConfiguration, err)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field values and that the selected provider has a key.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
				return fmt.Sprintf("%s failed %q", fe.Field(), fe.ActualTag())
			})
			return fmt.Errorf("%w: %s", conversation.ErrInvalidConfiguration, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", conversation.ErrInvalidConfiguration, err)
	}

	if c.RetryMaxDelay > 0 && c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("%w: AUTOMED_RETRY_MAX_DELAY %v is below AUTOMED_RETRY_BASE_DELAY %v",
			conversation.ErrInvalidConfiguration, c.RetryMaxDelay, c.RetryBaseDelay)
	}

	if c.APIKey() == "" {
		return fmt.Errorf("%w: %s not set for provider %s", conversation.ErrInvalidConfiguration, c.KeyVariable(), c.Provider)
	}
	return nil
}

// APIKey returns the credential of the selected provider.
func (c Config) APIKey() string {
	switch c.Provider {
	case ProviderAnthropic:
		return c.AnthropicKey
	case ProviderGoogle:
		return c.GoogleKey
	default:
		return c.OpenAIKey
	}
}

// KeyVariable names the environment variable holding the selected
// provider's credential.
func (c Config) KeyVariable() string {
	switch c.Provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderGoogle:
		return "GOOGLE_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// RetryPolicy returns the configured retry policy.
func (c Config) RetryPolicy() conversation.RetryPolicy {
	rp := conversation.DefaultRetryPolicy()
	rp.MaxAttempts = c.RetryMaxAttempts
	rp.BaseDelay = c.RetryBaseDelay
	rp.MaxDelay = c.RetryMaxDelay
	return rp
}

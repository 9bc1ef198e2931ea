package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/automed/conversation/model"
	"golang.org/x/time/rate"
)

// CompletionRequest is everything a provider needs to produce one persona
// turn.
type CompletionRequest struct {
	// Persona is the speaker of the requested turn.
	Persona Persona

	// Instructions are the persona's system instructions.
	Instructions string

	// Transcript is the full conversation so far, opening message included.
	Transcript Transcript

	// Temperature is the persona's sampling temperature.
	Temperature float64
}

// Provider produces the next utterance for a persona. Failures should be
// reported as *ProviderError; other errors are classified by the
// orchestrator.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ProviderFunc adapts an ordinary function to Provider.
type ProviderFunc func(ctx context.Context, req CompletionRequest) (string, error)

// Complete calls f(ctx, req).
func (f ProviderFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}

// ModelProvider adapts a model.ChatModel to Provider.
//
// The transcript is mapped from the replying persona's point of view: its own
// earlier messages become assistant turns and everyone else's become user
// turns prefixed with the speaker name.
type ModelProvider struct {
	chat      model.ChatModel
	maxTokens int
	limiter   *rate.Limiter
}

// ModelProviderOption configures a ModelProvider.
type ModelProviderOption func(*ModelProvider)

// WithMaxTokens caps each reply. Zero leaves the adapter default.
func WithMaxTokens(n int) ModelProviderOption {
	return func(p *ModelProvider) {
		p.maxTokens = n
	}
}

// WithRequestsPerMinute limits calls made through this provider. Zero or a
// negative value disables limiting.
func WithRequestsPerMinute(n int) ModelProviderOption {
	return func(p *ModelProvider) {
		if n <= 0 {
			p.limiter = nil
			return
		}
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}
}

// NewModelProvider wraps chat as a Provider.
func NewModelProvider(chat model.ChatModel, opts ...ModelProviderOption) *ModelProvider {
	p := &ModelProvider{chat: chat}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Complete implements Provider.
func (p *ModelProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// Wait fails early when the deadline would pass before a token frees up.
			return "", model.NewProviderError("ratelimit", model.KindRateLimited, err, "local request budget exhausted")
		}
	}

	out, err := p.chat.Chat(ctx, BuildMessages(req), model.Params{
		Temperature: req.Temperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		var perr *model.ProviderError
		if errors.As(err, &perr) || errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", model.NewProviderError("model", model.ClassifyError(err), err, "chat failed")
	}
	return out.Text, nil
}

// BuildMessages maps a request onto chat messages from the point of view of
// req.Persona.
func BuildMessages(req CompletionRequest) []model.Message {
	msgs := make([]model.Message, 0, len(req.Transcript)+1)
	if req.Instructions != "" {
		msgs = append(msgs, model.Message{Role: model.RoleSystem, Content: req.Instructions})
	}
	for _, m := range req.Transcript {
		if m.Speaker == req.Persona.Name() {
			msgs = append(msgs, model.Message{Role: model.RoleAssistant, Content: m.Content})
			continue
		}
		msgs = append(msgs, model.Message{Role: model.RoleUser, Content: m.Speaker + ": " + m.Content})
	}
	return msgs
}

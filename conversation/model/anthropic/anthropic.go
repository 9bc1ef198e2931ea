// Package anthropic provides the ChatModel adapter for Anthropic's Messages API.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/dshills/automed/conversation/model"
)

const providerName = "anthropic"

// DefaultModel is used when NewChatModel receives an empty model name.
const DefaultModel = "claude-3-5-sonnet-20241022"

// defaultMaxTokens is required by the Messages API when the caller sets none.
const defaultMaxTokens = 1024

// ChatModel implements model.ChatModel for Anthropic's Claude API.
//
// Handles the Anthropic-specific message format: the system prompt travels
// as a separate parameter, and consecutive turns from the same role are
// merged because the API expects alternating user/assistant turns.
//
// Example usage:
//
//	apiKey := os.Getenv("ANTHROPIC_API_KEY")
//	m := anthropic.NewChatModel(apiKey, "")
//	out, err := m.Chat(ctx, messages, model.Params{Temperature: 0.5})
type ChatModel struct {
	modelName string
	client    anthropicClient
}

// anthropicClient defines the interface for Anthropic API operations.
// This allows for easy mocking in tests.
type anthropicClient interface {
	createMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// NewChatModel creates a new Anthropic ChatModel.
//
// Parameters:
//   - apiKey: Anthropic API key
//   - modelName: Model to use. Empty string uses DefaultModel.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}

	return &ChatModel{
		modelName: modelName,
		client:    newDefaultClient(apiKey),
	}
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, params model.Params) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	systemPrompt, conversation := model.SplitSystem(messages)

	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	req := anthropic.MessageNewParams{
		Model:       anthropic.Model(m.modelName),
		MaxTokens:   int64(maxTokens),
		Messages:    convertMessages(conversation),
		Temperature: anthropic.Float(clampTemperature(params.Temperature)),
	}
	if systemPrompt != "" {
		req.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	msg, err := m.client.createMessage(ctx, req)
	if err != nil {
		return model.ChatOut{}, mapError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return model.ChatOut{
		Text: sb.String(),
		Usage: model.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// convertMessages merges consecutive same-role turns and converts them to
// Anthropic message params.
func convertMessages(messages []model.Message) []anthropic.MessageParam {
	merged := model.MergeTurns(messages)
	out := make([]anthropic.MessageParam, 0, len(merged))
	for _, msg := range merged {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

// clampTemperature keeps the value within Anthropic's accepted [0, 1] range.
func clampTemperature(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// mapError converts Anthropic API errors to model.ProviderError kinds.
func mapError(err error) error {
	var perr *model.ProviderError
	if errors.As(err, &perr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewProviderError(providerName, model.KindTimeout, err, "request timed out")
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return model.NewProviderError(providerName, model.KindFromStatus(apiErr.StatusCode), err, "API returned status %d", apiErr.StatusCode)
	}

	return model.NewProviderError(providerName, model.ClassifyError(err), err, "request failed")
}

// defaultClient wraps the official anthropic-sdk-go client.
type defaultClient struct {
	apiKey string
	client anthropic.Client
}

func newDefaultClient(apiKey string) *defaultClient {
	return &defaultClient{
		apiKey: apiKey,
		client: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		),
	}
}

func (c *defaultClient) createMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	if c.apiKey == "" {
		return nil, model.NewProviderError(providerName, model.KindAuthFailure, nil, "API key is required")
	}
	return c.client.Messages.New(ctx, params)
}

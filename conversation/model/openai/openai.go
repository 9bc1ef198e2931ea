// Package openai provides the ChatModel adapter for OpenAI's chat completions API.
package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/dshills/automed/conversation/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const providerName = "openai"

// DefaultModel is used when NewChatModel receives an empty model name.
const DefaultModel = "gpt-4o"

// ChatModel implements model.ChatModel for OpenAI's API.
//
// Retries are left to the caller: the SDK's own retry loop is disabled so the
// orchestrator's retry policy is the only one in effect.
//
// Example usage:
//
//	apiKey := os.Getenv("OPENAI_API_KEY")
//	m := openai.NewChatModel(apiKey, "gpt-4o")
//
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleUser, Content: "What helps with a mild fever?"},
//	}, model.Params{Temperature: 0.3})
type ChatModel struct {
	modelName string
	client    openaiClient
}

// openaiClient defines the interface for OpenAI API operations.
// This allows for easy mocking in tests.
type openaiClient interface {
	createChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// NewChatModel creates a new OpenAI ChatModel.
//
// Parameters:
//   - apiKey: OpenAI API key
//   - modelName: Model to use (e.g., "gpt-4o"). Empty string uses DefaultModel.
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
//
// Returns a *model.ProviderError for every API failure.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, params model.Params) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	req := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(m.modelName),
		Messages:    convertMessages(messages),
		Temperature: openai.Float(params.Temperature),
	}
	if params.MaxTokens > 0 {
		req.MaxCompletionTokens = openai.Int(int64(params.MaxTokens))
	}

	completion, err := m.client.createChatCompletion(ctx, req)
	if err != nil {
		return model.ChatOut{}, mapError(err)
	}

	if len(completion.Choices) == 0 {
		return model.ChatOut{}, model.NewProviderError(providerName, model.KindUnknown, nil, "no choices in response")
	}

	return model.ChatOut{
		Text: completion.Choices[0].Message.Content,
		Usage: model.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

// convertMessages converts our Message format to OpenAI's union params.
func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// mapError converts OpenAI API errors to model.ProviderError kinds.
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

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		kind := model.KindFromStatus(apiErr.StatusCode)
		// insufficient_quota arrives as 429 but will not clear with a retry.
		if strings.Contains(strings.ToLower(apiErr.Code), "insufficient_quota") {
			kind = model.KindUnknown
		}
		return model.NewProviderError(providerName, kind, err, "API returned status %d", apiErr.StatusCode)
	}

	return model.NewProviderError(providerName, model.ClassifyError(err), err, "request failed")
}

// defaultClient wraps the official openai-go SDK client.
type defaultClient struct {
	apiKey string
	client openai.Client
}

func newDefaultClient(apiKey string) *defaultClient {
	return &defaultClient{
		apiKey: apiKey,
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		),
	}
}

func (c *defaultClient) createChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if c.apiKey == "" {
		return nil, model.NewProviderError(providerName, model.KindAuthFailure, nil, "API key is required")
	}
	return c.client.Chat.Completions.New(ctx, params)
}

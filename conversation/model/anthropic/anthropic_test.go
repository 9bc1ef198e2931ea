package anthropic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/dshills/automed/conversation/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAnthropicClient struct {
	message *anthropic.Message
	err     error
	calls   []anthropic.MessageNewParams
}

func (m *mockAnthropicClient) createMessage(_ context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return m.message, nil
}

func apiError(status int) *anthropic.Error {
	return &anthropic.Error{
		StatusCode: status,
		Request:    httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil),
		Response:   &http.Response{StatusCode: status},
	}
}

func TestNewChatModel(t *testing.T) {
	m := NewChatModel("test-key", "")
	require.NotNil(t, m)
	assert.Equal(t, DefaultModel, m.modelName)

	m = NewChatModel("test-key", "claude-3-haiku-20240307")
	assert.Equal(t, "claude-3-haiku-20240307", m.modelName)
}

func TestChatModel_Chat(t *testing.T) {
	t.Run("sends system prompt separately and concatenates text blocks", func(t *testing.T) {
		client := &mockAnthropicClient{
			message: &anthropic.Message{
				Content: []anthropic.ContentBlockUnion{
					{Type: "text", Text: "Take note of "},
					{Type: "text", Text: "when it started."},
				},
				Usage: anthropic.Usage{InputTokens: 30, OutputTokens: 9},
			},
		}
		m := &ChatModel{modelName: DefaultModel, client: client}

		out, err := m.Chat(context.Background(), []model.Message{
			{Role: model.RoleSystem, Content: "You are a symptom checker."},
			{Role: model.RoleUser, Content: "initiator: my knee hurts"},
		}, model.Params{Temperature: 0.5})
		require.NoError(t, err)

		assert.Equal(t, "Take note of when it started.", out.Text)
		assert.Equal(t, 30, out.Usage.InputTokens)
		assert.Equal(t, 9, out.Usage.OutputTokens)

		require.Len(t, client.calls, 1)
		req := client.calls[0]
		require.Len(t, req.System, 1)
		assert.Equal(t, "You are a symptom checker.", req.System[0].Text)
		assert.Len(t, req.Messages, 1)
		assert.EqualValues(t, defaultMaxTokens, req.MaxTokens)
		assert.InDelta(t, 0.5, req.Temperature.Value, 1e-9)
	})

	t.Run("cancelled context short-circuits", func(t *testing.T) {
		client := &mockAnthropicClient{}
		m := &ChatModel{modelName: DefaultModel, client: client}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := m.Chat(ctx, nil, model.Params{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, client.calls)
	})

	t.Run("missing API key is an auth failure", func(t *testing.T) {
		m := NewChatModel("", "")

		_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "hi"}}, model.Params{})
		var perr *model.ProviderError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, model.KindAuthFailure, perr.Kind)
	})
}

func TestConvertMessages(t *testing.T) {
	params := convertMessages([]model.Message{
		{Role: model.RoleUser, Content: "initiator: I feel anxious"},
		{Role: model.RoleUser, Content: "Therapist: Tell me more."},
		{Role: model.RoleAssistant, Content: "Try slow breathing."},
	})

	require.Len(t, params, 2)
	assert.Equal(t, anthropic.MessageParamRoleUser, params[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, params[1].Role)
}

func TestClampTemperature(t *testing.T) {
	assert.InDelta(t, 0.0, clampTemperature(-0.2), 1e-9)
	assert.InDelta(t, 0.7, clampTemperature(0.7), 1e-9)
	assert.InDelta(t, 1.0, clampTemperature(1.4), 1e-9)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.ErrorKind
	}{
		{"rate limited", apiError(http.StatusTooManyRequests), model.KindRateLimited},
		{"overloaded", apiError(529), model.KindRateLimited},
		{"unauthorized", apiError(http.StatusUnauthorized), model.KindAuthFailure},
		{"bad request", apiError(http.StatusBadRequest), model.KindUnknown},
		{"deadline", context.DeadlineExceeded, model.KindTimeout},
		{"other", errors.New("unexpected EOF"), model.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var perr *model.ProviderError
			require.ErrorAs(t, mapError(tt.err), &perr)
			assert.Equal(t, tt.want, perr.Kind)
			assert.Equal(t, "anthropic", perr.Provider)
		})
	}

	t.Run("cancellation passes through", func(t *testing.T) {
		assert.Equal(t, context.Canceled, mapError(context.Canceled))
	})
}

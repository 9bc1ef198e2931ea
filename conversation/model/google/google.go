// Package google provides ChatModel adapter for Google Gemini API.
package google

import (
	"context"
	"errors"
	"strings"

	"github.com/dshills/automed/conversation/model"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const providerName = "google"

// DefaultModel is used when NewChatModel receives an empty model name.
const DefaultModel = "gemini-1.5-flash"

// ChatModel implements model.ChatModel for Google's Gemini API.
//
// The persona's system prompt is sent as the model's SystemInstruction and
// the transcript as chat history. Safety filter blocks surface as a
// *SafetyFilterError wrapped in a *model.ProviderError.
//
// Example usage:
//
//	apiKey := os.Getenv("GOOGLE_API_KEY")
//	m := google.NewChatModel(apiKey, "gemini-1.5-flash")
//
//	out, err := m.Chat(ctx, messages, model.Params{Temperature: 0.1})
//	if err != nil {
//	    var safetyErr *google.SafetyFilterError
//	    if errors.As(err, &safetyErr) {
//	        log.Printf("Content blocked: %s", safetyErr.Category())
//	        return
//	    }
//	    log.Fatal(err)
//	}
type ChatModel struct {
	modelName string
	client    googleClient
}

// chatRequest is the provider-shaped form of a single Chat call.
type chatRequest struct {
	System      string
	History     []*genai.Content
	Message     []genai.Part
	Temperature float32
	MaxTokens   int32
}

// googleClient defines the interface for Google Gemini API operations.
// This allows for easy mocking in tests.
type googleClient interface {
	generateContent(ctx context.Context, req chatRequest) (*genai.GenerateContentResponse, error)
}

// NewChatModel creates a new Google ChatModel.
//
// Parameters:
//   - apiKey: Google API key
//   - modelName: Model to use (e.g., "gemini-1.5-flash"). Empty string uses DefaultModel.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}

	return &ChatModel{
		modelName: modelName,
		client:    &defaultClient{apiKey: apiKey, modelName: modelName},
	}
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, params model.Params) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	req, err := buildRequest(messages, params)
	if err != nil {
		return model.ChatOut{}, err
	}

	resp, err := m.client.generateContent(ctx, req)
	if err != nil {
		return model.ChatOut{}, mapError(err)
	}

	return convertResponse(resp), nil
}

// buildRequest splits off the system prompt and turns all but the final
// message into chat history. The final message is sent as the new user turn.
func buildRequest(messages []model.Message, params model.Params) (chatRequest, error) {
	systemPrompt, conversation := model.SplitSystem(messages)
	turns := model.MergeTurns(conversation)
	if len(turns) == 0 {
		return chatRequest{}, model.NewProviderError(providerName, model.KindUnknown, nil, "no messages to send")
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, turn := range turns[:len(turns)-1] {
		history = append(history, &genai.Content{
			Role:  geminiRole(turn.Role),
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}

	return chatRequest{
		System:      systemPrompt,
		History:     history,
		Message:     []genai.Part{genai.Text(turns[len(turns)-1].Content)},
		Temperature: float32(params.Temperature),
		MaxTokens:   int32(params.MaxTokens),
	}, nil
}

// geminiRole maps our roles to Gemini's "user" and "model".
func geminiRole(role string) string {
	if role == model.RoleAssistant {
		return "model"
	}
	return "user"
}

// convertResponse converts Google's response to our ChatOut format.
func convertResponse(resp *genai.GenerateContentResponse) model.ChatOut {
	out := model.ChatOut{}
	if resp == nil {
		return out
	}

	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	if len(resp.Candidates) == 0 {
		return out
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return out
	}

	var texts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			texts = append(texts, string(text))
		}
	}
	out.Text = strings.Join(texts, "\n")

	return out
}

// httpCoder is implemented by gax-go's apierror.APIError.
type httpCoder interface {
	HTTPCode() int
}

// mapError converts Gemini errors to model.ProviderError kinds.
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

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		safetyErr := newSafetyFilterError(blocked)
		return model.NewProviderError(providerName, model.KindUnknown, safetyErr, "response blocked")
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return model.NewProviderError(providerName, model.KindFromStatus(gerr.Code), err, "API returned status %d", gerr.Code)
	}

	var coder httpCoder
	if errors.As(err, &coder) && coder.HTTPCode() > 0 {
		return model.NewProviderError(providerName, model.KindFromStatus(coder.HTTPCode()), err, "API returned status %d", coder.HTTPCode())
	}

	return model.NewProviderError(providerName, model.ClassifyError(err), err, "request failed")
}

// defaultClient wraps the official Google Gemini SDK client.
type defaultClient struct {
	apiKey    string
	modelName string
}

func (c *defaultClient) generateContent(ctx context.Context, req chatRequest) (*genai.GenerateContentResponse, error) {
	if c.apiKey == "" {
		return nil, model.NewProviderError(providerName, model.KindAuthFailure, nil, "API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, model.NewProviderError(providerName, model.KindUnknown, err, "failed to create client")
	}
	defer func() {
		_ = client.Close()
	}()

	genModel := client.GenerativeModel(c.modelName)
	genModel.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		genModel.SetMaxOutputTokens(req.MaxTokens)
	}
	if req.System != "" {
		genModel.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	session := genModel.StartChat()
	session.History = req.History

	return session.SendMessage(ctx, req.Message...)
}

// SafetyFilterError represents a Google safety filter block.
//
// Provides information about why content was blocked:
//   - Reason: Why the block occurred (e.g., "SAFETY")
//   - Category: Which safety category was triggered
//
// Use errors.As to check for this error type:
//
//	var safetyErr *google.SafetyFilterError
//	if errors.As(err, &safetyErr) {
//	    log.Printf("Content blocked: %s", safetyErr.Category())
//	}
type SafetyFilterError struct {
	reason   string
	category string
}

func newSafetyFilterError(blocked *genai.BlockedError) *SafetyFilterError {
	e := &SafetyFilterError{reason: "SAFETY", category: "unspecified"}

	if blocked.PromptFeedback != nil {
		e.reason = blocked.PromptFeedback.BlockReason.String()
		for _, rating := range blocked.PromptFeedback.SafetyRatings {
			if rating.Blocked {
				e.category = rating.Category.String()
				return e
			}
		}
	}

	if blocked.Candidate != nil {
		e.reason = blocked.Candidate.FinishReason.String()
		for _, rating := range blocked.Candidate.SafetyRatings {
			if rating.Blocked {
				e.category = rating.Category.String()
				break
			}
		}
	}

	return e
}

// Error implements the error interface.
func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.category
}

// Category returns the safety category that triggered the block.
func (e *SafetyFilterError) Category() string {
	return e.category
}

// Reason returns why the content was blocked.
func (e *SafetyFilterError) Reason() string {
	return e.reason
}

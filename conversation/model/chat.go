// Package model provides LLM integration adapters.
package model

import "context"

// ChatModel defines the interface for LLM chat providers.
//
// This interface abstracts the differences between OpenAI, Anthropic and
// Google, providing a single call used by the conversation orchestrator to
// obtain a persona's next utterance.
//
// Implementations should:
//   - Handle provider-specific authentication.
//   - Convert the standard Message format to the provider format.
//   - Respect context cancellation and deadlines.
//   - Report failures as *ProviderError so callers can decide on retries.
//
// Implementations should not retry internally; retry policy belongs to the
// caller.
//
// Example usage:
//
//	m := openai.NewChatModel(apiKey, "gpt-4o")
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleSystem, Content: "You are a medical advisor."},
//	    {Role: model.RoleUser, Content: "I have a headache."},
//	}, model.Params{Temperature: 0.3})
type ChatModel interface {
	// Chat sends messages to the LLM and returns the response.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control.
	//   - messages: Conversation history (system, user, assistant messages).
	//   - params: Sampling parameters for this call.
	Chat(ctx context.Context, messages []Message, params Params) (ChatOut, error)
}

// Message represents a single message in an LLM conversation.
//
// Typical structure for one persona turn:
//   - System message: the persona's instructions.
//   - User messages: what other participants said.
//   - Assistant messages: what this persona said earlier.
type Message struct {
	// Role identifies the message sender.
	// Use the Role* constants for consistency.
	Role string

	// Content contains the message text.
	Content string
}

// Standard role constants for LLM conversations.
const (
	// RoleSystem indicates a system message that sets context or instructions.
	RoleSystem = "system"

	// RoleUser indicates a message from someone other than the replying persona.
	RoleUser = "user"

	// RoleAssistant indicates a message previously produced by the replying persona.
	RoleAssistant = "assistant"
)

// Params carries per-call sampling parameters.
type Params struct {
	// Temperature controls randomness. Providers clamp to their own range.
	Temperature float64

	// MaxTokens caps the reply length. Zero uses the adapter default.
	MaxTokens int
}

// ChatOut represents the output from an LLM chat completion.
type ChatOut struct {
	// Text contains the LLM's generated response.
	// May be empty; the orchestrator treats an empty reply as a skipped turn.
	Text string

	// Usage reports token consumption when the provider returns it.
	Usage Usage
}

// Usage reports token consumption for a single call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// SplitSystem separates system messages from the rest of the conversation.
// Multiple system messages are joined with a blank line. Anthropic and Gemini
// both take the system prompt as a separate parameter.
func SplitSystem(messages []Message) (string, []Message) {
	var systemPrompt string
	var rest []Message

	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
			continue
		}
		rest = append(rest, msg)
	}

	return systemPrompt, rest
}

// MergeTurns joins adjacent non-system messages that share a role. Any role
// other than RoleAssistant is treated as RoleUser. Providers that expect
// strictly alternating turns use it after SplitSystem.
func MergeTurns(messages []Message) []Message {
	var out []Message
	for _, msg := range messages {
		role := msg.Role
		if role != RoleAssistant {
			role = RoleUser
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + msg.Content
			continue
		}
		out = append(out, Message{Role: role, Content: msg.Content})
	}
	return out
}

package conversation

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

// Message is one entry of a transcript.
type Message struct {
	// Speaker is the persona name, or InitiatorName for the opening message.
	Speaker string `json:"speaker"`

	// Content is the message text.
	Content string `json:"content"`

	// Round is the round the message was spoken in. The opening message and
	// the first reply both carry 0; replies increase by one per round.
	Round int `json:"round"`

	// CreatedAt is when the message was appended.
	CreatedAt time.Time `json:"created_at"`
}

// Transcript is the ordered log of a session's messages.
type Transcript []Message

// Last returns the final message, if any.
func (t Transcript) Last() (Message, bool) {
	if len(t) == 0 {
		return Message{}, false
	}
	return t[len(t)-1], true
}

// BySpeaker returns the messages authored by name.
func (t Transcript) BySpeaker(name string) Transcript {
	return lo.Filter(t, func(m Message, _ int) bool {
		return m.Speaker == name
	})
}

// Replies returns every message except the opening one.
func (t Transcript) Replies() Transcript {
	return lo.Filter(t, func(m Message, _ int) bool {
		return m.Speaker != InitiatorName
	})
}

// String renders the transcript as speaker-labelled paragraphs.
func (t Transcript) String() string {
	lines := lo.Map(t, func(m Message, _ int) string {
		return m.Speaker + ": " + m.Content
	})
	return strings.Join(lines, "\n\n")
}

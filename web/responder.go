package web

import (
	"context"
	"errors"
	"strings"

	"github.com/dshills/automed/canned"
	"github.com/dshills/automed/conversation"
)

// ErrEmptyMessage is returned by a Responder that cannot answer a
// whitespace-only message. The server reports it as a bad request.
var ErrEmptyMessage = errors.New("message is empty")

// Responder produces the bot reply for one chat message.
type Responder interface {
	Respond(ctx context.Context, message string) (string, error)
}

// ResponderFunc adapts an ordinary function to Responder.
type ResponderFunc func(ctx context.Context, message string) (string, error)

// Respond calls f(ctx, message).
func (f ResponderFunc) Respond(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

// CannedResponder answers with keyword-matched canned texts. It never fails.
type CannedResponder struct{}

// Respond implements Responder.
func (CannedResponder) Respond(_ context.Context, message string) (string, error) {
	return canned.Respond(message), nil
}

// Consulter runs one full team session for a message. *bootstrap.App
// implements it.
type Consulter interface {
	Consult(ctx context.Context, message string) (*conversation.Session, conversation.Transcript, error)
}

// TeamResponder answers with the speaker-labelled replies of a full persona
// session.
type TeamResponder struct {
	team Consulter
}

// NewTeamResponder wraps team.
func NewTeamResponder(team Consulter) *TeamResponder {
	return &TeamResponder{team: team}
}

// Respond implements Responder. The opening message is not echoed back.
func (t *TeamResponder) Respond(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyMessage
	}
	_, transcript, err := t.team.Consult(ctx, message)
	if err != nil {
		return "", err
	}
	return transcript.Replies().String(), nil
}

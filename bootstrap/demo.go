package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dshills/automed/conversation"
)

const rule = "========================================"

// RunPrompts consults the team once per prompt, each in a new session, and
// writes the speaker-labelled replies to w. A failed prompt is reported and
// the next one still runs; the first error is returned at the end.
func (a *App) RunPrompts(ctx context.Context, w io.Writer, title string, prompts []string) error {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, rule)

	var firstErr error
	for _, prompt := range prompts {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprintf(w, "\nUser: %s\n", prompt)
		fmt.Fprintln(w, strings.Repeat("-", len(rule)))

		_, transcript, err := a.Consult(ctx, prompt)
		WriteReplies(w, transcript)
		if err != nil {
			fmt.Fprintf(w, "An error occurred: %v\n", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		fmt.Fprintln(w, rule)
	}
	return firstErr
}

// WriteReplies prints every persona reply of transcript as "Speaker: text".
func WriteReplies(w io.Writer, transcript conversation.Transcript) {
	for _, m := range transcript.Replies() {
		fmt.Fprintf(w, "\n%s:\n%s\n", m.Speaker, m.Content)
	}
}

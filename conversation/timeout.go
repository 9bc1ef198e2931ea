package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/automed/conversation/model"
)

// completeWithTimeout runs one provider call under the per-call timeout and
// normalises its failure into a *ProviderError.
//
// A timeout of zero means no per-call deadline. Cancellation of the parent
// context is returned as the context error, not as a ProviderError.
func completeWithTimeout(ctx context.Context, p Provider, req CompletionRequest, timeout time.Duration) (string, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	text, err := p.Complete(callCtx, req)
	if err == nil {
		return text, nil
	}

	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	if timeout > 0 && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		var perr *ProviderError
		if errors.As(err, &perr) && perr.Kind == KindTimeout {
			return "", err
		}
		return "", &ProviderError{
			Kind:     KindTimeout,
			Provider: providerLabel(err),
			Message:  fmt.Sprintf("completion for %s exceeded timeout of %v", req.Persona.Name(), timeout),
			Err:      err,
		}
	}

	var perr *ProviderError
	if errors.As(err, &perr) {
		return "", err
	}
	return "", model.NewProviderError("provider", model.ClassifyError(err), err, "completion for %s failed", req.Persona.Name())
}

func providerLabel(err error) string {
	var perr *ProviderError
	if errors.As(err, &perr) && perr.Provider != "" {
		return perr.Provider
	}
	return "provider"
}

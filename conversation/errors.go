package conversation

import (
	"errors"

	"github.com/dshills/automed/conversation/model"
)

// ErrInvalidConfiguration indicates a session or orchestrator was set up
// with unusable parameters. It is always wrapped with the detail.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ErrSessionTerminated is returned when advancing a session that has
// already reached its round limit.
var ErrSessionTerminated = errors.New("session terminated")

// ProviderError is the failure reported by a completion provider.
type ProviderError = model.ProviderError

// ErrorKind classifies a ProviderError.
type ErrorKind = model.ErrorKind

// Provider failure kinds.
const (
	KindTimeout     = model.KindTimeout
	KindRateLimited = model.KindRateLimited
	KindAuthFailure = model.KindAuthFailure
	KindUnknown     = model.KindUnknown
)

// IsRetryable reports whether err carries a ProviderError of a transient kind.
func IsRetryable(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable()
	}
	return false
}

// errorKind extracts the ProviderError kind, or KindUnknown.
func errorKind(err error) ErrorKind {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindUnknown
}

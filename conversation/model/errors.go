package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies provider failures for retry decisions.
type ErrorKind string

// Provider failure kinds.
const (
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"
	KindAuthFailure ErrorKind = "auth_failure"
	KindUnknown     ErrorKind = "unknown"
)

// ProviderError represents a failure reported by a completion provider.
//
// Use errors.As to inspect the kind:
//
//	var perr *model.ProviderError
//	if errors.As(err, &perr) && perr.Kind == model.KindRateLimited {
//	    // back off
//	}
type ProviderError struct {
	// Kind is the machine-readable failure class.
	Kind ErrorKind

	// Provider names the adapter that failed ("openai", "anthropic", "google").
	Provider string

	// Message is the human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	var sb strings.Builder
	if e.Provider != "" {
		sb.WriteString(e.Provider)
		sb.WriteString(": ")
	}
	sb.WriteString(string(e.Kind))
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient.
// Timeouts and rate limits are; authentication and unknown failures are not.
func (e *ProviderError) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindRateLimited
}

// NewProviderError builds a ProviderError with a formatted message.
func NewProviderError(provider string, kind ErrorKind, err error, format string, args ...any) *ProviderError {
	return &ProviderError{
		Kind:     kind,
		Provider: provider,
		Message:  fmt.Sprintf(format, args...),
		Err:      err,
	}
}

// KindFromStatus maps an HTTP status code returned by a provider API onto an
// ErrorKind.
func KindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthFailure
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == 529: // Anthropic "overloaded"
		return KindRateLimited
	case status == http.StatusServiceUnavailable:
		return KindRateLimited
	default:
		return KindUnknown
	}
}

// ClassifyError maps an arbitrary error onto an ErrorKind. Context deadline
// errors become KindTimeout; otherwise the message is matched against common
// patterns. Adapters call this when the SDK error carries no status code.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "429"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "resource has been exhausted"),
		strings.Contains(msg, "overloaded"):
		return KindRateLimited
	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "incorrect api key"),
		strings.Contains(msg, "api key not valid"),
		strings.Contains(msg, "permission denied"):
		return KindAuthFailure
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	default:
		return KindUnknown
	}
}

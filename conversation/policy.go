package conversation

import (
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy defines automatic retry configuration for provider failures.
//
// When a completion fails, the policy decides whether the failure is
// retryable and how long to wait before the next attempt. Exponential
// backoff with jitter keeps concurrent sessions from retrying in lockstep.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of calls per round, including the
	// first. A value of 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base delay for exponential backoff between retries.
	BaseDelay time.Duration

	// MaxDelay caps the delay between retries. Zero means no cap.
	MaxDelay time.Duration

	// Retryable decides whether an error is retried. If nil, IsRetryable is
	// used: timeouts and rate limits are retried, everything else is not.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns 3 attempts with a 1s base delay capped at 30s,
// retrying timeouts and rate limits.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Retryable:   IsRetryable,
	}
}

// Validate checks the policy. Errors wrap ErrInvalidConfiguration.
func (rp RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry max attempts %d must be >= 1", ErrInvalidConfiguration, rp.MaxAttempts)
	}
	if rp.BaseDelay < 0 || rp.MaxDelay < 0 {
		return fmt.Errorf("%w: retry delays must not be negative", ErrInvalidConfiguration)
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return fmt.Errorf("%w: retry max delay %v is below base delay %v", ErrInvalidConfiguration, rp.MaxDelay, rp.BaseDelay)
	}
	return nil
}

func (rp RetryPolicy) retryable(err error) bool {
	if rp.Retryable == nil {
		return IsRetryable(err)
	}
	return rp.Retryable(err)
}

// computeBackoff calculates the delay before retry number attempt (zero
// based) using exponential backoff with jitter:
//
//	delay = min(base * 2^attempt + jitter(0, base), maxDelay)
//
// Example delays with base=1s, maxDelay=30s:
//   - attempt 0: 1-2s
//   - attempt 1: 2-3s
//   - attempt 2: 4-5s
//   - attempt 5 and later: 30s (capped)
//
// A nil rng uses the global math/rand source.
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}

	var delay time.Duration
	if attempt >= 30 {
		delay = maxDelay
	} else {
		delay = base * (1 << attempt)
	}
	if delay <= 0 {
		// overflow
		delay = maxDelay
	}

	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security
	}
	delay += jitter

	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

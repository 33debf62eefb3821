// Package retry runs operations with exponential backoff on transient
// failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Policy controls how an operation is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable decides whether an error is worth another attempt. Nil
	// means IsTransient.
	Retryable func(error) bool
}

// DefaultPolicy retries up to 3 times starting at 500ms.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    5 * time.Second,
}

// Do calls fn until it succeeds, returns a non-retryable error, attempts
// run out, or ctx is done. The last error is returned wrapped with the
// operation name.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	delay := p.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == p.MaxAttempts || !retryable(err) {
			break
		}

		log.Ctx(ctx).Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Int("maxAttempts", p.MaxAttempts).
			Dur("delay", delay).
			Msg("retrying after transient error")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%s: %w", op, errors.Join(lastErr, ctx.Err()))
		case <-timer.C:
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return zero, fmt.Errorf("%s: %w", op, lastErr)
}

// IsTransient reports whether err looks like a temporary failure: rate
// limiting, server errors, timeouts or dropped connections. Context
// cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return transientStatus(apiErrPtr.Code)
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return transientStatus(statusErr.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range transientKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

var transientKeywords = []string{
	"rate limit",
	"resource exhausted",
	"resource_exhausted",
	"unavailable",
	"overloaded",
	"timeout",
	"connection reset",
	"connection refused",
	"eof",
}

func transientStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}

// StatusError carries an HTTP status code so callers outside the Gemini
// SDK can mark responses as transient.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

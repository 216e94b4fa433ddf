package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimitExceeded is returned when an admission is denied.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// LimitError describes which window denied an admission and how long until
// that window has a token again.
type LimitError struct {
	Window      Window
	Wait        time.Duration
	WaitSeconds int64
}

// Error returns the error message.
func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s window, retry in %ds", e.Window, e.WaitSeconds)
}

// Unwrap returns ErrRateLimitExceeded so callers can use errors.Is.
func (e *LimitError) Unwrap() error {
	return ErrRateLimitExceeded
}

// IsRateLimitError reports whether err denotes a denied admission.
func IsRateLimitError(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}

// AsLimitError extracts the LimitError from err, or returns nil.
func AsLimitError(err error) *LimitError {
	var le *LimitError
	if errors.As(err, &le) {
		return le
	}
	return nil
}

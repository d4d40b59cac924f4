package status

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrAuthFailure means the credentials were rejected. Retrying cannot
	// succeed until they change.
	ErrAuthFailure = errors.New("upstream rejected credentials")

	// ErrRateLimited means the upstream kept answering 429 after the retry budget
	ErrRateLimited = errors.New("upstream rate limited")

	// ErrTransient covers 5xx, timeouts and connection failures
	ErrTransient = errors.New("transient upstream failure")

	// ErrProtocol means a response could not be understood. Not retried.
	ErrProtocol = errors.New("unexpected upstream response")

	// ErrUnconfigured is returned without any network call when no
	// credentials are set
	ErrUnconfigured = errors.New("upstream credentials not configured")
)

// RateLimitedError carries the wait the upstream advised
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// RetryAfter extracts the advised wait from a rate-limited error, or 0
func RetryAfter(err error) time.Duration {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// Fatal reports whether err must stop the whole lookup rather than degrade
// one batch to offline.
func Fatal(err error) bool {
	return errors.Is(err, ErrAuthFailure) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnconfigured)
}

const defaultRetryAfter = time.Second

// advisedWait reads Retry-After (seconds or HTTP date) or Ratelimit-Reset
// (unix seconds) from a 429 response.
func advisedWait(h http.Header, now time.Time) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := at.Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}
	if v := h.Get("Ratelimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(unix, 0).Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}
	return defaultRetryAfter
}

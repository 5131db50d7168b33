package adapter

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultRetryAfter is used when a rate-limited response carries no usable Retry-After
const DefaultRetryAfter = 60 * time.Second

// NetworkError is a transport or HTTP status failure
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: API error: %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RateLimitError is a NetworkError signalling that the upstream API throttled us
type RateLimitError struct {
	NetworkError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s", e.Op, e.RetryAfter)
}

// Unwrap exposes the embedded NetworkError so errors.As finds both types
func (e *RateLimitError) Unwrap() error {
	return &e.NetworkError
}

// APIError is a response that does not have the expected shape
type APIError struct {
	Op     string
	Reason string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: unexpected response: %s", e.Op, e.Reason)
}

// statusError classifies a non-2xx response
func statusError(op string, resp *http.Response, now time.Time) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{
			NetworkError: NetworkError{Op: op, StatusCode: resp.StatusCode},
			RetryAfter:   parseRetryAfter(resp.Header.Get("Retry-After"), now),
		}
	}
	return &NetworkError{Op: op, StatusCode: resp.StatusCode}
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return DefaultRetryAfter
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return DefaultRetryAfter
}

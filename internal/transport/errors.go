package transport

import (
	"errors"
	"fmt"
)

// Common errors returned by the transport client.
var (
	// ErrAuth indicates an authentication error (missing/invalid API key).
	ErrAuth = errors.New("authentication error")

	// ErrRateLimited indicates the remote rate limit has been exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrNetwork indicates a network connectivity issue.
	ErrNetwork = errors.New("network error")
)

// StatusError is a non-2xx HTTP response from the remote service. The
// body is kept because the service reports lookup problems as JSON
// error payloads with a 4xx status.
type StatusError struct {
	StatusCode int
	URL        string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// IsNotFound reports whether the error is a 404 from the service.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == 404
}

// IsRateLimited reports whether the error indicates throttling.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == 429
}

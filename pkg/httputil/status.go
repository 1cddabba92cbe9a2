package httputil

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrStatus is wrapped by every error returned from [CheckStatus].
var ErrStatus = errors.New("unexpected HTTP status")

// DefaultTimeout bounds short control requests such as health checks.
const DefaultTimeout = 10 * time.Second

// NewClient returns an HTTP client with the given overall timeout.
// A zero timeout means no limit, which suits long generation requests that
// are bounded by their context instead.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// CheckStatus maps a response status to nil, a retryable error (5xx, 429)
// or a permanent error.
func CheckStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= 500 || code == http.StatusTooManyRequests:
		return &RetryableError{Err: fmt.Errorf("%w: %d", ErrStatus, code)}
	default:
		return fmt.Errorf("%w: %d", ErrStatus, code)
	}
}

// ReadErrorBody returns a short, single-line excerpt of a failed response
// body for error messages.
func ReadErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	s := strings.Join(strings.Fields(string(data)), " ")
	return s
}

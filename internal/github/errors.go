package github

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cli/go-gh/v2/pkg/api"
)

var (
	// ErrRateLimited is returned when the tracker throttles us
	ErrRateLimited = errors.New("github rate limit exceeded")

	// ErrAuthFailed is returned for missing or insufficient credentials
	ErrAuthFailed = errors.New("github authentication failed")

	// ErrNotFound is returned when the repository or issue does not exist
	ErrNotFound = errors.New("github resource not found")
)

// mapError translates go-gh HTTP errors into the package sentinels
func mapError(err error) error {
	var httpErr *api.HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}

	switch {
	case httpErr.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case httpErr.StatusCode == http.StatusForbidden && isRateLimit(httpErr.Headers):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case httpErr.StatusCode == http.StatusUnauthorized, httpErr.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	case httpErr.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// isRateLimit detects the primary and secondary rate limit responses, which
// GitHub sends as 403
func isRateLimit(h http.Header) bool {
	if h == nil {
		return false
	}
	return h.Get("X-RateLimit-Remaining") == "0" || h.Get("Retry-After") != ""
}

package agent

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/enzo-wego/claude-mem/internal/config"
)

// ErrUnavailable marks a provider that cannot serve requests right now:
// missing credentials, exhausted retries, or an unreachable endpoint.
// The fallback chain advances past providers that fail with this error.
var ErrUnavailable = errors.New("provider unavailable")

// ProviderError wraps a failed provider call with enough detail to decide
// between retrying, falling back, and giving up.
type ProviderError struct {
	Provider   config.ProviderName
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is worth retrying on the same
// provider. Rate limits, timeouts, server errors, and transport failures
// qualify; client errors like a malformed request do not.
func (e *ProviderError) Transient() bool {
	switch {
	case e.Status == http.StatusTooManyRequests:
		return true
	case e.Status == http.StatusRequestTimeout:
		return true
	case e.Status >= 500:
		return true
	case e.Status == 0:
		// No HTTP status means the request never completed.
		return true
	}
	return false
}

// Unavailable reports whether the failure disables the provider outright.
// A rejected or revoked key fails every call identically, so the chain
// should move on to the next provider instead of giving up.
func (e *ProviderError) Unavailable() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// retryAfterHint extracts a provider-suggested delay from the response,
// zero when absent or unparseable.
func retryAfterHint(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

package ai

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrRateLimit indicates the provider returned a rate limit error (429).
type ErrRateLimit struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("%s rate limited (retry after %s): %v", e.Provider, e.RetryAfter, e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrProviderUnavailable indicates the provider is down, unreachable, or
// rejected the request.
type ErrProviderUnavailable struct {
	Provider string
	Status   int
	Err      error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s unavailable (status %d): %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Provider, e.Err)
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

// statusError maps a non-200 provider response to a typed error.
func statusError(provider string, resp *http.Response, body []byte) error {
	err := fmt.Errorf("api error: %s", truncate(string(body), 512))
	if resp.StatusCode == http.StatusTooManyRequests {
		return &ErrRateLimit{
			Provider:   provider,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        err,
		}
	}
	return &ErrProviderUnavailable{Provider: provider, Status: resp.StatusCode, Err: err}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

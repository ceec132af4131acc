package completion

import (
	"fmt"
	"net/http"
)

// FailoverReason categorizes a provider error for retry purposes.
type FailoverReason string

const (
	FailoverRateLimit   FailoverReason = "rate_limit"
	FailoverAuth        FailoverReason = "auth"
	FailoverTimeout     FailoverReason = "timeout"
	FailoverServerError FailoverReason = "server_error"
	FailoverInvalid     FailoverReason = "invalid_request"
	FailoverUnknown     FailoverReason = "unknown"
)

// IsRetryable reports whether retrying the same provider has a chance of
// succeeding.
func (r FailoverReason) IsRetryable() bool {
	switch r {
	case FailoverRateLimit, FailoverTimeout, FailoverServerError:
		return true
	default:
		return false
	}
}

// ReasonFromStatus classifies an HTTP status code from a provider response.
func ReasonFromStatus(status int) FailoverReason {
	switch {
	case status == http.StatusTooManyRequests:
		return FailoverRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailoverAuth
	case status == http.StatusRequestTimeout:
		return FailoverTimeout
	case status >= 500:
		return FailoverServerError
	case status >= 400:
		return FailoverInvalid
	default:
		return FailoverUnknown
	}
}

// ProviderError wraps an upstream provider failure with enough context for
// the chain and handlers to decide whether to retry.
type ProviderError struct {
	Provider string
	Model    string
	Status   int
	Reason   FailoverReason
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("completion: %s (model %s): %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FailureReason buckets a provider failure for log_line severity and
// operator-facing diagnostics. The engine does not retry on any of these
// (§1 Non-goals) — they exist purely for observability.
type FailureReason string

const (
	ReasonRateLimit  FailureReason = "rate_limit"
	ReasonAuth       FailureReason = "auth"
	ReasonTimeout    FailureReason = "timeout"
	ReasonServer     FailureReason = "server_error"
	ReasonBadRequest FailureReason = "invalid_request"
	ReasonUnknown    FailureReason = "unknown"
)

// ProviderError is the concrete error behind the taxonomy's PROVIDER_ERROR
// code (§7). It is returned by Provider implementations and surfaced to the
// caller as a single EventError.
type ProviderError struct {
	Reason   FailureReason
	Provider string
	Model    string
	Status   int
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Reason))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError wraps cause, classifying it from its text.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{Provider: provider, Model: model, Cause: cause, Reason: ReasonUnknown}
	if cause != nil {
		err.Message = cause.Error()
		err.Reason = classifyError(cause)
	}
	return err
}

// WithStatus records an HTTP status and reclassifies from it.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	e.Reason = classifyStatus(status)
	return e
}

func classifyError(err error) FailureReason {
	if err == nil {
		return ReasonUnknown
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "timeout") || strings.Contains(s, "deadline exceeded"):
		return ReasonTimeout
	case strings.Contains(s, "rate limit") || strings.Contains(s, "too many requests"):
		return ReasonRateLimit
	case strings.Contains(s, "unauthorized") || strings.Contains(s, "authentication"):
		return ReasonAuth
	case strings.Contains(s, "internal server") || strings.Contains(s, "server error"):
		return ReasonServer
	default:
		return ReasonUnknown
	}
}

func classifyStatus(status int) FailureReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusBadRequest:
		return ReasonBadRequest
	case status >= 500:
		return ReasonServer
	default:
		return ReasonUnknown
	}
}

// IsProviderError reports whether err (or its chain) is a *ProviderError.
func IsProviderError(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr)
}

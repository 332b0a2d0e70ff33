package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a language-model failure for retry decisions.
type Kind int8

const (
	// KindRateLimited marks 429-style quota failures. Retryable.
	KindRateLimited Kind = iota
	// KindTimeout marks deadline and cancellation failures. Retryable.
	KindTimeout
	// KindUnauthorized marks authentication failures. Fatal to the task.
	KindUnauthorized
	// KindProvider marks all other provider-side failures. Not retried;
	// attributed to the calling agent rather than aborting the task.
	KindProvider
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindUnauthorized:
		return "unauthorized"
	case KindProvider:
		return "provider_error"
	default:
		return "invalid"
	}
}

// Error is a classified language-model failure.
type Error struct {
	Kind   Kind
	Status int
	Msg    string
	Cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("llm %s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("llm %s: %s", e.Kind, e.Msg)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the failure is worth retrying with backoff.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTimeout
}

// Fatal reports whether the failure must abort the task rather than be
// attributed to the calling agent.
func (e *Error) Fatal() bool {
	return e.Kind == KindUnauthorized
}

// NewError creates a classified error without a cause.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// WrapError creates a classified error wrapping a cause.
func WrapError(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// classify maps an arbitrary SDK error and optional HTTP status code to a
// structured *Error. The status code takes precedence; message patterns are
// a fallback for SDKs that only surface text.
func classify(err error, status int) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return WrapError(KindTimeout, err, "request deadline exceeded")
	}

	switch status {
	case 401, 403:
		return WrapError(KindUnauthorized, err, "authentication failed")
	case 429:
		return WrapError(KindRateLimited, err, "rate limit exceeded")
	}
	if status >= 500 {
		return WrapError(KindProvider, err, fmt.Sprintf("server error (%d)", status))
	}

	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "rate limit") || strings.Contains(text, "quota") || strings.Contains(text, "429"):
		return WrapError(KindRateLimited, err, "rate limiting detected")
	case strings.Contains(text, "timeout") || strings.Contains(text, "deadline"):
		return WrapError(KindTimeout, err, "request timed out")
	case strings.Contains(text, "unauthorized") || strings.Contains(text, "api key") || strings.Contains(text, "401") || strings.Contains(text, "403"):
		return WrapError(KindUnauthorized, err, "authentication failed")
	}
	return WrapError(KindProvider, err, "provider request failed")
}

// IsFatal reports whether err carries a fatal llm classification.
func IsFatal(err error) bool {
	var lerr *Error
	return errors.As(err, &lerr) && lerr.Fatal()
}

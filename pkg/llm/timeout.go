package llm

import (
	"context"
	"time"
)

// TimeoutClient bounds every request with a deadline. It sits inside the
// retry wrapper so each attempt gets a fresh budget rather than sharing one
// deadline across retries.
type TimeoutClient struct {
	inner   Client
	timeout time.Duration
}

// NewTimeoutClient wraps inner with a per-request timeout. A non-positive
// timeout disables the deadline.
func NewTimeoutClient(inner Client, timeout time.Duration) *TimeoutClient {
	return &TimeoutClient{inner: inner, timeout: timeout}
}

// CompleteChat implements Client.
func (c *TimeoutClient) CompleteChat(ctx context.Context, messages []ChatMessage, opts Options) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.inner.CompleteChat(ctx, messages, opts)
}

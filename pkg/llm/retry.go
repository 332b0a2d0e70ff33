package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig defines bounded exponential backoff for retryable failures.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultRetryConfig provides sensible backoff defaults.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:    2,
	InitialDelay:  200 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// RetryClient wraps a Client with retry-on-retryable-error behavior.
// Fatal classifications surface immediately.
type RetryClient struct {
	client Client
	config RetryConfig
}

// NewRetryClient wraps client with the given retry configuration.
func NewRetryClient(client Client, config RetryConfig) *RetryClient {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = DefaultRetryConfig.InitialDelay
	}
	if config.BackoffFactor < 1 {
		config.BackoffFactor = DefaultRetryConfig.BackoffFactor
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	return &RetryClient{client: client, config: config}
}

// CompleteChat implements Client.
func (r *RetryClient) CompleteChat(ctx context.Context, messages []ChatMessage, opts Options) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", WrapError(KindTimeout, ctx.Err(), "canceled while waiting to retry")
			case <-time.After(r.delay(attempt)):
			}
		}

		text, err := r.client.CompleteChat(ctx, messages, opts)
		if err == nil {
			return text, nil
		}
		lastErr = err

		var lerr *Error
		if !errors.As(err, &lerr) || !lerr.Retryable() {
			return "", err
		}
	}

	return "", fmt.Errorf("exhausted %d retries: %w", r.config.MaxRetries, lastErr)
}

func (r *RetryClient) delay(attempt int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attempt-1))
	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}
	if r.config.Jitter {
		d *= 0.5 + rand.Float64()/2
	}
	return time.Duration(d)
}

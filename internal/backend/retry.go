package backend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const (
	maxAttempts       = 3
	initialRetryDelay = time.Second
	maxRetryDelay     = 16 * time.Second
)

// Retryable classifies an error: transport failures and 5xx are transient,
// as are the handful of 4xx statuses that signal backpressure or timeouts.
// Every other client error is final.
func Retryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Kind == KindNetwork {
		return true
	}
	switch apiErr.StatusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// ShouldRetry is a pure function of the error classification and the 0-based
// attempt counter. The budget is three retries.
func ShouldRetry(err error, attempt int) bool {
	if attempt >= maxAttempts {
		return false
	}
	return Retryable(err)
}

// RetryDelay returns the backoff before retrying the given 0-based attempt:
// 1s, 2s, 4s, ... capped at 16s.
func RetryDelay(attempt int) time.Duration {
	if attempt > 30 {
		return maxRetryDelay
	}
	delay := initialRetryDelay << attempt
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// withRetry runs op under the retry policy, waiting out the backoff between
// attempts. The wait is abandoned as soon as ctx is cancelled.
func (c *Client) withRetry(ctx context.Context, name string, op func() error) error {
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil || !ShouldRetry(err, attempt) {
			return err
		}

		delay := c.retryDelay(attempt)
		slog.Warn("Backend call failed, retrying", "op", name, "attempt", attempt, "retryIn", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return &APIError{Kind: KindNetwork, Err: ctx.Err()}
		}
	}
}

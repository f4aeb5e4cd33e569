// Package retry wraps the service's outbound calls, Solana JSON-RPC balance
// reads and Slack posts, with bounded exponential backoff. Both endpoints
// throttle aggressively, so transient faults are retried and everything else
// fails fast.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"
)

// Config bounds one retried call.
type Config struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultConfig suits interactive RPC reads: three attempts within a few
// seconds total.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
	}
}

// Do runs fn until it succeeds, fails with a non-retryable error, or exhausts
// the configured attempts. The last error is wrapped in the exhaustion case.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := calculateBackoff(cfg.BaseBackoff, cfg.MaxBackoff, attempt-1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// IsRetryable classifies an error as transient. Rejections (bad input, bad
// signer, not found) must not be retried; throttling and flaky transport
// should be.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Errors that classify themselves win. slack-go's rate-limit errors
	// implement this.
	var self interface{ Retryable() bool }
	if errors.As(err, &self) {
		return self.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Transports that expose the HTTP status (slack-go server errors).
	var sc interface{ HTTPStatusCode() int }
	if errors.As(err, &sc) {
		switch sc.HTTPStatusCode() {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	// Public Solana RPC endpoints surface throttling and transient faults
	// as message text only.
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"broken pipe",
		"eof",
		"timeout",
		"too many requests",
		"rate limit",
		"service unavailable",
		"temporary failure",
		"node is behind",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// calculateBackoff is base * 2^attempt capped at max, then jittered into
// [0.5x, 1.0x] so concurrent retries spread out.
func calculateBackoff(base, max time.Duration, attempt int) time.Duration {
	backoff := base * time.Duration(1<<uint(attempt))
	if backoff > max {
		backoff = max
	}
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(backoff) * jitter)
}

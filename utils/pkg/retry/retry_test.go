package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetry_DefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.Equal(t, 3, cfg.MaxAttempts)
	require.Equal(t, 500*time.Millisecond, cfg.BaseBackoff)
	require.Equal(t, 5*time.Second, cfg.MaxBackoff)
}

func TestRetry_Do(t *testing.T) {
	t.Parallel()

	fastCfg := Config{
		MaxAttempts: 3,
		BaseBackoff: 10 * time.Millisecond,
		MaxBackoff:  50 * time.Millisecond,
	}

	t.Run("first attempt succeeds", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		err := Do(context.Background(), fastCfg, func() error {
			attempts++
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 1, attempts)
	})

	t.Run("transient error retried until success", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		err := Do(context.Background(), fastCfg, func() error {
			attempts++
			if attempts < 3 {
				return errors.New("connection reset by peer")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, attempts)
	})

	t.Run("exhausted attempts wrap the last error", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		transient := errors.New("rate limit exceeded")
		err := Do(context.Background(), fastCfg, func() error {
			attempts++
			return transient
		})
		require.Error(t, err)
		require.ErrorIs(t, err, transient)
		require.Contains(t, err.Error(), "failed after 3 attempts")
		require.Equal(t, 3, attempts)
	})

	t.Run("non-retryable error returns immediately", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		fatal := errors.New("invalid param: wrong account owner")
		err := Do(context.Background(), fastCfg, func() error {
			attempts++
			return fatal
		})
		require.Equal(t, fatal, err)
		require.Equal(t, 1, attempts)
	})

	t.Run("cancellation stops the backoff wait", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		attempts := 0
		err := Do(ctx, Config{
			MaxAttempts: 5,
			BaseBackoff: time.Hour,
			MaxBackoff:  time.Hour,
		}, func() error {
			attempts++
			cancel()
			return errors.New("connection reset")
		})
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, attempts)
	})
}

type selfClassified struct{ retryable bool }

func (e *selfClassified) Error() string   { return "slack rate limit exceeded, retry after 1s" }
func (e *selfClassified) Retryable() bool { return e.retryable }

type statusCodeErr struct{ code int }

func (e *statusCodeErr) Error() string       { return http.StatusText(e.code) }
func (e *statusCodeErr) HTTPStatusCode() int { return e.code }

func TestRetry_IsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline", context.DeadlineExceeded, false},
		{"self-classified retryable", &selfClassified{retryable: true}, true},
		{"self-classified fatal", &selfClassified{retryable: false}, false},
		{"net timeout", &net.OpError{Op: "read", Err: &timeoutErr{}}, true},
		{"http 429", &statusCodeErr{code: http.StatusTooManyRequests}, true},
		{"http 503", &statusCodeErr{code: http.StatusServiceUnavailable}, true},
		{"http 404", &statusCodeErr{code: http.StatusNotFound}, false},
		{"http 401", &statusCodeErr{code: http.StatusUnauthorized}, false},
		{"rpc node behind", errors.New("rpc error: Node is behind by 157 slots"), true},
		{"too many requests text", errors.New("server responded with 429 Too Many Requests"), true},
		{"connection refused", errors.New("dial tcp 127.0.0.1:8899: connection refused"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"unexpected eof", errors.New("unexpected EOF"), true},
		{"plain rejection", errors.New("pool already initialized"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

type timeoutErr struct{}

func (*timeoutErr) Error() string   { return "i/o timeout" }
func (*timeoutErr) Timeout() bool   { return true }
func (*timeoutErr) Temporary() bool { return true }

func TestRetry_BackoffWithinJitterBounds(t *testing.T) {
	t.Parallel()

	base := 500 * time.Millisecond
	max := 5 * time.Second

	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{1, 500 * time.Millisecond, time.Second},
		{2, time.Second, 2 * time.Second},
		{3, 2 * time.Second, 4 * time.Second},
		// Capped at max before jitter.
		{6, 2500 * time.Millisecond, 5 * time.Second},
	}
	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			got := calculateBackoff(base, max, tt.attempt)
			require.GreaterOrEqual(t, got, tt.min, "attempt %d", tt.attempt)
			require.LessOrEqual(t, got, tt.max, "attempt %d", tt.attempt)
		}
	}
}

func TestRetry_BackoffJitterVaries(t *testing.T) {
	t.Parallel()

	seen := make(map[time.Duration]bool)
	for i := 0; i < 100; i++ {
		seen[calculateBackoff(500*time.Millisecond, 5*time.Second, 2)] = true
	}
	require.Greater(t, len(seen), 5)
}

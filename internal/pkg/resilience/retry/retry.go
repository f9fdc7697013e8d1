// Package retry runs an operation again with exponential backoff when it
// fails. It is a small layer over avast/retry-go that logs every retry.
package retry

import (
	"context"
	"time"

	"github.com/gabapcia/txbatch/internal/pkg/logger"

	retry "github.com/avast/retry-go/v4"
)

// Retry executes operations with retries.
type Retry interface {
	// Execute calls operation until it succeeds, the attempts are used up,
	// the error is not retryable, or ctx is done. operation should be
	// idempotent.
	Execute(ctx context.Context, operation func(ctx context.Context) error) error
}

type config struct {
	attempts    uint
	delay       time.Duration // first backoff step
	maxDelay    time.Duration
	lastErrOnly bool
	retryIf     func(error) bool
}

// Option configures New.
type Option func(*config)

type retrier struct {
	cfg config
}

var _ Retry = (*retrier)(nil)

// New returns a Retry. Defaults: 3 attempts, 1s first delay capped at 5s,
// only the last error returned, every error retried.
func New(opts ...Option) Retry {
	cfg := config{
		attempts:    3,
		delay:       time.Second,
		maxDelay:    5 * time.Second,
		lastErrOnly: true,
		retryIf:     retry.IsRecoverable,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &retrier{cfg: cfg}
}

func (r *retrier) Execute(ctx context.Context, operation func(ctx context.Context) error) error {
	return retry.Do(
		func() error { return operation(ctx) },
		retry.Attempts(r.cfg.attempts),
		retry.Delay(r.cfg.delay),
		retry.MaxDelay(r.cfg.maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(r.cfg.lastErrOnly),
		retry.RetryIf(r.cfg.retryIf),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn(ctx, "attempt failed", "attempt", n+1, "error", err)
		}),
	)
}

// WithAttempts sets the total number of attempts, the first one included.
// Zero retries until success or cancellation.
func WithAttempts(n uint) Option {
	return func(c *config) {
		c.attempts = n
	}
}

// WithDelay sets the first backoff delay; later delays double.
func WithDelay(d time.Duration) Option {
	return func(c *config) {
		c.delay = d
	}
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) Option {
	return func(c *config) {
		c.maxDelay = d
	}
}

// WithLastErrorOnly chooses between returning the last error (true) and all
// attempt errors joined into a retry.Error (false).
func WithLastErrorOnly(b bool) Option {
	return func(c *config) {
		c.lastErrOnly = b
	}
}

// WithRetryIf limits retries to errors for which fn returns true. Other
// errors are returned immediately.
func WithRetryIf(fn func(error) bool) Option {
	return func(c *config) {
		c.retryIf = fn
	}
}

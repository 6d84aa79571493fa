package fetcher

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/goferpkg/gofer/internal/domain"
)

// Retrier re-runs operations that failed with a retryable error, backing
// off exponentially between attempts. Transfer downloads never go through
// it; it serves API lookups and the orchestrator's lock wait, where a
// second attempt is cheap and likely to succeed.
type Retrier struct {
	opts RetrierOptions
}

// RetrierOptions bound the retry loop.
type RetrierOptions struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetrierOptions returns the profile used for API lookups.
func DefaultRetrierOptions() RetrierOptions {
	return RetrierOptions{
		MaxRetries:      3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// NewRetrier creates a Retrier, replacing out-of-range options with the
// defaults.
func NewRetrier(opts RetrierOptions) *Retrier {
	def := DefaultRetrierOptions()
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = def.InitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = def.MaxInterval
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = def.Multiplier
	}
	return &Retrier{opts: opts}
}

func (r *Retrier) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	b.MaxInterval = r.opts.MaxInterval
	b.Multiplier = r.opts.Multiplier
	b.RandomizationFactor = 0.5
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.opts.MaxRetries)), ctx)
}

// Retry runs operation until it succeeds, fails with a non-retryable
// error, or the attempt budget runs out. Only errors wrapped with
// domain.NewRetryableError earn another attempt.
func (r *Retrier) Retry(ctx context.Context, operation func() error) error {
	return backoff.Retry(func() error {
		err := operation()
		if err != nil && !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, r.backoff(ctx))
}

// RetryWithValue is Retry for operations that produce a value. On failure
// the operation's own last error is returned, not the backoff bookkeeping
// wrapper.
func RetryWithValue[T any](ctx context.Context, r *Retrier, operation func() (T, error)) (T, error) {
	var result T
	var lastErr error

	err := backoff.Retry(func() error {
		var err error
		result, err = operation()
		if err == nil {
			return nil
		}
		lastErr = err
		if !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, r.backoff(ctx))

	if err != nil && lastErr != nil {
		return result, lastErr
	}
	return result, err
}

// ShouldRetryStatus reports whether an HTTP status is worth another
// attempt: rate limiting, upstream gateway trouble, and the nonstandard
// 5xx range CDNs emit.
func ShouldRetryStatus(status int) bool {
	switch status {
	case 429, 502, 503, 504:
		return true
	}
	return status >= 520 && status <= 530
}

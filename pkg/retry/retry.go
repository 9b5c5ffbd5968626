// Package retry wraps cenkalti/backoff/v4 with the retry policy used across
// p8fs core: exponential backoff with jitter, capped at 3 attempts, honoring
// the errs.Kind taxonomy (only Transient errors are retried).
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/healer-ai/p8fs/pkg/errs"
)

// Policy configures a retry loop. Zero value yields the package defaults.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy is the shared retry posture: max 3 attempts, exponential
// backoff with jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Do runs fn, retrying on Transient errs.Error values per p. Non-Transient
// errors (and context cancellation) stop the loop immediately via
// backoff.Permanent.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p = DefaultPolicy()
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	bo.MaxElapsedTime = 0 // bounded by attempt count, not elapsed time

	attempts := 0
	wrapped := func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempts >= p.MaxAttempts {
			return backoff.Permanent(err)
		}
		if !errs.Is(err, errs.KindTransient) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(wrapped, backoff.WithContext(bo, ctx))
}

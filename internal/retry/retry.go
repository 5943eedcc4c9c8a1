// Package retry wraps bounded exponential backoff for polling external services.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrGiveUp is returned when every attempt failed.
var ErrGiveUp = errors.New("retry budget exhausted")

// Policy bounds a retry loop.
type Policy struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts uint64
}

// DefaultPolicy is used for tree index polling.
var DefaultPolicy = Policy{Initial: 500 * time.Millisecond, Max: 5 * time.Second, MaxAttempts: 10}

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the budget runs
// out, or ctx is done.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.MaxInterval = p.Max
	eb.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	// WithMaxRetries counts retries, not attempts.
	b := backoff.WithContext(backoff.WithMaxRetries(eb, attempts-1), ctx)

	permanent := false
	err := backoff.Retry(func() error {
		err := op(ctx)
		var perm *backoff.PermanentError
		permanent = errors.As(err, &perm)
		return err
	}, b)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if permanent {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return err
	}
	return errors.Join(ErrGiveUp, err)
}

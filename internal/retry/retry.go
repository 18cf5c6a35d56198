// Package retry re-runs optimistic read-modify-write operations that lost a
// compare-and-swap race.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/xiaot623/agentdir/internal/domain"
)

// Policy bounds the retries of StaleState conflicts.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// OnConflict is called for every lost race, retried or not.
	OnConflict func()
}

// DefaultPolicy retries three times starting at 10ms.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 200 * time.Millisecond}
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Millisecond
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	return b
}

// Do runs op until it succeeds, fails with anything but StaleState, or the
// attempts are used up. Exhaustion surfaces domain.ErrConflict.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	res, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if errors.Is(err, domain.ErrStaleState) {
			if p.OnConflict != nil {
				p.OnConflict()
			}
			return v, err
		}
		return v, backoff.Permanent(err)
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		return res, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if errors.Is(err, domain.ErrStaleState) {
		var zero T
		return zero, domain.NewError(domain.CodeConflict, "concurrent modification persisted after %d attempts", attempts)
	}
	return res, err
}

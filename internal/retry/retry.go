// SPDX-License-Identifier: MPL-2.0

// Package retry runs an operation a bounded number of times, retrying only the
// failures a caller-supplied predicate classifies as transient. It is shared by
// the binary downloader and the module loader so both apply the same policy
// mechanics with different limits.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type (
	// Policy describes how an operation is retried.
	Policy struct {
		// MaxAttempts is the total number of attempts, including the first.
		// Values below 1 are treated as 1.
		MaxAttempts int

		// NewBackOff returns the delay schedule between attempts. A nil value
		// retries immediately.
		NewBackOff func() backoff.BackOff

		// Retryable reports whether err may succeed on another attempt. A nil
		// predicate treats every error as retryable.
		Retryable func(err error) bool

		// OnRetry is called after a failed attempt that will be retried.
		OnRetry func(attempt int, err error)
	}

	// Operation is a single attempt. attempt starts at 1.
	Operation func(ctx context.Context, attempt int) error
)

// Immediate returns a schedule with no delay between attempts.
func Immediate() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

// Exponential returns a short exponential schedule starting at initial and
// capped at max, without a total elapsed-time limit.
func Exponential(initial, maxInterval time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = maxInterval
		b.MaxElapsedTime = 0
		return b
	}
}

// Do runs op until it succeeds, returns a non-retryable error, exhausts
// MaxAttempts, or ctx is done. The returned error is the last error produced
// by op, unwrapped from any backoff bookkeeping, or ctx.Err() when the context
// ended the loop.
func Do(ctx context.Context, p Policy, op Operation) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var schedule backoff.BackOff
	if p.NewBackOff != nil {
		schedule = p.NewBackOff()
	} else {
		schedule = Immediate()
	}
	schedule = backoff.WithContext(backoff.WithMaxRetries(schedule, uint64(maxAttempts-1)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, _ time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
	}

	return backoff.RetryNotify(operation, schedule, notify)
}

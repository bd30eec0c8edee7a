/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package retry runs operations repeatedly according to a back-off policy.
// The broker uses it for datagram retransmission and the agent store for waiting out a busy database.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// IsRetryable defines a func that can tell if error is retryable as opposed to persistent.
type IsRetryable func(error) bool

// RetryableFunc is function that does some work and can be potentially retried.
type RetryableFunc func(ctx context.Context) error

// Policy defines backoff strategy.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// DoWithRetry executes fn with retry according to policy p and with respect to context ctx.
// IsRetryable defines which errors lead to retry attempt (can be nil for any error).
// Notify can be used to receive notification on every retry with error and backoff delay
// (can be nil if no notifications required).
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	b := p.NewBackOff()
	bctx := backoff.WithContext(b, ctx)
	var op backoff.Operation = func() error {
		err := fn(bctx.Context())
		if err != nil &&
			(isRetryable != nil && !isRetryable(err)) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotify(op, bctx, notify)
}

// ConstantBackoffPolicy means repeat up to max times with constant interval delays.
type ConstantBackoffPolicy struct {
	interval    time.Duration
	maxAttempts int
}

// NewConstantBackoffPolicy returns a constant backoff policy with given interval and max retry attempt count.
func NewConstantBackoffPolicy(interval time.Duration, maxRetryAttempts int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{interval, maxRetryAttempts}
}

// NewBackOff implements retry.Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	var bf backoff.BackOff = backoff.NewConstantBackOff(p.interval)
	if p.maxAttempts > 0 {
		bf = backoff.WithMaxRetries(bf, uint64(p.maxAttempts))
	}
	bf.Reset()
	return bf
}

// AttemptsPolicy repeats the operation immediately until it has been called maxAttempts times in total.
// It's intended for operations that do their own waiting (e.g. send a datagram and wait for an acknowledgment).
type AttemptsPolicy struct {
	maxAttempts int
}

// NewAttemptsPolicy returns a policy that allows exactly maxAttempts calls (at least one).
func NewAttemptsPolicy(maxAttempts int) AttemptsPolicy {
	return AttemptsPolicy{maxAttempts}
}

// NewBackOff implements retry.Policy.
func (p AttemptsPolicy) NewBackOff() backoff.BackOff {
	retries := p.maxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	bf := backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(retries))
	bf.Reset()
	return bf
}

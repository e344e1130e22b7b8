// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package waiter provides polling and retry helpers shared across stages.
package waiter

import (
	"context"
	"fmt"
	"math"
	"time"
)

// PollInterval controls the base delay between state checks. Tests
// override this to avoid real sleeps.
var PollInterval = 5 * time.Second

// RetryBaseDelay controls the base duration for exponential backoff on
// throttled calls. Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

const (
	defaultMaxChecks  = 120
	defaultMaxRetries = 5
)

// StateFunc checks a resource once. It returns done=true when the
// resource reached the target state, and a non-nil error when the
// resource failed terminally.
type StateFunc func(ctx context.Context) (done bool, err error)

// Poll invokes check at the given interval until it reports done,
// fails, the context is cancelled, or maxChecks attempts are
// exhausted. A zero interval uses PollInterval; a zero maxChecks uses
// the default (120).
func Poll(ctx context.Context, what string, interval time.Duration, maxChecks int, check StateFunc) error {
	if interval <= 0 {
		interval = PollInterval
	}
	if maxChecks <= 0 {
		maxChecks = defaultMaxChecks
	}

	for attempt := 0; attempt < maxChecks; attempt++ {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	return fmt.Errorf("timed out waiting for %s after %d checks", what, maxChecks)
}

// Retry executes fn and retries with exponential backoff while
// retryable reports the error as transient. The delay starts at
// RetryBaseDelay and doubles each attempt. When maxRetries is 0 the
// default (5) is used. After exhausting retries the last error is
// returned.
func Retry[T any](ctx context.Context, maxRetries int, fn func(ctx context.Context) (T, error), retryable func(error) bool) (T, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil || !retryable(err) || attempt >= maxRetries {
			return v, err
		}

		backoff := time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/burrowhq/burrow/pkg/types"
)

// BackoffPolicy bounds the exponential backoff applied to transient
// failures: base·2^(attempt-1) with full jitter, capped at Max, giving up
// after MaxAttempts.
type BackoffPolicy struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts uint64
}

// DefaultBackoff matches the watchers' reference policy.
var DefaultBackoff = BackoffPolicy{
	Base:        1 * time.Second,
	Max:         60 * time.Second,
	MaxAttempts: 3,
}

// Do runs op under the policy. Errors classified Permanent, Policy,
// Integrity or Fatal propagate immediately without further attempts;
// transient and unclassified errors are retried. The context cancels
// in-between waits.
func Do(ctx context.Context, clock Clock, policy BackoffPolicy, op func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.Base
	exp.MaxInterval = policy.Max
	exp.Multiplier = 2
	exp.RandomizationFactor = 1 // full jitter
	exp.MaxElapsedTime = 0
	exp.Clock = clockAdapter{clock}
	exp.Reset()

	attempts := policy.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !types.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(exp, attempts-1), ctx)
	return backoff.RetryNotifyWithTimer(wrapped, b, nil, &clockTimer{clock: clock, ctx: ctx})
}

// clockAdapter feeds the shared clock into the backoff library.
type clockAdapter struct{ c Clock }

func (a clockAdapter) Now() time.Time { return a.c.Now() }

// clockTimer implements backoff.Timer on top of the shared clock so a fake
// clock skips waits entirely.
type clockTimer struct {
	clock Clock
	ctx   context.Context
	ch    chan time.Time
}

func (t *clockTimer) Start(d time.Duration) {
	t.ch = make(chan time.Time, 1)
	go func(ch chan time.Time) {
		if err := t.clock.Sleep(t.ctx, d); err != nil {
			return // context cancelled; backoff's own ctx select fires
		}
		ch <- t.clock.Now()
	}(t.ch)
}

func (t *clockTimer) Stop() {}

func (t *clockTimer) C() <-chan time.Time { return t.ch }

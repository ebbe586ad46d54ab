// Package wait holds the two blocking primitives the automation is allowed to
// use: fixed sleeps and bounded polling. Neither ever blocks past its budget.
package wait

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrBudgetExhausted is returned by Until when the condition never held.
var ErrBudgetExhausted = errors.New("wait budget exhausted")

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pause is Sleep for call sites that only care about the delay.
func Pause(ctx context.Context, d time.Duration) {
	_ = Sleep(ctx, d)
}

// Condition reports whether polling can stop. A non-nil error aborts polling.
type Condition func(ctx context.Context) (bool, error)

// Until evaluates cond immediately and then every interval until it reports
// true, returns an error, ctx ends, or budget elapses.
func Until(ctx context.Context, interval, budget time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	b := retry.WithMaxDuration(budget, retry.NewConstant(interval))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(ErrBudgetExhausted)
		}
		return nil
	})
	return err
}

// Value polls fn like Until and returns its first successful value. fn
// signals "not yet" by returning ok=false.
func Value[T any](ctx context.Context, interval, budget time.Duration, fn func(ctx context.Context) (T, bool, error)) (T, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	b := retry.WithMaxDuration(budget, retry.NewConstant(interval))
	return retry.DoValue(ctx, b, func(ctx context.Context) (T, error) {
		v, ok, err := fn(ctx)
		if err != nil {
			return v, err
		}
		if !ok {
			return v, retry.RetryableError(ErrBudgetExhausted)
		}
		return v, nil
	})
}

// Package cascade runs an ordered list of independent strategies and stops at
// the first one that succeeds. Every attempt is recorded so callers can log
// which fallback actually did the work.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrExhausted is returned when no strategy succeeded.
var ErrExhausted = errors.New("all strategies failed")

// Strategy is one named way of producing a T.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Attempt records the outcome of a single strategy.
type Attempt struct {
	Strategy string
	Err      error
	Elapsed  time.Duration
}

// Report is the audit trail of one cascade run.
type Report[T any] struct {
	Value    T
	Winner   string
	Attempts []Attempt
}

// Succeeded reports whether some strategy produced a value.
func (r Report[T]) Succeeded() bool { return r.Winner != "" }

// String renders the attempts as "a: err; b: ok".
func (r Report[T]) String() string {
	parts := make([]string, 0, len(r.Attempts))
	for _, a := range r.Attempts {
		if a.Err != nil {
			parts = append(parts, fmt.Sprintf("%s: %v", a.Strategy, a.Err))
		} else {
			parts = append(parts, a.Strategy+": ok")
		}
	}
	return strings.Join(parts, "; ")
}

// Run executes strategies in order. A panic inside a strategy counts as a
// failed attempt. Run stops early when ctx is done.
func Run[T any](ctx context.Context, strategies []Strategy[T]) (Report[T], error) {
	var rep Report[T]
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		start := time.Now()
		v, err := runOne(ctx, s)
		rep.Attempts = append(rep.Attempts, Attempt{Strategy: s.Name, Err: err, Elapsed: time.Since(start)})
		if err == nil {
			rep.Value = v
			rep.Winner = s.Name
			return rep, nil
		}
	}
	return rep, fmt.Errorf("%w: %s", ErrExhausted, rep.String())
}

func runOne[T any](ctx context.Context, s Strategy[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Run(ctx)
}

// Package history answers read-only questions about past decisions, such as
// how many of a user's tasks were rejected in the last thirty days.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable is returned when a lookup could not answer in time.
var ErrUnavailable = errors.New("history unavailable")

// Lookup counts a subject's past decisions for one engine. An empty tiers
// slice counts every decision since the given time.
type Lookup interface {
	CountOutcomes(ctx context.Context, subjectID, engine string, tiers []string, since time.Time) (int, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, subjectID, engine string, tiers []string, since time.Time) (int, error)

func (f LookupFunc) CountOutcomes(ctx context.Context, subjectID, engine string, tiers []string, since time.Time) (int, error) {
	return f(ctx, subjectID, engine, tiers, since)
}

type timeoutLookup struct {
	next    Lookup
	timeout time.Duration
}

// WithTimeout bounds every call to next. A call that outlives the timeout
// returns ErrUnavailable even if next ignores its context; so does a call
// that panics.
func WithTimeout(next Lookup, timeout time.Duration) Lookup {
	return &timeoutLookup{next: next, timeout: timeout}
}

type countResult struct {
	n   int
	err error
}

func (l *timeoutLookup) CountOutcomes(ctx context.Context, subjectID, engine string, tiers []string, since time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	done := make(chan countResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- countResult{err: fmt.Errorf("lookup panicked: %v", r)}
			}
		}()
		n, err := l.next.CountOutcomes(ctx, subjectID, engine, tiers, since)
		done <- countResult{n: n, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, r.err)
		}
		return r.n, nil
	case <-ctx.Done():
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	}
}

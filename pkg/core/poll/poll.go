// Package poll waits on long-running remote operations.
package poll

import (
	"context"
	"errors"
	"time"
)

// DefaultInterval is the delay between status queries.
const DefaultInterval = 10 * time.Second

// ErrNoResult is returned when an operation reaches a terminal state without
// carrying a result or an error.
var ErrNoResult = errors.New("Operation finished but no response was returned.")

// Poller repeatedly refreshes an operation until Terminal reports it done.
type Poller[T any] struct {
	// Interval between queries. Zero uses DefaultInterval.
	Interval time.Duration

	// Poll fetches a fresh snapshot of op. A returned error ends the wait.
	Poll func(ctx context.Context, op T) (T, error)

	// Done reports whether op is terminal. A terminal op with a failure
	// returns the failure as err; a terminal op without a usable result
	// returns ErrNoResult.
	Done func(op T) (bool, error)

	// OnPoll, when set, is called after every status query.
	OnPoll func(op T, attempt int)
}

// Wait queries op immediately, then once per interval, until it is
// terminal, a query fails, or ctx is cancelled. Cancellation stops the
// timer before any further query is issued.
func (p *Poller[T]) Wait(ctx context.Context, op T) (T, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	var zero T

	timer := time.NewTimer(0)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-timer.C:
		}

		next, err := p.Poll(ctx, op)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, ctxErr
			}
			return zero, err
		}
		op = next
		if p.OnPoll != nil {
			p.OnPoll(op, attempt)
		}

		done, err := p.Done(op)
		if err != nil {
			return zero, err
		}
		if done {
			return op, nil
		}
		timer.Reset(interval)
	}
}

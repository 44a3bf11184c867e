// Package retry generates unique identifiers with a bounded number of attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is matched by errors.Is on every ExhaustedError.
var ErrExhausted = errors.New("retry attempts exhausted")

// ExhaustedError reports that every candidate collided.
type ExhaustedError struct {
	Attempts int
	Last     string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("no unique value after %d attempts (last candidate %q)", e.Attempts, e.Last)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Policy bounds the attempts. Backoff doubles after every collision.
type Policy struct {
	Attempts int
	Backoff  time.Duration
	// Sleep is overridable in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy is three attempts with 10/20/40ms waits.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Backoff: 10 * time.Millisecond}
}

// Generator produces a candidate value.
type Generator[T any] func() (T, error)

// Exists reports whether a candidate is already taken.
type Exists[T any] func(ctx context.Context, candidate T) (bool, error)

// Unique draws candidates until exists reports false or the policy runs out.
func Unique[T any](ctx context.Context, policy Policy, generate Generator[T], exists Exists[T]) (T, error) {
	var zero T
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var last T
	wait := policy.Backoff
	for attempt := 1; attempt <= attempts; attempt++ {
		candidate, err := generate()
		if err != nil {
			return zero, fmt.Errorf("generate candidate: %w", err)
		}
		last = candidate

		taken, err := exists(ctx, candidate)
		if err != nil {
			return zero, fmt.Errorf("check candidate: %w", err)
		}
		if !taken {
			return candidate, nil
		}

		if wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return zero, err
			}
			wait *= 2
		}
	}
	return zero, &ExhaustedError{Attempts: attempts, Last: fmt.Sprint(last)}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

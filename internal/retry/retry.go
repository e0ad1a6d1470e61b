package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 5 * time.Second
)

// ErrExhausted is matched by every error returned after the last attempt failed.
var ErrExhausted = errors.New("retry exhausted")

// ExhaustedError preserves the most recent underlying failure.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// FailureHook observes a failed attempt before the backoff delay. delay is zero
// for the final attempt.
type FailureHook func(attempt int, err error, delay time.Duration)

// Policy configures Do. Zero values fall back to the package defaults.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Sleep       SleepFunc
	OnFailure   FailureHook
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// Attempts returns the effective attempt cap, defaults applied.
func (p Policy) Attempts() int {
	return p.normalized().MaxAttempts
}

// Delay returns the wait inserted after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay * time.Duration(attempt)
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Delays lists the waits between attempts 1..MaxAttempts-1.
func Delays(p Policy) []time.Duration {
	p = p.normalized()
	out := make([]time.Duration, 0, p.MaxAttempts-1)
	for k := 1; k < p.MaxAttempts; k++ {
		out = append(out, p.Delay(k))
	}
	return out
}

// Do invokes op until it succeeds or MaxAttempts is reached. The delay between
// attempt k and k+1 is min(BaseDelay*k, MaxDelay). op may run more than once
// for the same logical unit of work.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	p = p.normalized()
	var zero T
	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last == nil {
				last = err
			}
			return zero, &ExhaustedError{Attempts: attempt - 1, Last: last}
		}
		value, err := op(ctx, attempt)
		if err == nil {
			return value, nil
		}
		last = err
		if attempt == p.MaxAttempts {
			if p.OnFailure != nil {
				p.OnFailure(attempt, err, 0)
			}
			break
		}
		delay := p.Delay(attempt)
		if p.OnFailure != nil {
			p.OnFailure(attempt, err, delay)
		}
		if err := p.Sleep(ctx, delay); err != nil {
			return zero, &ExhaustedError{Attempts: attempt, Last: fmt.Errorf("%w (backoff interrupted: %v)", last, err)}
		}
	}
	return zero, &ExhaustedError{Attempts: p.MaxAttempts, Last: last}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

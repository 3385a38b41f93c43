package engine

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy holds the backoff parameters of the retry driver.
type RetryPolicy struct {
	// InitialWait is the delay after the first failed attempt.
	InitialWait time.Duration

	// Multiplier scales the delay after each further failure.
	Multiplier float64

	// MaxWait caps the delay.
	MaxWait time.Duration

	// PollInterval is how often a waiting task checks for cancellation.
	PollInterval time.Duration
}

// DefaultRetryPolicy returns the stock backoff parameters.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialWait:  time.Second,
		Multiplier:   2,
		MaxWait:      100 * time.Second,
		PollInterval: 2 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.InitialWait <= 0 {
		p.InitialWait = def.InitialWait
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxWait < p.InitialWait {
		p.MaxWait = p.InitialWait
	}
	if p.PollInterval <= 0 {
		p.PollInterval = def.PollInterval
	}
	return p
}

// Backoff returns the delay sequence for a task allowed maxRetries retries.
// Next reports stop once every retry has been handed a delay.
func (p RetryPolicy) Backoff(maxRetries int) retry.Backoff {
	p = p.normalized()
	if maxRetries < 0 {
		maxRetries = 0
	}

	next := p.InitialWait
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		cur := next
		grown := time.Duration(float64(next) * p.Multiplier)
		if grown <= 0 || grown > p.MaxWait {
			// overflow or cap
			grown = p.MaxWait
		}
		next = grown
		return cur, false
	})

	return retry.WithMaxRetries(uint64(maxRetries), retry.WithCappedDuration(p.MaxWait, b))
}

// sleep blocks for d in steps of at most poll, returning early once stop
// reports true or done is closed. It reports whether the full delay passed.
func sleep(ctx context.Context, d, poll time.Duration, stop func() bool) bool {
	deadline := time.Now().Add(d)
	for !stop() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		step := min(poll, remaining)

		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
	return false
}

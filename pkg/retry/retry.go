// Package retry runs an operation again after errors a caller marks as
// transient, backing off exponentially with jitter. The matching engine uses
// it for claim conflicts; the Postgres adapters use it for dropped
// connections on idempotent reads.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// ErrExhausted is joined to the last error when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy configures a Retrier. Zero numeric fields take the defaults in
// brackets.
type Policy struct {
	// MaxAttempts counts the first call [3].
	MaxAttempts int
	// InitialDelay precedes the first retry [100ms].
	InitialDelay time.Duration
	// MaxDelay caps the backoff [30s].
	MaxDelay time.Duration
	// Multiplier grows the delay per attempt [2].
	Multiplier float64
	// Jitter spreads each delay by up to this fraction either way.
	Jitter float64

	// RetryIf picks the errors worth another attempt. Required.
	RetryIf func(error) bool
	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// ClaimPolicy is tuned for optimistic claim conflicts: a few fast attempts
// with wide jitter so competing requesters spread out.
func ClaimPolicy(retryIf func(error) bool) Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2,
		Jitter:       0.5,
		RetryIf:      retryIf,
	}
}

// DatabasePolicy is tuned for idempotent reads that hit a transient
// connection failure.
func DatabasePolicy(retryIf func(error) bool) Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		Jitter:       0.05,
		RetryIf:      retryIf,
	}
}

// Retrier is safe for concurrent use.
type Retrier struct {
	p Policy
}

// New fills the zero fields of p with defaults. A nil RetryIf retries nothing.
func New(p Policy) *Retrier {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	} else if p.InitialDelay == 0 {
		p.InitialDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = 0
	}
	if p.RetryIf == nil {
		p.RetryIf = func(error) bool { return false }
	}
	return &Retrier{p: p}
}

// Do calls op until it succeeds, fails with an error RetryIf rejects, or the
// attempts run out. In the last case the error wraps ErrExhausted and the
// final failure. A cancelled ctx ends the loop with the last failure, or with
// ctx.Err() if op never ran.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := op(ctx)
		switch {
		case err == nil:
			return nil
		case !r.p.RetryIf(err):
			return err
		case attempt >= r.p.MaxAttempts:
			return errors.Join(ErrExhausted, err)
		}
		last = err

		wait := r.backoff(attempt)
		if r.p.OnRetry != nil {
			r.p.OnRetry(attempt, err, wait)
		}
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return last
			case <-t.C:
			}
		}
	}
}

// backoff is InitialDelay * Multiplier^(attempt-1), capped, then jittered.
func (r *Retrier) backoff(attempt int) time.Duration {
	d := float64(r.p.InitialDelay) * math.Pow(r.p.Multiplier, float64(attempt-1))
	d = math.Min(d, float64(r.p.MaxDelay))
	if r.p.Jitter > 0 {
		d *= 1 + r.p.Jitter*(2*rand.Float64()-1)
	}
	return time.Duration(math.Max(d, 0))
}

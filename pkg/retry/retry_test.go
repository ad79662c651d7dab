package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConflict = errors.New("claim conflict")

func isConflict(err error) bool { return errors.Is(err, errConflict) }

// fast returns a policy that retries conflicts with 1ms waits.
func fast(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, RetryIf: isConflict}
}

func TestRetriesUntilSuccess(t *testing.T) {
	p := fast(3)
	var retried []int
	p.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	calls := 0
	err := New(p).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errConflict
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestExhaustion(t *testing.T) {
	calls := 0
	err := New(fast(4)).Do(context.Background(), func(context.Context) error {
		calls++
		return errConflict
	})

	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errConflict)
}

func TestRejectedErrorStopsImmediately(t *testing.T) {
	plain := errors.New("validation failed")
	calls := 0
	err := New(fast(5)).Do(context.Background(), func(context.Context) error { calls++; return plain })
	assert.Same(t, plain, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = New(Policy{}).Do(context.Background(), func(context.Context) error { calls++; return errConflict })
	assert.Same(t, errConflict, err, "no RetryIf retries nothing")
	assert.Equal(t, 1, calls)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(fast(3)).Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	ctx, cancel = context.WithCancel(context.Background())
	p := fast(3)
	p.InitialDelay, p.MaxDelay = time.Hour, time.Hour
	p.OnRetry = func(int, error, time.Duration) { cancel() }
	err = New(p).Do(ctx, func(context.Context) error { return errConflict })
	assert.Same(t, errConflict, err, "cancel during the wait returns the last failure")
}

func TestPresets(t *testing.T) {
	claim := ClaimPolicy(isConflict)
	claim.MaxAttempts = 5
	calls := 0
	err := New(claim).Do(context.Background(), func(context.Context) error { calls++; return errConflict })
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 5, calls)

	db := DatabasePolicy(isConflict)
	assert.Equal(t, 3, db.MaxAttempts)
	calls = 0
	err = New(db).Do(context.Background(), func(context.Context) error { calls++; return errors.New("syntax error") })
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffIsCapped(t *testing.T) {
	r := New(Policy{InitialDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond, Multiplier: 2})
	assert.Equal(t, 10*time.Millisecond, r.backoff(1))
	assert.Equal(t, 20*time.Millisecond, r.backoff(2))
	assert.Equal(t, 40*time.Millisecond, r.backoff(3))
	assert.Equal(t, 40*time.Millisecond, r.backoff(6))

	j := New(Policy{InitialDelay: 100 * time.Millisecond, Jitter: 0.5})
	for i := 0; i < 50; i++ {
		d := j.backoff(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStore = errors.New("history store unavailable")

func fail(context.Context) error { return errStore }
func ok(context.Context) error   { return nil }

// frozen returns a breaker whose clock only moves when the test says so.
func frozen(s Settings) (*CircuitBreaker, *time.Time) {
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	cb := New(s)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []string
	cb, now := frozen(Settings{
		Name:        "history",
		MaxFailures: 2,
		CloseAfter:  1,
		Cooldown:    10 * time.Second,
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errStore)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.ErrorIs(t, cb.Execute(ctx, fail), errStore)
	assert.Equal(t, StateClosed, cb.State(), "a success resets the streak")

	assert.ErrorIs(t, cb.Execute(ctx, fail), errStore)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	*now = now.Add(11 * time.Second)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)

	counts := cb.Counts()
	assert.Equal(t, 5, counts.Requests, "rejected calls are not counted")
	assert.Equal(t, 3, counts.TotalFailures)
	assert.Equal(t, 2, counts.TotalSuccesses)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb, now := frozen(Settings{MaxFailures: 1, Cooldown: time.Second})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())
	*now = now.Add(2 * time.Second)
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen, "cool-down restarts")
}

func TestHalfOpenAdmitsLimitedTrials(t *testing.T) {
	cb, now := frozen(Settings{MaxFailures: 1, CloseAfter: 2, Cooldown: time.Second, HalfOpenCalls: 1})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	*now = now.Add(2 * time.Second)

	err := cb.Execute(ctx, func(ctx context.Context) error {
		assert.ErrorIs(t, cb.Execute(ctx, ok), ErrTooManyRequests)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, cb.State(), "one success is not enough")
}

func TestIsFailureFiltersErrors(t *testing.T) {
	notFound := errors.New("no prior sessions")
	cb := New(Settings{
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return !errors.Is(err, notFound) },
	})
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return notFound }), notFound)
	}
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 3, cb.Counts().TotalSuccesses)
}

func TestHistoryStoreBreaker(t *testing.T) {
	cb := HistoryStoreBreaker(nil)
	assert.Equal(t, "session-history", cb.Name())

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	}
	assert.Equal(t, StateClosed, cb.State(), "caller cancellations are not store failures")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	assert.Equal(t, StateOpen, cb.State())
}

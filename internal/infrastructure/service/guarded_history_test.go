package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/profile"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/circuitbreaker"
)

type scriptedHistory struct {
	calls int
	err   error
	block bool
}

func (s *scriptedHistory) PriorSessions(ctx context.Context, _, _ string, _ time.Time) ([]profile.SessionRating, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return []profile.SessionRating{{SessionID: "s-1", RatingByA: 5, RatingByB: 4}}, nil
}

func TestGuardedHistoryPassesThrough(t *testing.T) {
	store := &scriptedHistory{}
	g := NewGuardedHistory(store, nil, 0, nil)

	got, err := g.PriorSessions(context.Background(), "a", "b", time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, shared.Rating(5), got[0].RatingByA)
	assert.Equal(t, circuitbreaker.StateClosed, g.BreakerState())
}

func TestGuardedHistoryOpensAfterFailures(t *testing.T) {
	store := &scriptedHistory{err: errors.New("connection refused")}
	breaker := circuitbreaker.New(circuitbreaker.Settings{Name: "test", MaxFailures: 2, Cooldown: time.Hour})
	g := NewGuardedHistory(store, breaker, time.Second, nil)

	for i := 0; i < 2; i++ {
		_, err := g.PriorSessions(context.Background(), "a", "b", time.Time{})
		require.Error(t, err)
		assert.True(t, shared.IsInfrastructure(err))
	}
	assert.Equal(t, circuitbreaker.StateOpen, g.BreakerState())

	_, err := g.PriorSessions(context.Background(), "a", "b", time.Time{})
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.True(t, shared.IsInfrastructure(err))
	assert.Equal(t, 2, store.calls, "open breaker must not reach the store")
	assert.Equal(t, 2, g.BreakerCounts().TotalFailures)
}

func TestGuardedHistoryTimesOut(t *testing.T) {
	store := &scriptedHistory{block: true}
	g := NewGuardedHistory(store, nil, 20*time.Millisecond, nil)

	start := time.Now()
	_, err := g.PriorSessions(context.Background(), "a", "b", time.Time{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/queue"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/timeutil"
)

var t0 = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

func newBackend(t *testing.T) (*QueueBackend, *timeutil.ManualClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := timeutil.NewManualClock(t0)
	return NewQueueBackend(Wrap(rdb, DefaultConfig()), clock), clock
}

func entry(user, version string, st queue.SessionType) queue.Entry {
	return queue.Entry{
		Request: queue.MatchingRequest{
			UserID:      user,
			SessionType: st,
			MaxDuration: 30,
			Urgency:     queue.UrgencyMedium,
		},
		EnqueuedAt: t0,
		Version:    version,
	}
}

func TestQueueBackend_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t)

	require.NoError(t, b.Put(ctx, entry("alice", "v1", queue.SessionLearning)))

	got, err := b.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Version)
	assert.Equal(t, queue.SessionLearning, got.Request.SessionType)
	assert.True(t, got.EnqueuedAt.Equal(t0))

	// Upsert keeps one entry per user.
	require.NoError(t, b.Put(ctx, entry("alice", "v2", queue.SessionTeaching)))
	all, err := b.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "v2", all[0].Version)

	ok, err := b.Delete(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Delete(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = b.Get(ctx, "alice")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestQueueBackend_DeletePair(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t)

	require.NoError(t, b.Put(ctx, entry("alice", "a1", queue.SessionLearning)))
	require.NoError(t, b.Put(ctx, entry("bob", "b1", queue.SessionTeaching)))

	err := b.DeletePair(ctx, queue.Claim{UserID: "alice", Version: "a1"}, queue.Claim{UserID: "bob", Version: "stale"})
	assert.ErrorIs(t, err, shared.ErrConflict)

	all, err := b.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2, "a failed claim must not remove anything")

	require.NoError(t, b.DeletePair(ctx, queue.Claim{UserID: "alice", Version: "a1"}, queue.Claim{UserID: "bob", Version: "b1"}))
	all, err = b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	// The second claimant loses.
	err = b.DeletePair(ctx, queue.Claim{UserID: "carol"}, queue.Claim{UserID: "bob", Version: "b1"})
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestQueueBackend_DeletePairUnqueuedRequester(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t)
	require.NoError(t, b.Put(ctx, entry("bob", "b1", queue.SessionTeaching)))

	require.NoError(t, b.DeletePair(ctx, queue.Claim{UserID: "alice"}, queue.Claim{UserID: "bob", Version: "b1"}))
	_, err := b.Get(ctx, "bob")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestQueueBackend_DeleteIfVersion(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t)
	require.NoError(t, b.Put(ctx, entry("alice", "v2", queue.SessionLearning)))

	ok, err := b.DeleteIfVersion(ctx, "alice", "v1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.DeleteIfVersion(ctx, "alice", "v2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQueueBackend_Claiming(t *testing.T) {
	ctx := context.Background()
	b, clock := newBackend(t)

	ok, err := b.MarkClaiming(ctx, "alice", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.MarkClaiming(ctx, "alice", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	set, err := b.Claiming(ctx)
	require.NoError(t, err)
	assert.Contains(t, set, "alice")

	clock.Advance(6 * time.Second)
	set, err = b.Claiming(ctx)
	require.NoError(t, err)
	assert.NotContains(t, set, "alice")

	ok, err = b.MarkClaiming(ctx, "alice", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.ReleaseClaiming(ctx, "alice"))
	set, err = b.Claiming(ctx)
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestQueueBackend_PutIfAbsent(t *testing.T) {
	ctx := context.Background()
	b, clock := newBackend(t)

	ok, err := b.PutIfAbsent(ctx, entry("alice", "a1", queue.SessionLearning))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.PutIfAbsent(ctx, entry("alice", "a2", queue.SessionLearning))
	require.NoError(t, err)
	assert.False(t, ok, "existing entry wins")
	got, err := b.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.Version)

	require.NoError(t, b.MarkLeft(ctx, "bob", time.Minute))
	ok, err = b.PutIfAbsent(ctx, entry("bob", "b1", queue.SessionTeaching))
	require.NoError(t, err)
	assert.False(t, ok, "left marker blocks the restore")

	clock.Advance(2 * time.Minute)
	ok, err = b.PutIfAbsent(ctx, entry("bob", "b1", queue.SessionTeaching))
	require.NoError(t, err)
	assert.True(t, ok)
	all, err := b.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// A fresh join clears the marker.
	require.NoError(t, b.MarkLeft(ctx, "carol", time.Minute))
	require.NoError(t, b.Put(ctx, entry("carol", "c1", queue.SessionTeaching)))
	_, err = b.Delete(ctx, "carol")
	require.NoError(t, err)
	ok, err = b.PutIfAbsent(ctx, entry("carol", "c1", queue.SessionTeaching))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKeysShareHashTag(t *testing.T) {
	k := NewKeys("skillsync")
	for _, key := range []string{k.Entry("alice"), k.Index(), k.Claiming(), k.Left(), k.Hours(), k.ServiceTimes()} {
		assert.True(t, strings.HasPrefix(key, "{skillsync:queue}:"), key)
	}
}

func TestQueueBackend_Stats(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t)

	require.NoError(t, b.RecordEnqueue(ctx, t0))
	require.NoError(t, b.RecordEnqueue(ctx, t0.Add(time.Minute)))
	require.NoError(t, b.RecordEnqueue(ctx, t0.Add(3*time.Hour)))
	hours, err := b.EnqueueHistogram(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), hours[10])
	assert.Equal(t, int64(1), hours[13])

	for i := 0; i < maxServiceSamples+10; i++ {
		require.NoError(t, b.RecordServiceTime(ctx, time.Minute))
	}
	samples, err := b.ServiceTimes(ctx)
	require.NoError(t, err)
	assert.Len(t, samples, maxServiceSamples)
	assert.Equal(t, time.Minute, samples[0])
}

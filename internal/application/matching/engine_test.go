package matching_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/application/matching"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/compatibility"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/profile"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/queue"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/messaging"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/persistence/memory"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/timeutil"
)

// Monday, so the weekday schedules below overlap.
var t0 = time.Date(2026, time.March, 2, 14, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recorder) handle(e shared.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recorder) ofType(t shared.EventType) []shared.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shared.Event
	for _, e := range r.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

type failingSessions struct{ calls int32 }

func (f *failingSessions) CreateSession(context.Context, string, string, queue.SessionType) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return "", errors.New("insert into sessions: connection reset")
}

// leaveThenFail simulates users leaving while their session is being
// created, and the creation then failing.
type leaveThenFail struct {
	engine  *matching.Engine
	leavers []string
}

func (l *leaveThenFail) CreateSession(ctx context.Context, _, _ string, _ queue.SessionType) (string, error) {
	for _, id := range l.leavers {
		if err := l.engine.RemoveFromQueue(ctx, id); err != nil {
			return "", err
		}
	}
	return "", errors.New("insert into sessions: connection reset")
}

type fixture struct {
	engine   *matching.Engine
	store    *queue.Store
	clock    *timeutil.ManualClock
	profiles *memory.ProfileRepository
	sessions *memory.SessionStore
	events   *recorder
}

func newFixture(t *testing.T, sessions matching.SessionCreator) *fixture {
	t.Helper()
	clock := timeutil.NewManualClock(t0)
	store := queue.NewStore(memory.NewQueueBackend(clock), queue.DefaultPolicy(), queue.WithClock(clock))
	profiles := memory.NewProfileRepository()
	sessionStore := memory.NewSessionStore()
	if sessions == nil {
		sessions = sessionStore
	}

	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{})
	t.Cleanup(func() { _ = bus.Close() })
	rec := &recorder{}
	require.NoError(t, bus.SubscribeAll(rec.handle))

	scorer := compatibility.NewScorer(compatibility.DefaultWeights(), compatibility.WithClock(clock))
	engine := matching.NewEngine(store, profiles, sessions, scorer, bus, matching.DefaultConfig())

	return &fixture{engine: engine, store: store, clock: clock, profiles: profiles, sessions: sessionStore, events: rec}
}

func person(id, skillName string, level int) *profile.Profile {
	return &profile.Profile{
		UserID: id,
		Skills: []profile.Skill{{Name: skillName, Level: shared.SkillLevel(level)}},
		Preferences: &profile.Preferences{
			CommunicationStyle: profile.StyleCasual,
			Languages:          []string{"en"},
			MaxSessionDuration: 60,
			Timezone:           "America/New_York",
			Availability: profile.WeeklySchedule{
				time.Monday: {{Start: "09:00", End: "17:00"}},
			},
		},
	}
}

func (f *fixture) add(t *testing.T, p *profile.Profile, st queue.SessionType, u queue.Urgency) queue.MatchingRequest {
	t.Helper()
	require.NoError(t, f.profiles.Save(context.Background(), p))
	req := queue.MatchingRequest{
		UserID:          p.UserID,
		PreferredSkills: []string{p.Skills[0].Name},
		SessionType:     st,
		MaxDuration:     60,
		Urgency:         u,
	}
	_, err := f.engine.AddToQueue(context.Background(), req)
	require.NoError(t, err)
	return req
}

func TestFindMatch_LearnerMeetsMentor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.add(t, person("mentor", "JavaScript", 4), queue.SessionTeaching, queue.UrgencyMedium)
	f.clock.Advance(2 * time.Minute)
	req := f.add(t, person("learner", "JavaScript", 2), queue.SessionLearning, queue.UrgencyMedium)

	m, err := f.engine.FindMatch(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Equal(t, "learner", m.UserA)
	assert.Equal(t, "mentor", m.UserB)
	assert.Equal(t, queue.SessionLearning, m.SessionType)
	assert.Greater(t, m.Score.Total, 0.8)
	assert.NotEmpty(t, m.SessionID)

	for _, id := range []string{"learner", "mentor"} {
		st, err := f.engine.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, st, "%s must leave the queue", id)
	}

	sessions := f.sessions.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, m.SessionID, sessions[0].ID)

	found := f.events.ofType(shared.EventMatchFound)
	require.Len(t, found, 1)
	assert.Equal(t, "mentor", found[0].Payload()["user_b"])
	assert.Len(t, f.events.ofType(shared.EventQueueLeft), 2)

	stats, err := f.engine.GetQueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 2, stats.ServiceSamples)
	assert.Equal(t, time.Minute, stats.AverageServiceTime)
}

func TestFindMatch_EmptyPool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	req := f.add(t, person("learner", "Go", 2), queue.SessionLearning, queue.UrgencyHigh)

	before, err := f.engine.GetStatus(ctx, "learner")
	require.NoError(t, err)

	m, err := f.engine.FindMatch(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, m)

	after, err := f.engine.GetStatus(ctx, "learner")
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, before.Position, after.Position)
	assert.Equal(t, before.EnqueuedAt, after.EnqueuedAt)
}

func TestFindMatch_RejectsBelowThresholds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	// No shared skill: skill component is far below its gate.
	f.add(t, person("rustacean", "Rust", 4), queue.SessionTeaching, queue.UrgencyHigh)

	// Shared skill but disjoint availability.
	night := person("night-owl", "Go", 4)
	night.Preferences.Availability = profile.WeeklySchedule{time.Saturday: {{Start: "22:00", End: "23:30"}}}
	f.add(t, night, queue.SessionTeaching, queue.UrgencyHigh)

	req := f.add(t, person("learner", "Go", 2), queue.SessionLearning, queue.UrgencyMedium)

	m, err := f.engine.FindMatch(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, m)

	stats, err := f.engine.GetQueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Empty(t, f.events.ofType(shared.EventMatchFound))
}

func TestFindMatch_PrefersBestScoreOverPriority(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.add(t, person("peer", "Go", 3), queue.SessionTeaching, queue.UrgencyHigh)
	f.add(t, person("expert", "Go", 4), queue.SessionTeaching, queue.UrgencyLow)
	req := f.add(t, person("learner", "Go", 2), queue.SessionLearning, queue.UrgencyMedium)

	m, err := f.engine.FindMatch(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "expert", m.UserB)

	st, err := f.engine.GetStatus(ctx, "peer")
	require.NoError(t, err)
	assert.NotNil(t, st)
}

func TestFindMatch_IncompatibleTypesAreIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.add(t, person("other-learner", "Go", 4), queue.SessionLearning, queue.UrgencyHigh)
	req := f.add(t, person("learner", "Go", 2), queue.SessionLearning, queue.UrgencyMedium)

	m, err := f.engine.FindMatch(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestFindMatch_RequesterNotQueued(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.add(t, person("mentor", "Go", 4), queue.SessionTeaching, queue.UrgencyMedium)
	learner := person("learner", "Go", 2)
	require.NoError(t, f.profiles.Save(ctx, learner))

	m, err := f.engine.FindMatch(ctx, queue.MatchingRequest{
		UserID: "learner", SessionType: queue.SessionLearning, MaxDuration: 60, Urgency: queue.UrgencyLow,
	})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "mentor", m.UserB)
	// Only the candidate left the queue.
	assert.Len(t, f.events.ofType(shared.EventQueueLeft), 1)
}

func TestFindMatch_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.engine.FindMatch(ctx, queue.MatchingRequest{UserID: "x", SessionType: "pairing", MaxDuration: 30, Urgency: queue.UrgencyLow})
	assert.True(t, shared.IsValidation(err))

	_, err = f.engine.FindMatch(ctx, queue.MatchingRequest{UserID: "x", SessionType: queue.SessionLearning, MaxDuration: 0, Urgency: queue.UrgencyLow})
	assert.True(t, shared.IsValidation(err))

	_, err = f.engine.FindMatch(ctx, queue.MatchingRequest{UserID: "ghost", SessionType: queue.SessionLearning, MaxDuration: 30, Urgency: queue.UrgencyLow})
	assert.True(t, shared.IsNotFound(err))
}

func TestFindMatch_SkipsCandidateWithoutProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.engine.AddToQueue(ctx, queue.MatchingRequest{
		UserID: "no-profile", SessionType: queue.SessionTeaching, MaxDuration: 60, Urgency: queue.UrgencyHigh,
	})
	require.NoError(t, err)
	req := f.add(t, person("learner", "Go", 2), queue.SessionLearning, queue.UrgencyMedium)

	m, err := f.engine.FindMatch(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestFindMatch_SessionFailureRestoresBothEntries(t *testing.T) {
	ctx := context.Background()
	failing := &failingSessions{}
	f := newFixture(t, failing)

	f.add(t, person("mentor", "Go", 4), queue.SessionTeaching, queue.UrgencyMedium)
	req := f.add(t, person("learner", "Go", 2), queue.SessionLearning, queue.UrgencyMedium)

	mentorBefore, err := f.store.Get(ctx, "mentor")
	require.NoError(t, err)
	learnerBefore, err := f.store.Get(ctx, "learner")
	require.NoError(t, err)

	m, err := f.engine.FindMatch(ctx, req)
	assert.Nil(t, m)
	require.Error(t, err)
	assert.True(t, shared.IsInfrastructure(err))
	assert.ErrorIs(t, err, shared.ErrSessionCreate)
	assert.Equal(t, int32(1), atomic.LoadInt32(&failing.calls))

	mentorAfter, err := f.store.Get(ctx, "mentor")
	require.NoError(t, err)
	assert.Equal(t, mentorBefore, mentorAfter)
	learnerAfter, err := f.store.Get(ctx, "learner")
	require.NoError(t, err)
	assert.Equal(t, learnerBefore, learnerAfter)

	assert.Empty(t, f.events.ofType(shared.EventMatchFound))
}

func TestFindMatch_SessionFailureKeepsLeaversOut(t *testing.T) {
	ctx := context.Background()
	sessions := &leaveThenFail{leavers: []string{"learner"}}
	f := newFixture(t, sessions)
	sessions.engine = f.engine

	f.add(t, person("mentor", "Go", 4), queue.SessionTeaching, queue.UrgencyMedium)
	req := f.add(t, person("learner", "Go", 2), queue.SessionLearning, queue.UrgencyMedium)

	m, err := f.engine.FindMatch(ctx, req)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, shared.ErrSessionCreate)

	status, err := f.engine.GetStatus(ctx, "learner")
	require.NoError(t, err)
	assert.Nil(t, status, "a user who left mid-claim stays out")

	status, err = f.engine.GetStatus(ctx, "mentor")
	require.NoError(t, err)
	assert.NotNil(t, status, "the partner is restored")
}

func TestFindMatch_ConcurrentCallersSingleCandidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.add(t, person("mentor", "Go", 4), queue.SessionTeaching, queue.UrgencyMedium)

	const n = 24
	reqs := make([]queue.MatchingRequest, n)
	for i := range reqs {
		reqs[i] = f.add(t, person(fmt.Sprintf("learner-%02d", i), "Go", 2), queue.SessionLearning, queue.UrgencyMedium)
	}

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		mu      sync.Mutex
		matches []*matching.Match
	)
	for _, req := range reqs {
		wg.Add(1)
		go func(req queue.MatchingRequest) {
			defer wg.Done()
			<-start
			m, err := f.engine.FindMatch(ctx, req)
			assert.NoError(t, err)
			if m != nil {
				mu.Lock()
				matches = append(matches, m)
				mu.Unlock()
			}
		}(req)
	}
	close(start)
	wg.Wait()

	require.Len(t, matches, 1, "exactly one caller may win the only candidate")
	assert.Equal(t, "mentor", matches[0].UserB)
	assert.Len(t, f.sessions.Sessions(), 1)
	assert.Len(t, f.events.ofType(shared.EventMatchFound), 1)

	stats, err := f.engine.GetQueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, n-1, stats.Total, "losers stay queued")
}

func TestQueueLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	req := f.add(t, person("alice", "Go", 3), queue.SessionCollaboration, queue.UrgencyLow)
	st, err := f.engine.GetStatus(ctx, req.UserID)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, 1, st.Position)

	joined := f.events.ofType(shared.EventQueueJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, 1, joined[0].Payload()["position"])

	require.NoError(t, f.engine.RemoveFromQueue(ctx, "alice"))
	require.NoError(t, f.engine.RemoveFromQueue(ctx, "alice"))

	st, err = f.engine.GetStatus(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.Len(t, f.events.ofType(shared.EventQueueLeft), 1, "a no-op removal is not announced")

	assert.True(t, shared.IsValidation(f.engine.RemoveFromQueue(ctx, "")))
	_, err = f.engine.GetStatus(ctx, "")
	assert.True(t, shared.IsValidation(err))
}

func TestCleanupExpiredQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.add(t, person("hurried", "Go", 3), queue.SessionTeaching, queue.UrgencyHigh)
	f.add(t, person("patient", "Go", 3), queue.SessionTeaching, queue.UrgencyLow)

	f.clock.Advance(20 * time.Minute)
	res, err := f.engine.CleanupExpiredQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)

	left := f.events.ofType(shared.EventQueueLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "hurried", left[0].Payload()["user_id"])
	assert.Equal(t, shared.LeftReasonExpired, left[0].Payload()["reason"])

	res, err = f.engine.CleanupExpiredQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Removed)

	ranking, err := f.engine.Ranking(ctx)
	require.NoError(t, err)
	require.Len(t, ranking, 1)
	assert.Equal(t, "patient", ranking[0].UserID())
}

func TestThresholds(t *testing.T) {
	th := matching.DefaultThresholds()
	require.NoError(t, th.Validate())

	assert.True(t, th.Accepts(compatibility.Result{Total: 0.6, Skill: 0.4, Availability: 0.3}))
	assert.False(t, th.Accepts(compatibility.Result{Total: 0.59, Skill: 1, Availability: 1}))
	assert.False(t, th.Accepts(compatibility.Result{Total: 0.9, Skill: 0.39, Availability: 1}))
	assert.False(t, th.Accepts(compatibility.Result{Total: 0.9, Skill: 1, Availability: 0.29}))

	th.MinTotal = 1.5
	assert.True(t, shared.IsValidation(th.Validate()))
}

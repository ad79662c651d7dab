package notifier_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/application/matching"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/application/notifier"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/compatibility"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/queue"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/messaging"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/persistence/memory"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/timeutil"
)

type delivery struct {
	target string
	msg    notifier.Message
}

type fakeTransport struct {
	mu       sync.Mutex
	direct   []delivery
	topics   []delivery
	failWith error
}

func (f *fakeTransport) Publish(_ context.Context, topic string, msg notifier.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, delivery{topic, msg})
	return f.failWith
}

func (f *fakeTransport) SendToChannel(_ context.Context, channelID string, msg notifier.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.direct = append(f.direct, delivery{channelID, msg})
	return nil
}

func (f *fakeTransport) sentTo(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []string
	for _, d := range f.direct {
		if d.target == channelID {
			types = append(types, d.msg.Type)
		}
	}
	return types
}

type fixture struct {
	n         *notifier.Notifier
	engine    *matching.Engine
	transport *fakeTransport
	bus       *messaging.InMemoryEventBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := timeutil.NewManualClock(time.Date(2026, time.March, 2, 14, 0, 0, 0, time.UTC))
	store := queue.NewStore(memory.NewQueueBackend(clock), queue.DefaultPolicy(), queue.WithClock(clock))

	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{})
	t.Cleanup(func() { _ = bus.Close() })

	engine := matching.NewEngine(store, memory.NewProfileRepository(), memory.NewSessionStore(),
		compatibility.NewScorer(compatibility.DefaultWeights()), bus, matching.DefaultConfig())

	transport := &fakeTransport{}
	n := notifier.New(transport, bus, engine, notifier.WithClock(clock))
	require.NoError(t, n.Start())
	return &fixture{n: n, engine: engine, transport: transport, bus: bus}
}

func (f *fixture) join(t *testing.T, user string) {
	t.Helper()
	_, err := f.engine.AddToQueue(context.Background(), queue.MatchingRequest{
		UserID: user, SessionType: queue.SessionLearning, MaxDuration: 30, Urgency: queue.UrgencyMedium,
	})
	require.NoError(t, err)
}

func TestQueueEventsReachBoundUser(t *testing.T) {
	f := newFixture(t)
	f.n.Bind("alice", "ch-1")

	f.join(t, "alice")
	f.join(t, "bob") // unbound: nothing delivered

	require.NoError(t, f.engine.RemoveFromQueue(context.Background(), "alice"))

	assert.Equal(t, []string{"queue_joined", "queue_left"}, f.transport.sentTo("ch-1"))
	assert.Len(t, f.transport.direct, 2)

	left := f.transport.direct[1].msg
	assert.Equal(t, "alice", left.Data["user_id"])
	assert.Equal(t, shared.LeftReasonUser, left.Data["reason"])
}

func TestMatchFoundGoesToBothUsers(t *testing.T) {
	f := newFixture(t)
	f.n.Bind("alice", "ch-a")
	f.n.Bind("bob", "ch-b")

	require.NoError(t, f.bus.Publish(shared.NewMatchFoundEvent("s-1", "alice", "bob", "learning", 0.82, nil)))

	assert.Equal(t, []string{"match_found"}, f.transport.sentTo("ch-a"))
	assert.Equal(t, []string{"match_found"}, f.transport.sentTo("ch-b"))
}

func TestRebalanceIsBroadcast(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.bus.Publish(shared.NewQueueRebalancedEvent([]shared.RankedUser{
		{UserID: "alice", Position: 1, Priority: 560},
	})))

	require.Len(t, f.transport.topics, 1)
	assert.Equal(t, notifier.TopicQueue, f.transport.topics[0].target)
	assert.Equal(t, "queue_rebalanced", f.transport.topics[0].msg.Type)
}

func TestBroadcastPositions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.join(t, "alice")
	f.join(t, "bob")
	f.n.Bind("alice", "ch-a")
	f.n.Bind("bob", "ch-b")
	f.n.Bind("carol", "ch-c") // connected but not queued

	sent, err := f.n.BroadcastPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	assert.Equal(t, []string{"queue_position_update"}, f.transport.sentTo("ch-b"))
	assert.Empty(t, f.transport.sentTo("ch-c"))

	for _, d := range f.transport.direct {
		if d.target == "ch-b" {
			assert.Equal(t, 2, d.msg.Data["position"])
			assert.Equal(t, "learning", d.msg.Data["session_type"])
			assert.NotEmpty(t, d.msg.Data["estimated_wait"])
		}
	}
}

func TestBroadcastStats(t *testing.T) {
	f := newFixture(t)
	f.join(t, "alice")

	require.NoError(t, f.n.BroadcastStats(context.Background()))
	require.Len(t, f.transport.topics, 1)

	got := f.transport.topics[0]
	assert.Equal(t, notifier.TopicStats, got.target)
	assert.Equal(t, "queue_stats_update", got.msg.Type)
	assert.Equal(t, 1, got.msg.Data["total"])
}

func TestBindings(t *testing.T) {
	f := newFixture(t)

	f.n.Bind("alice", "ch-1")
	f.n.Bind("alice", "ch-2")
	ch, ok := f.n.ChannelOf("alice")
	require.True(t, ok)
	assert.Equal(t, "ch-2", ch)

	// The stale connection closing must not drop the fresh binding.
	f.n.UnbindChannel("ch-1")
	_, ok = f.n.ChannelOf("alice")
	assert.True(t, ok)

	f.n.UnbindChannel("ch-2")
	_, ok = f.n.ChannelOf("alice")
	assert.False(t, ok)

	f.n.Bind("bob", "ch-3")
	f.n.Unbind("bob")
	_, ok = f.n.ChannelOf("bob")
	assert.False(t, ok)

	assert.ErrorIs(t, f.n.Start(), notifier.ErrAlreadyStarted)
}

func TestTransportFailureDoesNotBreakQueue(t *testing.T) {
	f := newFixture(t)
	f.transport.failWith = errors.New("connection reset")
	f.n.Bind("alice", "ch-1")

	f.join(t, "alice")

	status, err := f.engine.GetStatus(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, 1, status.Position)
}

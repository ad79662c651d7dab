package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/profile"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/messaging"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/scheduler"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/service"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/interface/http/handlers"
)

type brokenJob struct{}

func (brokenJob) Name() string                { return "broken" }
func (brokenJob) Description() string         { return "always fails" }
func (brokenJob) Run(context.Context) error   { return errors.New("store unreachable") }

func TestHealthReports(t *testing.T) {
	rt, err := Build(context.Background(), load(t, map[string]string{
		"QUEUE_BACKEND":           "memory",
		"SCHEDULER_TICK_INTERVAL": "5ms",
	}), nil)
	require.NoError(t, err)
	defer rt.Close()

	sched := rt.NewScheduler()
	checker := handlers.NewCompositeHealthChecker("test")
	rt.RegisterHealthChecks(checker, sched)

	status := checker.Check(context.Background())
	assert.True(t, status.Ready)
	assert.Equal(t, "scheduler is not running", status.Checks["scheduler"].Message)
	assert.Equal(t, "closed", status.Checks["history_breaker"].Details["state"])

	join(t, rt, "alice")
	status = checker.Check(context.Background())
	bus := status.Checks["event_bus"]
	assert.True(t, bus.Healthy)
	assert.Equal(t, int64(1), bus.Details["published_total"])
	assert.Equal(t, int64(1), bus.Details["published"].(map[string]int64)["queue_joined"])

	require.NoError(t, sched.Register(brokenJob{}, scheduler.Every(5*time.Millisecond)))
	require.NoError(t, sched.Start(context.Background()))
	defer func() { _ = sched.Stop() }()

	assert.Eventually(t, func() bool {
		return checker.Check(context.Background()).Checks["scheduler"].Message == "jobs failing repeatedly: broken"
	}, 2*time.Second, 10*time.Millisecond)

	status = checker.Check(context.Background())
	assert.True(t, status.Ready, "job failures never unready the service")
	details := status.Checks["scheduler"].Details
	assert.Equal(t, true, details["running"])
	job := details["jobs"].(map[string]interface{})["broken"].(map[string]interface{})
	assert.Equal(t, "store unreachable", job["last_error"])
	assert.NotEmpty(t, details["recent_failures"])
}

type failingHistory struct{}

func (failingHistory) PriorSessions(context.Context, string, string, time.Time) ([]profile.SessionRating, error) {
	return nil, errors.New("connection refused")
}

func TestBreakerReport(t *testing.T) {
	h := service.NewGuardedHistory(failingHistory{}, nil, time.Second, nil)
	report := breakerReport(h)

	details, err := report(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "closed", details["state"])

	for i := 0; i < 3; i++ {
		_, _ = h.PriorSessions(context.Background(), "a", "b", time.Time{})
	}
	details, err = report(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "breaker is open")
	assert.Equal(t, "open", details["state"])
	assert.Equal(t, 3, details["total_failures"])
}

type lossyBus struct {
	*messaging.InMemoryEventBus
	failed int64
}

func (b *lossyBus) Stats() messaging.BusStats {
	s := b.InMemoryEventBus.Stats()
	s.RemoteFailed = b.failed
	return s
}

func TestBusReportFlagsNewFailuresOnly(t *testing.T) {
	bus := &lossyBus{InMemoryEventBus: messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{})}
	defer bus.Close()
	report := busReport(bus)

	_, err := report(context.Background())
	require.NoError(t, err)

	bus.failed = 2
	details, err := report(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 event publishes")
	assert.Equal(t, int64(2), details["remote_failed"])

	_, err = report(context.Background())
	assert.NoError(t, err, "failures already reported do not stick")
}

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/scheduler"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/service"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/interface/http/handlers"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/circuitbreaker"
)

// jobFailureStreak is how many failed runs in a row mark a job unhealthy.
const jobFailureStreak = 3

// RegisterHealthChecks adds the store checks and the runtime reports to c.
// Postgres and Redis are critical; everything else only degrades health.
// sched may be nil when the process runs no jobs.
func (rt *Runtime) RegisterHealthChecks(c *handlers.CompositeHealthChecker, sched *scheduler.Scheduler) {
	if rt.DB != nil {
		c.AddCheck("postgres", handlers.NewPingCheck(rt.DB))
	}
	if rt.Redis != nil {
		c.AddCheck("redis", handlers.NewPingCheck(rt.Redis))
	}
	c.AddSoftCheck("queue_cleanup", handlers.NewServiceCheck(rt.Cleanup))
	c.AddReport("event_bus", busReport(rt.Bus))
	if rt.History != nil {
		c.AddReport("history_breaker", breakerReport(rt.History))
	}
	if sched != nil {
		c.AddReport("scheduler", schedulerReport(sched))
	}
}

// busReport fails when Redis publishes failed since the previous check.
// Local delivery carries on in that case, but other instances miss events.
func busReport(bus EventBus) handlers.ReportFunc {
	var mu sync.Mutex
	var seen int64
	return func(context.Context) (map[string]interface{}, error) {
		st := bus.Stats()
		published := make(map[string]int64, len(st.Published))
		for t, n := range st.Published {
			published[string(t)] = n
		}
		details := map[string]interface{}{
			"published":          published,
			"published_total":    st.TotalPublished,
			"handler_runs":       st.HandlerRuns,
			"handler_failures":   st.HandlerFailures,
			"avg_handler_micros": st.AvgHandlerTime.Microseconds(),
			"remote_sent":        st.RemoteSent,
			"remote_failed":      st.RemoteFailed,
			"remote_received":    st.RemoteReceived,
			"remote_dropped":     st.RemoteDropped,
		}

		mu.Lock()
		fresh := st.RemoteFailed - seen
		seen = st.RemoteFailed
		mu.Unlock()
		if fresh > 0 {
			return details, fmt.Errorf("%d event publishes to redis failed since the last check", fresh)
		}
		return details, nil
	}
}

func breakerReport(h *service.GuardedHistory) handlers.ReportFunc {
	return func(context.Context) (map[string]interface{}, error) {
		state := h.BreakerState()
		n := h.BreakerCounts()
		details := map[string]interface{}{
			"state":                state.String(),
			"requests":             n.Requests,
			"total_failures":       n.TotalFailures,
			"consecutive_failures": n.ConsecutiveFailures,
		}
		if state == circuitbreaker.StateOpen {
			return details, errors.New("session history breaker is open, history scores are neutral")
		}
		return details, nil
	}
}

func schedulerReport(s *scheduler.Scheduler) handlers.ReportFunc {
	return func(context.Context) (map[string]interface{}, error) {
		st := s.Stats()
		jobs := make(map[string]interface{}, len(st.Jobs))
		var failing []string
		for _, j := range st.Jobs {
			job := map[string]interface{}{
				"schedule":         j.Schedule,
				"runs":             j.Runs,
				"failures":         j.Failures,
				"avg_duration_ms":  j.AverageDuration.Milliseconds(),
				"next_run":         j.NextRun,
				"failure_streak":   j.ConsecutiveFailures,
				"last_error":       j.LastError,
				"last_duration_ms": j.LastDuration.Milliseconds(),
			}
			if !j.LastRun.IsZero() {
				job["last_run"] = j.LastRun
			}
			jobs[j.Name] = job
			if j.ConsecutiveFailures >= jobFailureStreak {
				failing = append(failing, j.Name)
			}
		}
		recent := make([]string, 0, len(st.Recent))
		for _, f := range st.Recent {
			recent = append(recent, f.At.UTC().Format("15:04:05")+" "+f.Job+": "+f.Error)
		}
		details := map[string]interface{}{
			"running":         st.Running,
			"uptime":          st.Uptime.Round(time.Second).String(),
			"runs":            st.Runs,
			"failures":        st.Failures,
			"jobs":            jobs,
			"recent_failures": recent,
		}

		switch {
		case !st.Running:
			return details, errors.New("scheduler is not running")
		case len(failing) > 0:
			return details, fmt.Errorf("jobs failing repeatedly: %s", strings.Join(failing, ", "))
		}
		return details, nil
	}
}

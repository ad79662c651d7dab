package bootstrap

import (
	"fmt"
	"time"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/config"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/scheduler"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/scheduler/jobs"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/logger"
)

// NewScheduler builds a scheduler from the configuration.
func (rt *Runtime) NewScheduler() *scheduler.Scheduler {
	cfg := rt.Config
	s := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:       rt.Log,
		Timezone:     cfg.App.Location,
		TickInterval: cfg.Scheduler.TickInterval,
		FailureLog:   cfg.Scheduler.FailureLog,
	})
	s.OnJobError(func(name string, err error) {
		rt.Log.Warn("scheduled job failed", logger.String("job", name), logger.Err(err))
	})
	return s
}

// ScheduleMaintenance registers the expiry sweep and, when enabled, the
// periodic rebalance.
func (rt *Runtime) ScheduleMaintenance(s *scheduler.Scheduler) error {
	cfg := rt.Config

	sweepAt, err := schedule(cfg.Scheduler.SweepCron, cfg.Queue.CleanupInterval)
	if err != nil {
		return fmt.Errorf("SCHEDULER_SWEEP_CRON: %w", err)
	}
	if err := s.Register(jobs.NewSweepQueueJob(rt.Cleanup, cfg.Scheduler.JobTimeout), sweepAt); err != nil {
		return err
	}

	if !cfg.Features.On(config.FeatureAutoRebalance) {
		return nil
	}
	rebalanceAt, err := schedule(cfg.Scheduler.RebalanceCron, cfg.Queue.RebalanceInterval)
	if err != nil {
		return fmt.Errorf("SCHEDULER_REBALANCE_CRON: %w", err)
	}
	return s.Register(jobs.NewRebalanceQueueJob(rt.Cleanup, cfg.Scheduler.JobTimeout), rebalanceAt)
}

// Broadcaster pushes periodic queue updates to connected users.
type Broadcaster interface {
	jobs.PositionBroadcaster
	jobs.StatsBroadcaster
}

// ScheduleBroadcasts registers the enabled periodic pushes.
func (rt *Runtime) ScheduleBroadcasts(s *scheduler.Scheduler, b Broadcaster) error {
	cfg := rt.Config
	if cfg.Features.On(config.FeaturePositionBroadcast) {
		job := jobs.NewPositionBroadcastJob(b, cfg.Realtime.SendTimeout*4)
		if err := s.Register(job, scheduler.Every(cfg.Realtime.PositionInterval)); err != nil {
			return err
		}
	}
	if cfg.Features.On(config.FeatureStatsBroadcast) {
		job := jobs.NewStatsBroadcastJob(b, cfg.Realtime.SendTimeout*4)
		if err := s.Register(job, scheduler.Every(cfg.Realtime.StatsInterval)); err != nil {
			return err
		}
	}
	return nil
}

func schedule(cron string, every time.Duration) (scheduler.Schedule, error) {
	if cron == "" {
		return scheduler.Every(every), nil
	}
	return scheduler.ParseSchedule(cron)
}

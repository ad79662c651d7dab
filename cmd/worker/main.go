// Package main is the entry point for the queue maintenance worker.
//
// The worker sweeps expired entries and rebalances priorities on a schedule.
// It holds no client connections: the events it publishes reach users
// through the API servers, so it is only useful with the Redis backend and
// FEATURE_EVENTS_DISTRIBUTED=true. Run the servers with
// SCHEDULER_ENABLED=false so maintenance is not doubled.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/config"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/bootstrap"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/telemetry"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Queue.Backend != "redis" {
		return errors.New("worker requires QUEUE_BACKEND=redis")
	}

	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Development = cfg.Observability.LogFormat == "console"
	log := logger.New(opts).With(
		logger.String("service", cfg.App.Name+"-worker"),
		logger.String("version", cfg.App.Version),
	)
	defer func() { _ = log.Sync() }()

	if !cfg.Features.On(config.FeatureDistributedEvents) {
		log.Warn("events.distributed is off, queue events from this worker stay local")
	}

	shutdownTracing := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Observability.TracingEnabled || cfg.Features.On(config.FeatureTracing),
		ServiceName: cfg.App.Name + "-worker",
		Environment: string(cfg.App.Environment),
		Version:     cfg.App.Version,
		Endpoint:    cfg.Observability.TracingEndpoint,
		Insecure:    cfg.Observability.TracingInsecure,
		Headers:     telemetry.ParseHeaders(cfg.Observability.TracingHeaders),
		SampleRatio: cfg.Observability.TracingSampleRatio,
	}, log)

	rt, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn("runtime close failed", logger.Err(err))
		}
	}()

	sched := rt.NewScheduler()
	if err := rt.ScheduleMaintenance(sched); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	for _, job := range sched.ListJobs() {
		log.Info("job scheduled", logger.String("job", job.Name), logger.String("schedule", job.Schedule))
	}

	<-ctx.Done()
	log.Info("received shutdown signal", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	if err := sched.Stop(); err != nil {
		log.Warn("scheduler stop failed", logger.Err(err))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown failed", logger.Err(err))
	}

	h := rt.Cleanup.Health()
	st := sched.Stats()
	log.Info("worker stopped",
		logger.Int64("sweep_runs", h.SweepRuns),
		logger.Int64("total_removed", h.TotalRemoved),
		logger.Int64("sweep_failures", h.SweepFailures),
		logger.Int64("job_runs", st.Runs),
		logger.Int64("job_failures", st.Failures),
		logger.Int64("events_published", rt.Bus.Stats().TotalPublished),
	)
	return nil
}

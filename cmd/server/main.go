// Package main is the entry point for the matching API server.
//
// The server owns the client connections, so besides the HTTP API it runs
// the queue notifier and the periodic position and stats pushes. Queue
// maintenance runs here too unless a separate worker takes it over
// (SCHEDULER_ENABLED=false).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"go.opentelemetry.io/otel"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/config"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/application/notifier"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/bootstrap"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/realtime"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/telemetry"
	httpserver "github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/interface/http"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/interface/http/handlers"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()
	log.Info("starting matching server",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. TRACING
	// ─────────────────────────────────────────────────────────────────────────
	shutdownTracing := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Observability.TracingEnabled || cfg.Features.On(config.FeatureTracing),
		ServiceName: cfg.App.Name,
		Environment: string(cfg.App.Environment),
		Version:     cfg.App.Version,
		Endpoint:    cfg.Observability.TracingEndpoint,
		Insecure:    cfg.Observability.TracingInsecure,
		Headers:     telemetry.ParseHeaders(cfg.Observability.TracingHeaders),
		SampleRatio: cfg.Observability.TracingSampleRatio,
	}, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORES, BUS & ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	rt, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn("runtime close failed", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REALTIME DELIVERY
	// ─────────────────────────────────────────────────────────────────────────
	hub := realtime.NewHub(realtime.HubConfig{
		BufferSize: cfg.Realtime.BufferSize,
		Heartbeat:  cfg.Realtime.Heartbeat,
		Logger:     log,
	})
	queueNotifier := notifier.New(hub, rt.Bus, rt.Engine,
		notifier.WithLogger(log),
		notifier.WithSendTimeout(cfg.Realtime.SendTimeout),
	)
	if err := queueNotifier.Start(); err != nil {
		return fmt.Errorf("start notifier: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. SCHEDULED JOBS
	// ─────────────────────────────────────────────────────────────────────────
	sched := rt.NewScheduler()
	if cfg.Scheduler.Enabled {
		if err := rt.ScheduleMaintenance(sched); err != nil {
			return err
		}
	}
	if err := rt.ScheduleBroadcasts(sched, queueNotifier); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP API
	// ─────────────────────────────────────────────────────────────────────────
	checker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	rt.RegisterHealthChecks(checker, sched)

	serverCfg := httpserver.DefaultConfig()
	serverCfg.Addr = cfg.HTTP.Addr
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.RequestTimeout = cfg.HTTP.RequestTimeout
	serverCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	serverCfg.Version = cfg.App.Version

	server := httpserver.NewServer(serverCfg, httpserver.Dependencies{
		Queue:         rt.Engine,
		Cleanup:       rt.Cleanup,
		Hub:           hub,
		Notifier:      queueNotifier,
		Features:      cfg.Features,
		HealthChecker: checker,
		Logger:        log,
		Tracer:        otel.Tracer("skillsync/http"),
	})

	var errCh <-chan error
	if cfg.HTTP.Enabled {
		errCh = server.StartAsync()
	}

	log.Info("matching server is running", logger.String("addr", cfg.HTTP.Addr))

	// ─────────────────────────────────────────────────────────────────────────
	// 7. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown failed", logger.Err(err))
	}
	if err := sched.Stop(); err != nil {
		log.Warn("scheduler stop failed", logger.Err(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown failed", logger.Err(err))
	}

	log.Info("shutdown completed")
	return runErr
}

// setupLogger builds the process logger. LOG_FORMAT=console switches to the
// human readable encoder.
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Development = cfg.Observability.LogFormat == "console"
	return logger.New(opts).With(
		logger.String("service", cfg.App.Name),
		logger.String("version", cfg.App.Version),
	)
}

package jobs

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// BROADCAST JOBS
// ══════════════════════════════════════════════════════════════════════════════

// PositionBroadcaster pushes positions to queued, connected users.
type PositionBroadcaster interface {
	BroadcastPositions(ctx context.Context) (int, error)
}

// StatsBroadcaster pushes aggregate stats to every connected client.
type StatsBroadcaster interface {
	BroadcastStats(ctx context.Context) error
}

// PositionBroadcastJob runs in the process that holds client connections.
type PositionBroadcastJob struct {
	broadcaster PositionBroadcaster
	timeout     time.Duration
}

// NewPositionBroadcastJob creates the job. timeout bounds each run (default 10s).
func NewPositionBroadcastJob(b PositionBroadcaster, timeout time.Duration) *PositionBroadcastJob {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PositionBroadcastJob{broadcaster: b, timeout: timeout}
}

func (j *PositionBroadcastJob) Name() string        { return "position_broadcast" }
func (j *PositionBroadcastJob) Description() string { return "Sends queue position updates to waiting users" }

func (j *PositionBroadcastJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	_, err := j.broadcaster.BroadcastPositions(ctx)
	return err
}

// StatsBroadcastJob publishes queue stats.
type StatsBroadcastJob struct {
	broadcaster StatsBroadcaster
	timeout     time.Duration
}

// NewStatsBroadcastJob creates the job. timeout bounds each run (default 10s).
func NewStatsBroadcastJob(b StatsBroadcaster, timeout time.Duration) *StatsBroadcastJob {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &StatsBroadcastJob{broadcaster: b, timeout: timeout}
}

func (j *StatsBroadcastJob) Name() string        { return "stats_broadcast" }
func (j *StatsBroadcastJob) Description() string { return "Broadcasts queue statistics to connected clients" }

func (j *StatsBroadcastJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	return j.broadcaster.BroadcastStats(ctx)
}

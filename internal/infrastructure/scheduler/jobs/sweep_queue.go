// Package jobs contains the queue's scheduled jobs.
package jobs

import (
	"context"
	"time"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/application/matching"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP QUEUE JOB
// ══════════════════════════════════════════════════════════════════════════════

// Sweeper removes expired queue entries.
type Sweeper interface {
	Sweep(ctx context.Context) (matching.CleanupResult, error)
}

// SweepQueueJob drops entries whose TTL has elapsed. Running it more often
// than needed is harmless.
type SweepQueueJob struct {
	sweeper Sweeper
	timeout time.Duration
}

// NewSweepQueueJob creates the job. timeout bounds each run (default 30s).
func NewSweepQueueJob(sweeper Sweeper, timeout time.Duration) *SweepQueueJob {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SweepQueueJob{sweeper: sweeper, timeout: timeout}
}

func (j *SweepQueueJob) Name() string        { return "sweep_queue" }
func (j *SweepQueueJob) Description() string { return "Removes queue entries whose TTL has elapsed" }

// Run executes one sweep.
func (j *SweepQueueJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if _, err := j.sweeper.Sweep(ctx); err != nil {
		return shared.WrapError("jobs", j.Name(), shared.ErrInfrastructure, "queue sweep failed", err)
	}
	return nil
}

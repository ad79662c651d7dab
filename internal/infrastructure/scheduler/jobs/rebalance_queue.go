package jobs

import (
	"context"
	"time"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBALANCE QUEUE JOB
// ══════════════════════════════════════════════════════════════════════════════

// Rebalancer recomputes and announces the queue ranking.
type Rebalancer interface {
	Rebalance(ctx context.Context) ([]shared.RankedUser, error)
}

// RebalanceQueueJob publishes a fresh ranking so clients see waiting-time
// boosts take effect.
type RebalanceQueueJob struct {
	rebalancer Rebalancer
	timeout    time.Duration
}

// NewRebalanceQueueJob creates the job. timeout bounds each run (default 30s).
func NewRebalanceQueueJob(r Rebalancer, timeout time.Duration) *RebalanceQueueJob {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RebalanceQueueJob{rebalancer: r, timeout: timeout}
}

func (j *RebalanceQueueJob) Name() string        { return "rebalance_queue" }
func (j *RebalanceQueueJob) Description() string { return "Recomputes queue priorities and broadcasts the ranking" }

// Run executes one rebalance.
func (j *RebalanceQueueJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if _, err := j.rebalancer.Rebalance(ctx); err != nil {
		return shared.WrapError("jobs", j.Name(), shared.ErrInfrastructure, "queue rebalance failed", err)
	}
	return nil
}

// Package cleanup keeps the queue a bounded, fair window: it sweeps expired
// entries and periodically announces a freshly computed ranking.
package cleanup

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/application/matching"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/queue"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/logger"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/timeutil"
)

// Queue is the part of the matching engine the service drives.
type Queue interface {
	CleanupExpiredQueue(ctx context.Context) (matching.CleanupResult, error)
	Ranking(ctx context.Context) ([]queue.RankedEntry, error)
}

// Health is a snapshot of the service counters.
type Health struct {
	SweepRuns             int64         `json:"sweep_runs"`
	SweepFailures         int64         `json:"sweep_failures"`
	RebalanceRuns         int64         `json:"rebalance_runs"`
	RebalanceFailures     int64         `json:"rebalance_failures"`
	ConsecutiveFailures   int           `json:"consecutive_failures"`
	TotalRemoved          int64         `json:"total_removed"`
	LastRemoved           int           `json:"last_removed"`
	LastSweepAt           time.Time     `json:"last_sweep_at,omitempty"`
	LastSweepDuration     time.Duration `json:"last_sweep_duration"`
	LastRebalanceAt       time.Time     `json:"last_rebalance_at,omitempty"`
	LastRebalanceDuration time.Duration `json:"last_rebalance_duration"`
	LastRankedCount       int           `json:"last_ranked_count"`
	LastError             string        `json:"last_error,omitempty"`
	LastErrorAt           time.Time     `json:"last_error_at,omitempty"`
}

// ErrUnhealthy is returned by Check after repeated failed passes.
var ErrUnhealthy = errors.New("cleanup: repeated failures")

// Service runs sweeps and rebalances. Both are idempotent and safe to
// interleave with live matching.
type Service struct {
	queue  Queue
	events shared.EventPublisher
	clock  timeutil.Clock
	log    *logger.Logger

	// failureLimit is how many consecutive failures Check tolerates.
	failureLimit int

	mu     sync.Mutex
	health Health
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *logger.Logger) Option { return func(s *Service) { s.log = l } }
func WithClock(c timeutil.Clock) Option  { return func(s *Service) { s.clock = c } }

// WithFailureLimit ignores n < 1.
func WithFailureLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.failureLimit = n
		}
	}
}

// NewService creates the service. events may be nil.
func NewService(q Queue, events shared.EventPublisher, opts ...Option) *Service {
	s := &Service{
		queue:        q,
		events:       events,
		clock:        timeutil.SystemClock{},
		log:          logger.Nop(),
		failureLimit: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("queue_cleanup"))
	return s
}

// Sweep removes expired entries. The engine announces each removal.
func (s *Service) Sweep(ctx context.Context) (matching.CleanupResult, error) {
	start := s.clock.Now()
	res, err := s.queue.CleanupExpiredQueue(ctx)
	elapsed := s.clock.Now().Sub(start)

	s.mu.Lock()
	s.health.SweepRuns++
	s.health.LastSweepAt = start
	s.health.LastSweepDuration = elapsed
	// A partially failed sweep still removed what it reports.
	s.health.TotalRemoved += int64(res.Removed)
	s.health.LastRemoved = res.Removed
	if err != nil {
		s.health.SweepFailures++
		s.failedLocked(err, start)
	} else {
		s.health.ConsecutiveFailures = 0
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("queue sweep failed", logger.Err(err), logger.Int("removed", res.Removed))
		return res, err
	}
	if res.Removed > 0 {
		s.log.Info("expired entries swept", logger.Int("removed", res.Removed), logger.Latency(elapsed))
	}
	return res, nil
}

// Rebalance recomputes the ranking and publishes it. It never mutates entries.
func (s *Service) Rebalance(ctx context.Context) ([]shared.RankedUser, error) {
	start := s.clock.Now()
	ranked, err := s.queue.Ranking(ctx)
	elapsed := s.clock.Now().Sub(start)

	s.mu.Lock()
	s.health.RebalanceRuns++
	s.health.LastRebalanceAt = start
	s.health.LastRebalanceDuration = elapsed
	if err != nil {
		s.health.RebalanceFailures++
		s.failedLocked(err, start)
	} else {
		s.health.ConsecutiveFailures = 0
		s.health.LastRankedCount = len(ranked)
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("queue rebalance failed", logger.Err(err))
		return nil, err
	}

	snapshot := make([]shared.RankedUser, 0, len(ranked))
	for _, r := range ranked {
		snapshot = append(snapshot, shared.RankedUser{UserID: r.UserID(), Position: r.Position, Priority: r.Priority})
	}
	if s.events != nil {
		if err := s.events.Publish(shared.NewQueueRebalancedEvent(snapshot)); err != nil {
			s.log.Warn("failed to publish rebalance", logger.Err(err))
		}
	}
	s.log.Debug("queue rebalanced", logger.Int("ranked", len(snapshot)), logger.Latency(elapsed))
	return snapshot, nil
}

func (s *Service) failedLocked(err error, at time.Time) {
	s.health.ConsecutiveFailures++
	s.health.LastError = err.Error()
	s.health.LastErrorAt = at
}

// Health returns a copy of the counters.
func (s *Service) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// Check reports ErrUnhealthy once consecutive failures reach the limit.
func (s *Service) Check(context.Context) error {
	h := s.Health()
	if h.ConsecutiveFailures >= s.failureLimit {
		return errors.Join(ErrUnhealthy, errors.New(h.LastError))
	}
	return nil
}

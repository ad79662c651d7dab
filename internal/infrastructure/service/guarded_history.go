// Package service holds adapters that harden infrastructure collaborators
// before they are handed to the domain.
package service

import (
	"context"
	"time"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/profile"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/circuitbreaker"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/logger"
)

// GuardedHistory bounds every history lookup by a timeout and stops calling
// the store while its breaker is open. Callers see an infrastructure error
// and fall back to the neutral history score.
type GuardedHistory struct {
	next    profile.HistoryLookup
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
	log     *logger.Logger
}

var _ profile.HistoryLookup = (*GuardedHistory)(nil)

// NewGuardedHistory wraps next. A nil breaker gets circuitbreaker.HistoryStoreBreaker.
func NewGuardedHistory(next profile.HistoryLookup, breaker *circuitbreaker.CircuitBreaker, timeout time.Duration, log *logger.Logger) *GuardedHistory {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("history_guard"))
	if breaker == nil {
		breaker = circuitbreaker.HistoryStoreBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		})
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &GuardedHistory{next: next, breaker: breaker, timeout: timeout, log: log}
}

// PriorSessions implements profile.HistoryLookup.
func (g *GuardedHistory) PriorSessions(ctx context.Context, userA, userB string, since time.Time) ([]profile.SessionRating, error) {
	var out []profile.SessionRating
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		var err error
		out, err = g.next.PriorSessions(ctx, userA, userB, since)
		return err
	})
	if err != nil {
		if shared.IsInfrastructure(err) {
			return nil, err
		}
		return nil, shared.Infrastructure("history", "PriorSessions", err)
	}
	return out, nil
}

// BreakerState and BreakerCounts feed the history_breaker health report.
func (g *GuardedHistory) BreakerState() circuitbreaker.State { return g.breaker.State() }

func (g *GuardedHistory) BreakerCounts() circuitbreaker.Counts { return g.breaker.Counts() }

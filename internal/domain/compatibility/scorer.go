package compatibility

import (
	"context"
	"time"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/profile"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/queue"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/logger"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/timeutil"
)

// Defaults for history lookups.
const (
	DefaultHistoryLookback = 180 * 24 * time.Hour
	DefaultHistoryTimeout  = 500 * time.Millisecond
)

// Scorer combines the component functions with the configured weights.
// It is stateless apart from its dependencies and safe for concurrent use.
type Scorer struct {
	weights        Weights
	history        profile.HistoryLookup
	lookback       time.Duration
	historyTimeout time.Duration
	clock          timeutil.Clock
	log            *logger.Logger
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithHistory sets the prior-session lookup. Without one, every pair scores
// as if it had no history.
func WithHistory(h profile.HistoryLookup) Option {
	return func(s *Scorer) { s.history = h }
}

// WithHistoryLookback limits how far back prior sessions are considered.
func WithHistoryLookback(d time.Duration) Option {
	return func(s *Scorer) {
		if d > 0 {
			s.lookback = d
		}
	}
}

// WithHistoryTimeout bounds a single history lookup.
func WithHistoryTimeout(d time.Duration) Option {
	return func(s *Scorer) {
		if d > 0 {
			s.historyTimeout = d
		}
	}
}

// WithClock overrides the time source used for timezone offsets and lookback.
func WithClock(c timeutil.Clock) Option {
	return func(s *Scorer) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Scorer) { s.log = l }
}

// NewScorer creates a Scorer. Weights are assumed validated by the caller.
func NewScorer(w Weights, opts ...Option) *Scorer {
	s := &Scorer{
		weights:        w,
		lookback:       DefaultHistoryLookback,
		historyTimeout: DefaultHistoryTimeout,
		clock:          timeutil.SystemClock{},
		log:            logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("compatibility"))
	return s
}

// Weights returns the configured weights.
func (s *Scorer) Weights() Weights { return s.weights }

// Score computes every component for requester against candidate. It never
// fails; degraded inputs are logged at debug level and scored Neutral.
func (s *Scorer) Score(ctx context.Context, requester, candidate *profile.Profile, req queue.MatchingRequest) Result {
	if requester == nil || candidate == nil {
		return Result{Skill: Neutral, Timezone: Neutral, Availability: Neutral,
			Communication: Neutral, SessionHistory: Neutral, Total: Neutral}
	}
	now := s.clock.Now()
	pair := []logger.Field{logger.UserID(requester.UserID), logger.PeerID(candidate.UserID)}

	r := Result{
		Skill:         SkillCompatibility(requester.Skills, candidate.Skills, req.PreferredSkills, req.SessionType),
		Timezone:      TimezoneCompatibility(requester.Timezone(), candidate.Timezone(), now),
		Availability:  AvailabilityCompatibility(requester.Availability(), candidate.Availability()),
		Communication: CommunicationCompatibility(requester.Preferences, candidate.Preferences),
	}

	if r.Timezone == Neutral && (requester.Timezone() == "" || candidate.Timezone() == "") {
		s.log.Debug("timezone missing, using neutral score", pair...)
	}
	if r.Availability == Neutral {
		s.log.Debug("availability missing, using neutral score", pair...)
	}
	if requester.Preferences == nil || candidate.Preferences == nil {
		s.log.Debug("preferences missing, using neutral communication score", pair...)
	}

	r.SessionHistory = s.historyScore(ctx, requester, candidate, now)
	r.Total = r.Weighted(s.weights)
	return r
}

func (s *Scorer) historyScore(ctx context.Context, a, b *profile.Profile, now time.Time) float64 {
	if s.history == nil {
		return NoHistoryScore(a.Stats, b.Stats)
	}
	ctx, cancel := context.WithTimeout(ctx, s.historyTimeout)
	defer cancel()

	prior, err := s.history.PriorSessions(ctx, a.UserID, b.UserID, now.Add(-s.lookback))
	if err != nil {
		s.log.Debug("session history unavailable, using no-history score",
			logger.UserID(a.UserID), logger.PeerID(b.UserID), logger.Err(err))
		return NoHistoryScore(a.Stats, b.Stats)
	}
	return SessionHistoryCompatibility(prior, a.Stats, b.Stats)
}

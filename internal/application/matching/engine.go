// Package matching pairs a requester with the best compatible waiting user
// and arbitrates the claim so that no user is ever matched twice.
package matching

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/compatibility"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/profile"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/queue"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/logger"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/retry"
)

const domainName = "matching"

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATORS & CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// SessionCreator persists a session for a decided match.
type SessionCreator interface {
	CreateSession(ctx context.Context, userA, userB string, st queue.SessionType) (string, error)
}

// Thresholds are the acceptance gates a candidate must clear.
type Thresholds struct {
	MinTotal        float64 `yaml:"min_total" json:"min_total"`
	MinSkill        float64 `yaml:"min_skill" json:"min_skill"`
	MinAvailability float64 `yaml:"min_availability" json:"min_availability"`
}

// DefaultThresholds returns the production gates.
func DefaultThresholds() Thresholds {
	return Thresholds{MinTotal: 0.6, MinSkill: 0.4, MinAvailability: 0.3}
}

// Accepts reports whether r clears every gate.
func (t Thresholds) Accepts(r compatibility.Result) bool {
	return r.Total >= t.MinTotal && r.Skill >= t.MinSkill && r.Availability >= t.MinAvailability
}

// Validate checks every gate lies in [0,1].
func (t Thresholds) Validate() error {
	for _, v := range []float64{t.MinTotal, t.MinSkill, t.MinAvailability} {
		if v < 0 || v > 1 {
			return shared.Validation(domainName, "Thresholds", "thresholds must lie in [0,1]")
		}
	}
	return nil
}

// Config tunes the engine.
type Config struct {
	Thresholds Thresholds

	// CandidateLimit caps how many ranked candidates one attempt scores.
	CandidateLimit int

	// ScoreConcurrency bounds parallel profile loads and scoring.
	ScoreConcurrency int

	// OperationTimeout bounds every store and collaborator call.
	OperationTimeout time.Duration

	// ClaimAttempts is how many times a lost claim is retried.
	ClaimAttempts int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Thresholds:       DefaultThresholds(),
		CandidateLimit:   50,
		ScoreConcurrency: 8,
		OperationTimeout: 3 * time.Second,
		ClaimAttempts:    3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = d.CandidateLimit
	}
	if c.ScoreConcurrency <= 0 {
		c.ScoreConcurrency = d.ScoreConcurrency
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = d.OperationTimeout
	}
	if c.ClaimAttempts <= 0 {
		c.ClaimAttempts = d.ClaimAttempts
	}
	if c.Thresholds == (Thresholds{}) {
		c.Thresholds = d.Thresholds
	}
	return c
}

// Match is a decided pairing. UserA is the requester.
type Match struct {
	SessionID   string               `json:"session_id"`
	UserA       string               `json:"user_a"`
	UserB       string               `json:"user_b"`
	SessionType queue.SessionType    `json:"session_type"`
	Score       compatibility.Result `json:"score"`
	CreatedAt   time.Time            `json:"created_at"`
}

// CleanupResult reports how many expired entries a sweep removed.
type CleanupResult struct {
	Removed int `json:"removed"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine is stateless: every call reads the store afresh, so any number of
// engine instances may share one backend.
type Engine struct {
	store    *queue.Store
	profiles profile.Repository
	sessions SessionCreator
	scorer   *compatibility.Scorer
	events   shared.EventPublisher
	cfg      Config
	retrier  *retry.Retrier
	log      *logger.Logger
	tracer   trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine wires the engine. events may be nil.
func NewEngine(
	store *queue.Store,
	profiles profile.Repository,
	sessions SessionCreator,
	scorer *compatibility.Scorer,
	events shared.EventPublisher,
	cfg Config,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:    store,
		profiles: profiles,
		sessions: sessions,
		scorer:   scorer,
		events:   events,
		cfg:      cfg.withDefaults(),
		log:      logger.Nop(),
		tracer:   otel.Tracer("skillsync/matching"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(logger.Component("matching_engine"))
	claim := retry.ClaimPolicy(shared.IsConflict)
	claim.MaxAttempts = e.cfg.ClaimAttempts
	claim.OnRetry = func(attempt int, err error, delay time.Duration) {
		e.log.Debug("claim lost, retrying", logger.Attempt(attempt), logger.Duration("delay", delay), logger.Err(err))
	}
	e.retrier = retry.New(claim)
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.OperationTimeout)
}

// ══════════════════════════════════════════════════════════════════════════════
// QUEUE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// AddToQueue upserts the request and returns the user's fresh status.
func (e *Engine) AddToQueue(ctx context.Context, req queue.MatchingRequest) (*queue.Status, error) {
	ctx, span := e.tracer.Start(ctx, "matching.AddToQueue", trace.WithAttributes(
		attribute.String("user_id", req.UserID),
		attribute.String("session_type", string(req.SessionType)),
	))
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	opCtx, cancel := e.opCtx(ctx)
	defer cancel()

	if _, err := e.store.Upsert(opCtx, req); err != nil {
		return nil, e.fail(span, "AddToQueue", err)
	}
	status, err := e.store.Status(opCtx, req.UserID)
	if err != nil {
		return nil, e.fail(span, "AddToQueue", err)
	}

	if status != nil {
		e.publish(shared.NewQueueJoinedEvent(
			req.UserID, string(req.SessionType), string(req.Urgency), status.Position, status.EstimatedWait,
		))
		span.SetAttributes(attribute.Int("position", status.Position))
	}
	e.log.Info("user joined queue",
		logger.UserID(req.UserID),
		logger.SessionType(string(req.SessionType)),
		logger.Urgency(string(req.Urgency)),
	)
	return status, nil
}

// RemoveFromQueue deletes the user's entry. Removing a user who is not queued
// (including one already claimed by a match) is a no-op.
func (e *Engine) RemoveFromQueue(ctx context.Context, userID string) error {
	ctx, span := e.tracer.Start(ctx, "matching.RemoveFromQueue", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	if userID == "" {
		return shared.ErrInvalidUserID
	}

	opCtx, cancel := e.opCtx(ctx)
	defer cancel()

	removed, err := e.store.Remove(opCtx, userID)
	if err != nil {
		return e.fail(span, "RemoveFromQueue", err)
	}
	if removed {
		e.publish(shared.NewQueueLeftEvent(userID, shared.LeftReasonUser))
		e.log.Info("user left queue", logger.UserID(userID))
	}
	return nil
}

// GetStatus returns nil, nil when the user is not queued.
func (e *Engine) GetStatus(ctx context.Context, userID string) (*queue.Status, error) {
	ctx, span := e.tracer.Start(ctx, "matching.GetStatus", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	if userID == "" {
		return nil, shared.ErrInvalidUserID
	}

	opCtx, cancel := e.opCtx(ctx)
	defer cancel()

	status, err := e.store.Status(opCtx, userID)
	if err != nil {
		return nil, e.fail(span, "GetStatus", err)
	}
	return status, nil
}

// GetQueueStats returns aggregate queue statistics.
func (e *Engine) GetQueueStats(ctx context.Context) (*queue.Stats, error) {
	ctx, span := e.tracer.Start(ctx, "matching.GetQueueStats")
	defer span.End()

	opCtx, cancel := e.opCtx(ctx)
	defer cancel()

	stats, err := e.store.Stats(opCtx)
	if err != nil {
		return nil, e.fail(span, "GetQueueStats", err)
	}
	return stats, nil
}

// Ranking returns the live queue in rank order.
func (e *Engine) Ranking(ctx context.Context) ([]queue.RankedEntry, error) {
	ctx, span := e.tracer.Start(ctx, "matching.Ranking")
	defer span.End()

	opCtx, cancel := e.opCtx(ctx)
	defer cancel()

	ranked, err := e.store.Ranked(opCtx)
	if err != nil {
		return nil, e.fail(span, "Ranking", err)
	}
	return ranked, nil
}

// CleanupExpiredQueue removes expired entries and announces each removal.
func (e *Engine) CleanupExpiredQueue(ctx context.Context) (CleanupResult, error) {
	ctx, span := e.tracer.Start(ctx, "matching.CleanupExpiredQueue")
	defer span.End()

	opCtx, cancel := e.opCtx(ctx)
	defer cancel()

	swept, err := e.store.SweepExpired(opCtx)
	if err != nil {
		return CleanupResult{Removed: len(swept)}, e.fail(span, "CleanupExpiredQueue", err)
	}
	for _, entry := range swept {
		e.publish(shared.NewQueueLeftEvent(entry.UserID(), shared.LeftReasonExpired))
	}
	span.SetAttributes(attribute.Int("removed", len(swept)))
	return CleanupResult{Removed: len(swept)}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FIND MATCH
// ══════════════════════════════════════════════════════════════════════════════

var (
	// errNoMatch ends an attempt without a claimable candidate.
	errNoMatch = errors.New("no acceptable candidate")
	// errRequesterGone ends the search when the requester was claimed or left meanwhile.
	errRequesterGone = errors.New("requester no longer queued")
)

type scoredCandidate struct {
	entry  queue.RankedEntry
	result compatibility.Result
}

type claimed struct {
	requester *queue.Entry
	candidate queue.Entry
	result    compatibility.Result
}

// FindMatch looks for the best acceptable partner for req and claims both
// users atomically. It returns nil, nil when nobody is acceptable right now
// or when every claim attempt lost a race; the requester then stays queued.
func (e *Engine) FindMatch(ctx context.Context, req queue.MatchingRequest) (*Match, error) {
	ctx, span := e.tracer.Start(ctx, "matching.FindMatch", trace.WithAttributes(
		attribute.String("user_id", req.UserID),
		attribute.String("session_type", string(req.SessionType)),
	))
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	requester, err := e.loadProfile(ctx, req.UserID)
	if err != nil {
		return nil, e.fail(span, "FindMatch", err)
	}

	// Hide the requester from concurrent searches while this one runs.
	marked, err := e.markClaiming(ctx, req.UserID)
	if err != nil {
		return nil, e.fail(span, "FindMatch", err)
	}
	if !marked {
		e.log.Debug("requester already mid-claim", logger.UserID(req.UserID))
		return nil, nil
	}
	defer e.releaseClaiming(ctx, req.UserID)

	initial, err := e.requesterEntry(ctx, req.UserID)
	if err != nil {
		return nil, e.fail(span, "FindMatch", err)
	}
	wasQueued := initial != nil

	var won *claimed
	err = e.retrier.Do(ctx, func(ctx context.Context) error {
		current, err := e.requesterEntry(ctx, req.UserID)
		if err != nil {
			return err
		}
		if wasQueued && current == nil {
			return errRequesterGone
		}
		won, err = e.attempt(ctx, requester, req, current)
		return err
	})

	switch {
	case err == nil:
	case errors.Is(err, errNoMatch):
		span.SetAttributes(attribute.Bool("matched", false))
		return nil, nil
	case errors.Is(err, errRequesterGone):
		e.log.Debug("requester left or was claimed during search", logger.UserID(req.UserID))
		return nil, nil
	case errors.Is(err, retry.ErrExhausted):
		e.log.Info("claim retries exhausted, no match now", logger.UserID(req.UserID))
		span.SetAttributes(attribute.Bool("matched", false))
		return nil, nil
	default:
		return nil, e.fail(span, "FindMatch", err)
	}

	match, err := e.finalize(ctx, req, won)
	if err != nil {
		return nil, e.fail(span, "FindMatch", err)
	}
	span.SetAttributes(
		attribute.Bool("matched", true),
		attribute.String("peer_id", match.UserB),
		attribute.Float64("score", match.Score.Total),
	)
	return match, nil
}

// attempt runs one fetch-score-claim round. A lost claim surfaces as a
// conflict so the retrier re-fetches.
func (e *Engine) attempt(ctx context.Context, requester *profile.Profile, req queue.MatchingRequest, current *queue.Entry) (*claimed, error) {
	opCtx, cancel := e.opCtx(ctx)
	candidates, err := e.store.NextCandidates(opCtx, queue.CandidateQuery{
		SessionTypes:  e.store.Policy().CompatibleTypes(req.SessionType),
		ExcludeUserID: req.UserID,
		Limit:         e.cfg.CandidateLimit,
	})
	cancel()
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errNoMatch
	}

	scored, err := e.scoreCandidates(ctx, requester, req, candidates)
	if err != nil {
		return nil, err
	}
	best := e.pick(scored)
	if best == nil {
		return nil, errNoMatch
	}

	candidateID := best.entry.UserID()
	marked, err := e.markClaiming(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if !marked {
		return nil, shared.ErrAlreadyClaimed
	}
	defer e.releaseClaiming(ctx, candidateID)

	reqClaim := queue.Claim{UserID: req.UserID}
	if current != nil {
		reqClaim = queue.ClaimOf(*current)
	}

	opCtx, cancel = e.opCtx(ctx)
	defer cancel()
	if err := e.store.ClaimPair(opCtx, reqClaim, queue.ClaimOf(best.entry.Entry)); err != nil {
		return nil, err
	}
	return &claimed{requester: current, candidate: best.entry.Entry, result: best.result}, nil
}

// scoreCandidates loads and scores candidates in parallel. Candidates whose
// profile is missing or unreadable are skipped.
func (e *Engine) scoreCandidates(ctx context.Context, requester *profile.Profile, req queue.MatchingRequest, candidates []queue.RankedEntry) ([]scoredCandidate, error) {
	results := make([]*scoredCandidate, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.ScoreConcurrency)

	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			p, err := e.loadProfile(gctx, c.UserID())
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if shared.IsNotFound(err) {
					e.log.Debug("skipping candidate without profile", logger.PeerID(c.UserID()))
				} else {
					e.log.Warn("skipping candidate, profile load failed", logger.PeerID(c.UserID()), logger.Err(err))
				}
				return nil
			}
			results[i] = &scoredCandidate{entry: c, result: e.scorer.Score(gctx, requester, p, req)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, shared.Infrastructure(domainName, "scoreCandidates", err)
	}

	out := make([]scoredCandidate, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// pick returns the highest-scoring acceptable candidate. scored is in rank
// order, so ties go to the higher-priority entry.
func (e *Engine) pick(scored []scoredCandidate) *scoredCandidate {
	var best *scoredCandidate
	for i := range scored {
		c := &scored[i]
		if !e.cfg.Thresholds.Accepts(c.result) {
			continue
		}
		if best == nil || c.result.Total > best.result.Total {
			best = c
		}
	}
	return best
}

// finalize creates the session for a won claim. If that fails both entries
// are put back as they were, except for a user who left or re-joined in the
// meantime.
func (e *Engine) finalize(ctx context.Context, req queue.MatchingRequest, won *claimed) (*Match, error) {
	candidateID := won.candidate.UserID()

	opCtx, cancel := e.opCtx(ctx)
	sessionID, err := e.sessions.CreateSession(opCtx, req.UserID, candidateID, req.SessionType)
	cancel()
	if err != nil {
		restore := []queue.Entry{won.candidate}
		if won.requester != nil {
			restore = append(restore, *won.requester)
		}
		rctx, rcancel := e.opCtx(context.WithoutCancel(ctx))
		defer rcancel()
		skipped, rerr := e.store.Restore(rctx, restore...)
		if rerr != nil {
			e.log.Error("failed to restore entries after session error",
				logger.UserID(req.UserID), logger.PeerID(candidateID), logger.Err(rerr))
		}
		for _, id := range skipped {
			e.log.Info("not restoring user who left or re-joined", logger.UserID(id))
		}
		e.log.Warn("session creation failed, entries restored",
			logger.UserID(req.UserID), logger.PeerID(candidateID), logger.Err(err))
		return nil, shared.WrapError(domainName, "FindMatch", shared.ErrSessionCreate, "session creation failed", err)
	}

	now := e.store.Now()
	e.recordWait(ctx, now.Sub(won.candidate.EnqueuedAt))
	if won.requester != nil {
		e.recordWait(ctx, now.Sub(won.requester.EnqueuedAt))
	}

	match := &Match{
		SessionID:   sessionID,
		UserA:       req.UserID,
		UserB:       candidateID,
		SessionType: req.SessionType,
		Score:       won.result,
		CreatedAt:   now,
	}

	e.publish(shared.NewMatchFoundEvent(
		sessionID, match.UserA, match.UserB, string(match.SessionType), match.Score.Total, match.Score.Components(),
	))
	if won.requester != nil {
		e.publish(shared.NewQueueLeftEvent(req.UserID, shared.LeftReasonMatched))
	}
	e.publish(shared.NewQueueLeftEvent(candidateID, shared.LeftReasonMatched))

	e.log.Info("match found",
		logger.UserID(req.UserID),
		logger.PeerID(candidateID),
		logger.SessionID(sessionID),
		logger.Score(match.Score.Total),
	)
	return match, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (e *Engine) loadProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	opCtx, cancel := e.opCtx(ctx)
	defer cancel()

	p, err := e.profiles.GetByID(opCtx, userID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, shared.Infrastructure("profile", "GetByID", err)
	}
	if p == nil {
		return nil, shared.ErrProfileNotFound
	}
	return p, nil
}

// requesterEntry returns nil when the requester is not queued.
func (e *Engine) requesterEntry(ctx context.Context, userID string) (*queue.Entry, error) {
	opCtx, cancel := e.opCtx(ctx)
	defer cancel()

	entry, err := e.store.Get(opCtx, userID)
	if shared.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (e *Engine) markClaiming(ctx context.Context, userID string) (bool, error) {
	opCtx, cancel := e.opCtx(ctx)
	defer cancel()
	return e.store.MarkClaiming(opCtx, userID)
}

// releaseClaiming runs even when ctx is already cancelled.
func (e *Engine) releaseClaiming(ctx context.Context, userID string) {
	opCtx, cancel := e.opCtx(context.WithoutCancel(ctx))
	defer cancel()
	if err := e.store.ReleaseClaiming(opCtx, userID); err != nil {
		e.log.Warn("failed to release claim marker", logger.UserID(userID), logger.Err(err))
	}
}

func (e *Engine) recordWait(ctx context.Context, wait time.Duration) {
	opCtx, cancel := e.opCtx(ctx)
	defer cancel()
	if err := e.store.RecordServiceTime(opCtx, wait); err != nil {
		e.log.Warn("failed to record service time", logger.Err(err))
	}
}

func (e *Engine) publish(event shared.Event) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(event); err != nil {
		e.log.Warn("failed to publish event",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
}

// fail records err on the span and lifts anything outside the domain
// taxonomy into an InfrastructureError.
func (e *Engine) fail(span trace.Span, op string, err error) error {
	if !shared.IsValidation(err) && !shared.IsNotFound(err) && !shared.IsInfrastructure(err) && !shared.IsConflict(err) {
		err = shared.Infrastructure(domainName, op, err)
	}
	if shared.IsInfrastructure(err) {
		e.log.Warn("operation failed", logger.Operation(op), logger.Err(err))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

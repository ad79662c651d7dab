package queue

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/logger"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/timeutil"
)

const domainName = "queue"

// Store is the priority queue of waiting users. It owns priority, expiry and
// ranking; persistence and atomicity are delegated to a Backend.
type Store struct {
	backend    Backend
	policy     Policy
	clock      timeutil.Clock
	log        *logger.Logger
	newVersion func() string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source.
func WithClock(c timeutil.Clock) StoreOption {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) StoreOption {
	return func(s *Store) { s.log = l }
}

// WithVersionFunc overrides how entry versions are generated.
func WithVersionFunc(fn func() string) StoreOption {
	return func(s *Store) { s.newVersion = fn }
}

// NewStore creates a Store over backend.
func NewStore(backend Backend, policy Policy, opts ...StoreOption) *Store {
	s := &Store{
		backend:    backend,
		policy:     policy,
		clock:      timeutil.SystemClock{},
		log:        logger.Nop(),
		newVersion: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("queue_store"))
	return s
}

// Policy returns the store's policy.
func (s *Store) Policy() Policy { return s.policy }

// Now returns the store's notion of the current time.
func (s *Store) Now() time.Time { return s.clock.Now() }

// Upsert inserts or replaces the user's entry. Re-joining resets EnqueuedAt.
func (s *Store) Upsert(ctx context.Context, req MatchingRequest) (Entry, error) {
	if err := req.Validate(); err != nil {
		return Entry{}, err
	}
	now := s.clock.Now()
	e := Entry{Request: req, EnqueuedAt: now, Version: s.newVersion()}
	if err := s.backend.Put(ctx, e); err != nil {
		return Entry{}, wrap("Upsert", err)
	}
	if err := s.backend.RecordEnqueue(ctx, now); err != nil {
		s.log.Warn("failed to record enqueue hour", logger.UserID(req.UserID), logger.Err(err))
	}
	return e, nil
}

// Restore re-inserts claimed entries exactly as they were. A user who asked
// to leave after the claim, or who re-joined since, is skipped; the skipped
// IDs are returned.
func (s *Store) Restore(ctx context.Context, entries ...Entry) ([]string, error) {
	var skipped []string
	for _, e := range entries {
		if e.Version == "" {
			continue
		}
		ok, err := s.backend.PutIfAbsent(ctx, e)
		if err != nil {
			return skipped, wrap("Restore", err)
		}
		if !ok {
			skipped = append(skipped, e.UserID())
		}
	}
	return skipped, nil
}

// Remove deletes the user's entry. Removing an absent user is a no-op for
// the caller, but it leaves a left marker so a claim that is rolled back
// does not queue the user again.
func (s *Store) Remove(ctx context.Context, userID string) (bool, error) {
	ok, err := s.backend.Delete(ctx, userID)
	if err != nil {
		return false, wrap("Remove", err)
	}
	if !ok {
		if err := s.backend.MarkLeft(ctx, userID, s.policy.leftMarkerTTL()); err != nil {
			s.log.Warn("failed to record leave", logger.UserID(userID), logger.Err(err))
		}
	}
	return ok, nil
}

// Get returns the live entry for userID. Expired entries are reported as
// shared.ErrEntryNotFound even before the sweep removes them.
func (s *Store) Get(ctx context.Context, userID string) (Entry, error) {
	e, err := s.backend.Get(ctx, userID)
	if err != nil {
		return Entry{}, wrap("Get", err)
	}
	if s.policy.IsExpired(e, s.clock.Now()) {
		return Entry{}, shared.ErrEntryNotFound
	}
	return e, nil
}

// NextCandidates returns live, unclaimed entries of the requested types,
// highest priority first.
func (s *Store) NextCandidates(ctx context.Context, q CandidateQuery) ([]RankedEntry, error) {
	entries, err := s.backend.List(ctx)
	if err != nil {
		return nil, wrap("NextCandidates", err)
	}
	claiming, err := s.backend.Claiming(ctx)
	if err != nil {
		return nil, wrap("NextCandidates", err)
	}

	types := make(map[SessionType]struct{}, len(q.SessionTypes))
	for _, t := range q.SessionTypes {
		types[t] = struct{}{}
	}

	now := s.clock.Now()
	filtered := entries[:0:0]
	for _, e := range entries {
		if e.UserID() == q.ExcludeUserID {
			continue
		}
		if _, busy := claiming[e.UserID()]; busy {
			continue
		}
		if _, ok := types[e.Request.SessionType]; !ok {
			continue
		}
		filtered = append(filtered, e)
	}

	ranked := s.rank(filtered, now)
	if q.Limit > 0 && len(ranked) > q.Limit {
		ranked = ranked[:q.Limit]
	}
	return ranked, nil
}

// Ranked returns every live entry ranked by priority.
func (s *Store) Ranked(ctx context.Context) ([]RankedEntry, error) {
	entries, err := s.backend.List(ctx)
	if err != nil {
		return nil, wrap("Ranked", err)
	}
	return s.rank(entries, s.clock.Now()), nil
}

// rank drops expired entries and orders the rest. Ties break on the earlier
// enqueue time, then user id, so the order is total.
func (s *Store) rank(entries []Entry, now time.Time) []RankedEntry {
	out := make([]RankedEntry, 0, len(entries))
	for _, e := range entries {
		if s.policy.IsExpired(e, now) {
			continue
		}
		out = append(out, RankedEntry{
			Entry:     e,
			Priority:  s.policy.Priority(e, now),
			ExpiresAt: s.policy.ExpiresAt(e),
		})
	}
	sort.Slice(out, func(i, j int) bool { return ranksBefore(out[i], out[j]) })
	for i := range out {
		out[i].Position = i + 1
	}
	return out
}

func ranksBefore(a, b RankedEntry) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.UserID() < b.UserID()
}

// ClaimPair atomically removes the requester (if queued) and the candidate
// at the versions the caller observed.
func (s *Store) ClaimPair(ctx context.Context, requester, candidate Claim) error {
	if err := s.backend.DeletePair(ctx, requester, candidate); err != nil {
		return wrap("ClaimPair", err)
	}
	return nil
}

// MarkClaiming hides userID from candidate queries for the policy's marker TTL.
func (s *Store) MarkClaiming(ctx context.Context, userID string) (bool, error) {
	ok, err := s.backend.MarkClaiming(ctx, userID, s.policy.ClaimMarkerTTL)
	if err != nil {
		return false, wrap("MarkClaiming", err)
	}
	return ok, nil
}

// ReleaseClaiming clears the marker set by MarkClaiming.
func (s *Store) ReleaseClaiming(ctx context.Context, userID string) error {
	if err := s.backend.ReleaseClaiming(ctx, userID); err != nil {
		return wrap("ReleaseClaiming", err)
	}
	return nil
}

// RecordServiceTime stores how long a matched user waited.
func (s *Store) RecordServiceTime(ctx context.Context, wait time.Duration) error {
	if wait < 0 {
		wait = 0
	}
	if err := s.backend.RecordServiceTime(ctx, wait); err != nil {
		return wrap("RecordServiceTime", err)
	}
	return nil
}

// Status returns the user's position and wait estimate, or nil when the user
// is not queued or their entry has expired.
func (s *Store) Status(ctx context.Context, userID string) (*Status, error) {
	e, err := s.Get(ctx, userID)
	if shared.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entries, err := s.backend.List(ctx)
	if err != nil {
		return nil, wrap("Status", err)
	}

	now := s.clock.Now()
	self := RankedEntry{Entry: e, Priority: s.policy.Priority(e, now), ExpiresAt: s.policy.ExpiresAt(e)}
	ahead, competing := 0, 0
	for _, other := range entries {
		if !s.policy.Competes(e.Request.SessionType, other.Request.SessionType) || s.policy.IsExpired(other, now) {
			continue
		}
		competing++
		if other.UserID() == userID {
			continue
		}
		r := RankedEntry{Entry: other, Priority: s.policy.Priority(other, now)}
		if ranksBefore(r, self) {
			ahead++
		}
	}

	avg, _ := s.averageServiceTime(ctx)
	position := ahead + 1
	return &Status{
		UserID:        userID,
		SessionType:   e.Request.SessionType,
		Urgency:       e.Request.Urgency,
		Position:      position,
		EstimatedWait: time.Duration(position) * avg,
		Priority:      self.Priority,
		EnqueuedAt:    e.EnqueuedAt,
		ExpiresAt:     self.ExpiresAt,
		Competing:     competing,
	}, nil
}

// averageServiceTime falls back to the policy default with no samples or on
// a backend error; the error is logged, not returned.
func (s *Store) averageServiceTime(ctx context.Context) (time.Duration, int) {
	samples, err := s.backend.ServiceTimes(ctx)
	if err != nil {
		s.log.Warn("failed to read service times", logger.Err(err))
		return s.policy.DefaultServiceTime, 0
	}
	if len(samples) == 0 {
		return s.policy.DefaultServiceTime, 0
	}
	var sum time.Duration
	for _, d := range samples {
		sum += d
	}
	return sum / time.Duration(len(samples)), len(samples)
}

// Stats returns an aggregate snapshot of the live queue.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	entries, err := s.backend.List(ctx)
	if err != nil {
		return nil, wrap("Stats", err)
	}
	hours, err := s.backend.EnqueueHistogram(ctx)
	if err != nil {
		return nil, wrap("Stats", err)
	}

	now := s.clock.Now()
	st := &Stats{
		ByType:      make(map[SessionType]int, len(AllSessionTypes)),
		ByUrgency:   make(map[Urgency]int, len(AllUrgencies)),
		PeakHours:   hours,
		GeneratedAt: now,
	}
	for _, t := range AllSessionTypes {
		st.ByType[t] = 0
	}
	for _, u := range AllUrgencies {
		st.ByUrgency[u] = 0
	}

	var waited time.Duration
	for _, e := range entries {
		if s.policy.IsExpired(e, now) {
			continue
		}
		st.Total++
		st.ByType[e.Request.SessionType]++
		st.ByUrgency[e.Request.Urgency]++
		waited += now.Sub(e.EnqueuedAt)
		if st.OldestEnqueuedAt.IsZero() || e.EnqueuedAt.Before(st.OldestEnqueuedAt) {
			st.OldestEnqueuedAt = e.EnqueuedAt
		}
	}
	if st.Total > 0 {
		st.AverageWait = waited / time.Duration(st.Total)
	}
	st.AverageServiceTime, st.ServiceSamples = s.averageServiceTime(ctx)

	for h := 1; h < len(hours); h++ {
		if hours[h] > hours[st.BusiestHour] {
			st.BusiestHour = h
		}
	}
	return st, nil
}

// SweepExpired removes every expired entry and returns what it removed.
// Deletes are conditioned on the observed version, so a user who re-joined
// between the scan and the delete keeps the new entry.
func (s *Store) SweepExpired(ctx context.Context) ([]Entry, error) {
	entries, err := s.backend.List(ctx)
	if err != nil {
		return nil, wrap("SweepExpired", err)
	}
	now := s.clock.Now()
	var removed []Entry
	for _, e := range entries {
		if !s.policy.IsExpired(e, now) {
			continue
		}
		ok, err := s.backend.DeleteIfVersion(ctx, e.UserID(), e.Version)
		if err != nil {
			return removed, wrap("SweepExpired", err)
		}
		if ok {
			removed = append(removed, e)
		}
	}
	return removed, nil
}

// wrap passes through domain kinds the caller branches on and marks
// everything else as an infrastructure failure.
func wrap(op string, err error) error {
	if shared.IsNotFound(err) || shared.IsConflict(err) || shared.IsValidation(err) || shared.IsInfrastructure(err) {
		return err
	}
	return shared.Infrastructure(domainName, op, err)
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/profile"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/queue"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
)

// Session is a created session record.
type Session struct {
	ID          string
	UserA       string
	UserB       string
	SessionType queue.SessionType
	CreatedAt   time.Time
	RatingByA   shared.Rating
	RatingByB   shared.Rating
}

// SessionStore creates sessions and answers history lookups from them.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
	now      func() time.Time
}

var _ profile.HistoryLookup = (*SessionStore)(nil)

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// CreateSession records a new session and returns its id.
func (s *SessionStore) CreateSession(ctx context.Context, userA, userB string, st queue.SessionType) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &Session{ID: id, UserA: userA, UserB: userB, SessionType: st, CreatedAt: s.now()}
	s.order = append(s.order, id)
	s.mu.Unlock()
	return id, nil
}

// Rate records feedback for a session. by must be one of its participants.
func (s *SessionStore) Rate(ctx context.Context, sessionID, by string, r shared.Rating) error {
	if !r.IsValid() {
		return shared.Validation("session", "Rate", "rating must be between 1 and 5")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return shared.NewDomainError("session", "Rate", shared.ErrNotFound, "session not found")
	}
	switch by {
	case sess.UserA:
		sess.RatingByA = r
	case sess.UserB:
		sess.RatingByB = r
	default:
		return shared.Validation("session", "Rate", "rater did not take part in the session")
	}
	return nil
}

// Sessions returns every session in creation order.
func (s *SessionStore) Sessions() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.sessions[id])
	}
	return out
}

// PriorSessions implements profile.HistoryLookup.
func (s *SessionStore) PriorSessions(ctx context.Context, userA, userB string, since time.Time) ([]profile.SessionRating, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []profile.SessionRating
	for _, id := range s.order {
		sess := s.sessions[id]
		if sess.CreatedAt.Before(since) {
			continue
		}
		switch {
		case sess.UserA == userA && sess.UserB == userB:
			out = append(out, profile.SessionRating{SessionID: id, RatingByA: sess.RatingByA, RatingByB: sess.RatingByB, OccurredAt: sess.CreatedAt})
		case sess.UserA == userB && sess.UserB == userA:
			out = append(out, profile.SessionRating{SessionID: id, RatingByA: sess.RatingByB, RatingByB: sess.RatingByA, OccurredAt: sess.CreatedAt})
		}
	}
	return out, nil
}

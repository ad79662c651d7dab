package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/profile"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/queue"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/retry"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// SessionRepository creates sessions, records ratings and answers history
// lookups for scoring.
type SessionRepository struct {
	conn  *Connection
	clock timeutil.Clock
	retry *retry.Retrier
}

var _ profile.HistoryLookup = (*SessionRepository)(nil)

// NewSessionRepository creates a SessionRepository.
func NewSessionRepository(conn *Connection) *SessionRepository {
	return &SessionRepository{conn: conn, clock: timeutil.SystemClock{}, retry: retry.New(retry.DatabasePolicy(IsTransient))}
}

// CreateSession inserts a session and returns its id.
func (r *SessionRepository) CreateSession(ctx context.Context, userA, userB string, st queue.SessionType) (string, error) {
	id := uuid.New()
	_, err := r.conn.Exec(ctx,
		`INSERT INTO sessions (id, user_a, user_b, session_type, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id.String(), userA, userB, string(st), r.clock.Now().UTC(),
	)
	if err != nil {
		if IsCheckViolation(err) {
			return "", shared.Validation("session", "Create", err.Error())
		}
		return "", shared.Infrastructure("session", "Create", err)
	}
	return id.String(), nil
}

// Rate records (or replaces) by's rating of a session they took part in.
func (r *SessionRepository) Rate(ctx context.Context, sessionID, by string, rating shared.Rating) error {
	const op = "Rate"
	if !rating.IsValid() {
		return shared.Validation("session", op, "rating must be between 1 and 5")
	}
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return shared.Validation("session", op, "session id must be a uuid")
	}

	tag, err := r.conn.Exec(ctx, `
		INSERT INTO session_ratings (session_id, rater, rating, rated_at)
		SELECT id, $2, $3, $4 FROM sessions WHERE id = $1 AND $2::text IN (user_a, user_b)
		ON CONFLICT (session_id, rater) DO UPDATE SET rating = EXCLUDED.rating, rated_at = EXCLUDED.rated_at`,
		id.String(), by, int16(rating), r.clock.Now().UTC(),
	)
	if err != nil {
		return shared.Infrastructure("session", op, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewDomainError("session", op, shared.ErrNotFound, "no session with that participant")
	}
	return nil
}

// PriorSessions implements profile.HistoryLookup. RatingByA is userA's rating
// whichever side of the stored row userA was on.
func (r *SessionRepository) PriorSessions(ctx context.Context, userA, userB string, since time.Time) ([]profile.SessionRating, error) {
	var out []profile.SessionRating
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.priorSessions(ctx, userA, userB, since)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SessionRepository) priorSessions(ctx context.Context, userA, userB string, since time.Time) ([]profile.SessionRating, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT s.id, s.created_at, ra.rating, rb.rating
		FROM sessions s
		LEFT JOIN session_ratings ra ON ra.session_id = s.id AND ra.rater = $1
		LEFT JOIN session_ratings rb ON rb.session_id = s.id AND rb.rater = $2
		WHERE LEAST(s.user_a, s.user_b) = LEAST($1::text, $2::text)
		  AND GREATEST(s.user_a, s.user_b) = GREATEST($1::text, $2::text)
		  AND s.created_at >= $3
		ORDER BY s.created_at`,
		userA, userB, since,
	)
	if err != nil {
		return nil, shared.Infrastructure("session", "PriorSessions", err)
	}
	defer rows.Close()

	var out []profile.SessionRating
	for rows.Next() {
		var (
			id     string
			at     time.Time
			ra, rb *int16
		)
		if err := rows.Scan(&id, &at, &ra, &rb); err != nil {
			return nil, shared.Infrastructure("session", "PriorSessions", err)
		}
		out = append(out, profile.SessionRating{
			SessionID:  id,
			RatingByA:  ratingOrZero(ra),
			RatingByB:  ratingOrZero(rb),
			OccurredAt: at,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Infrastructure("session", "PriorSessions", err)
	}
	return out, nil
}

func ratingOrZero(v *int16) shared.Rating {
	if v == nil {
		return 0
	}
	return shared.Rating(*v)
}

package profile

import (
	"context"
	"time"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository is the read side of the profile data store.
type Repository interface {
	// GetByID returns the profile snapshot.
	// Returns shared.ErrProfileNotFound if the user does not exist.
	GetByID(ctx context.Context, userID string) (*Profile, error)
}

// HistoryLookup returns prior sessions between two users.
type HistoryLookup interface {
	// PriorSessions returns the sessions between userA and userB since the
	// given time, in either direction. RatingByA is always userA's rating.
	PriorSessions(ctx context.Context, userA, userB string, since time.Time) ([]SessionRating, error)
}

// Writer is implemented by stores that also accept profile upserts. The
// seed loader uses it; the matcher itself never writes profiles.
type Writer interface {
	Save(ctx context.Context, p *Profile) error
}

// SessionRater records a participant's feedback on a session. Ratings are
// what HistoryLookup later returns.
type SessionRater interface {
	Rate(ctx context.Context, sessionID, by string, rating shared.Rating) error
}

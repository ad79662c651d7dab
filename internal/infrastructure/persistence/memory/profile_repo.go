package memory

import (
	"context"
	"sync"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/profile"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
)

// ProfileRepository is a map-backed profile.Repository.
type ProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]*profile.Profile
}

var (
	_ profile.Repository = (*ProfileRepository)(nil)
	_ profile.Writer     = (*ProfileRepository)(nil)
)

// NewProfileRepository creates a repository preloaded with profiles.
func NewProfileRepository(profiles ...*profile.Profile) *ProfileRepository {
	r := &ProfileRepository{profiles: make(map[string]*profile.Profile, len(profiles))}
	for _, p := range profiles {
		r.profiles[p.UserID] = p
	}
	return r
}

// GetByID returns the stored snapshot.
func (r *ProfileRepository) GetByID(ctx context.Context, userID string) (*profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return p, nil
}

// Save stores or replaces a profile.
func (r *ProfileRepository) Save(ctx context.Context, p *profile.Profile) error {
	if p == nil || p.UserID == "" {
		return shared.ErrInvalidUserID
	}
	r.mu.Lock()
	r.profiles[p.UserID] = p
	r.mu.Unlock()
	return nil
}

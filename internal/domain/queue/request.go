package queue

import (
	"fmt"
	"strings"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/profile"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
)

// SessionType is the kind of session a user is asking for.
type SessionType string

const (
	SessionLearning      SessionType = "learning"
	SessionTeaching      SessionType = "teaching"
	SessionCollaboration SessionType = "collaboration"
)

// AllSessionTypes lists every session type in a stable order.
var AllSessionTypes = []SessionType{SessionLearning, SessionTeaching, SessionCollaboration}

// IsValid reports whether the type is known.
func (s SessionType) IsValid() bool {
	switch s {
	case SessionLearning, SessionTeaching, SessionCollaboration:
		return true
	}
	return false
}

func (s SessionType) String() string { return string(s) }

// Urgency controls base priority and time-to-live.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// AllUrgencies lists every urgency in a stable order.
var AllUrgencies = []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh}

// IsValid reports whether the urgency is known.
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

func (u Urgency) String() string { return string(u) }

// MatchingRequest is a user's ask to be paired.
type MatchingRequest struct {
	UserID          string      `json:"user_id"`
	PreferredSkills []string    `json:"preferred_skills"`
	SessionType     SessionType `json:"session_type"`
	// MaxDuration in minutes.
	MaxDuration int     `json:"max_duration"`
	Urgency     Urgency `json:"urgency"`
}

// Validate checks the request and returns a validation DomainError describing
// the first problem found.
func (r MatchingRequest) Validate() error {
	const op = "Validate"
	if strings.TrimSpace(r.UserID) == "" {
		return shared.ErrInvalidUserID
	}
	if !r.SessionType.IsValid() {
		return shared.Validation("queue", op, fmt.Sprintf("unknown session type %q", r.SessionType))
	}
	if !r.Urgency.IsValid() {
		return shared.Validation("queue", op, fmt.Sprintf("unknown urgency %q", r.Urgency))
	}
	if r.MaxDuration <= 0 {
		return shared.Validation("queue", op, "max duration must be positive")
	}
	seen := make(map[string]struct{}, len(r.PreferredSkills))
	for _, s := range r.PreferredSkills {
		k := profile.SkillKey(s)
		if k == "" {
			return shared.Validation("queue", op, "preferred skill names must not be empty")
		}
		if _, dup := seen[k]; dup {
			return shared.Validation("queue", op, fmt.Sprintf("duplicate preferred skill %q", s))
		}
		seen[k] = struct{}{}
	}
	return nil
}

// PreferredSet returns the normalized preferred-skill names.
func (r MatchingRequest) PreferredSet() map[string]struct{} {
	out := make(map[string]struct{}, len(r.PreferredSkills))
	for _, s := range r.PreferredSkills {
		out[profile.SkillKey(s)] = struct{}{}
	}
	return out
}

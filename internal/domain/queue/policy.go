package queue

import (
	"fmt"
	"time"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/timeutil"
)

// Policy holds the queue ordering and expiry rules. It is immutable after
// construction and safe for concurrent use.
type Policy struct {
	BasePriority        map[Urgency]float64
	WaitWeightPerMinute float64
	CollaborationBonus  float64
	TTL                 map[Urgency]time.Duration
	// Compatible lists, per requester type, the candidate types it may pair with.
	Compatible map[SessionType][]SessionType
	// DefaultServiceTime is used for wait estimates before any match is observed.
	DefaultServiceTime time.Duration
	// ClaimMarkerTTL bounds how long a requester is hidden while searching.
	ClaimMarkerTTL time.Duration
	// LeftMarkerTTL is how long a leave request against a claimed user keeps
	// a failed match from putting them back.
	LeftMarkerTTL time.Duration
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		BasePriority: map[Urgency]float64{
			UrgencyHigh:   1000,
			UrgencyMedium: 500,
			UrgencyLow:    100,
		},
		WaitWeightPerMinute: 2,
		CollaborationBonus:  50,
		TTL: map[Urgency]time.Duration{
			UrgencyHigh:   15 * time.Minute,
			UrgencyMedium: 30 * time.Minute,
			UrgencyLow:    60 * time.Minute,
		},
		Compatible: map[SessionType][]SessionType{
			SessionLearning:      {SessionTeaching, SessionCollaboration},
			SessionTeaching:      {SessionLearning, SessionCollaboration},
			SessionCollaboration: {SessionCollaboration, SessionLearning, SessionTeaching},
		},
		DefaultServiceTime: 3 * time.Minute,
		ClaimMarkerTTL:     5 * time.Second,
		LeftMarkerTTL:      time.Minute,
	}
}

// Validate checks that every urgency and session type is covered.
func (p Policy) Validate() error {
	for _, u := range AllUrgencies {
		if _, ok := p.BasePriority[u]; !ok {
			return fmt.Errorf("queue policy: missing base priority for %q", u)
		}
		if p.TTL[u] <= 0 {
			return fmt.Errorf("queue policy: ttl for %q must be positive", u)
		}
	}
	for st, targets := range p.Compatible {
		if !st.IsValid() {
			return fmt.Errorf("queue policy: unknown session type %q", st)
		}
		for _, t := range targets {
			if !t.IsValid() {
				return fmt.Errorf("queue policy: %q lists unknown session type %q", st, t)
			}
		}
	}
	for _, st := range AllSessionTypes {
		if len(p.Compatible[st]) == 0 {
			return fmt.Errorf("queue policy: %q has no compatible session types", st)
		}
	}
	if p.WaitWeightPerMinute <= 0 {
		return fmt.Errorf("queue policy: wait weight must be positive")
	}
	if p.DefaultServiceTime <= 0 {
		return fmt.Errorf("queue policy: default service time must be positive")
	}
	return nil
}

// Priority computes base(urgency) + wait*minutes + collaboration bonus.
// It grows strictly with wait time, so later reads never rank an entry lower.
func (p Policy) Priority(e Entry, now time.Time) float64 {
	prio := p.BasePriority[e.Request.Urgency]
	prio += p.WaitWeightPerMinute * timeutil.MinutesBetween(e.EnqueuedAt, now)
	if e.Request.SessionType == SessionCollaboration {
		prio += p.CollaborationBonus
	}
	return prio
}

// ExpiresAt returns the instant the entry stops being visible.
func (p Policy) ExpiresAt(e Entry) time.Time {
	return e.EnqueuedAt.Add(p.TTL[e.Request.Urgency])
}

// IsExpired reports whether now is at or past the entry's expiry.
func (p Policy) IsExpired(e Entry, now time.Time) bool {
	return !now.Before(p.ExpiresAt(e))
}

func (p Policy) leftMarkerTTL() time.Duration {
	if p.LeftMarkerTTL > 0 {
		return p.LeftMarkerTTL
	}
	return time.Minute
}

// CompatibleTypes returns the candidate types a requester may pair with.
func (p Policy) CompatibleTypes(st SessionType) []SessionType {
	return p.Compatible[st]
}

// Competes reports whether entries of types a and b wait for the same
// partners, i.e. their compatible types overlap.
func (p Policy) Competes(a, b SessionType) bool {
	if a == b {
		return true
	}
	for _, x := range p.Compatible[a] {
		for _, y := range p.Compatible[b] {
			if x == y {
				return true
			}
		}
	}
	return false
}

// AreCompatible reports whether a requester of type a may pair with b.
func (p Policy) AreCompatible(a, b SessionType) bool {
	for _, t := range p.Compatible[a] {
		if t == b {
			return true
		}
	}
	return false
}

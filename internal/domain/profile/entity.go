package profile

import (
	"strings"
	"time"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Profile is a read-only snapshot of a user as seen by the matcher.
// It is loaded once per operation and never mutated afterwards.
type Profile struct {
	UserID      string
	Skills      []Skill
	Preferences *Preferences
	Stats       *Stats
}

// Skill is a named proficiency.
type Skill struct {
	Name         string
	Level        shared.SkillLevel
	Verified     bool
	Endorsements int
}

// Key returns the normalized name used for matching: trimmed and lower-cased.
func (s Skill) Key() string {
	return SkillKey(s.Name)
}

// SkillKey normalizes a skill name.
func SkillKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CommunicationStyle is how a user prefers to interact in a session.
type CommunicationStyle string

const (
	StyleFormal   CommunicationStyle = "formal"
	StyleCasual   CommunicationStyle = "casual"
	StyleBalanced CommunicationStyle = "balanced"
)

// IsValid reports whether the style is one of the known values.
func (c CommunicationStyle) IsValid() bool {
	switch c {
	case StyleFormal, StyleCasual, StyleBalanced:
		return true
	}
	return false
}

// Preferences holds user-controlled matching preferences.
type Preferences struct {
	PreferredSessionTypes []string
	// MaxSessionDuration in minutes. Zero means unknown.
	MaxSessionDuration int
	CommunicationStyle CommunicationStyle
	// Timezone is an IANA name or a fixed "UTC+HH:MM" offset.
	Timezone     string
	Availability WeeklySchedule
	Languages    []string
}

// Stats is the user's platform history.
type Stats struct {
	TotalSessions int
	AverageRating float64
	CurrentStreak int
	CreatedAt     time.Time
	LastActiveAt  time.Time
}

// SkillByKey returns the user's skill with the given normalized name.
func (p *Profile) SkillByKey(key string) (Skill, bool) {
	if p == nil {
		return Skill{}, false
	}
	for _, s := range p.Skills {
		if s.Key() == key {
			return s, true
		}
	}
	return Skill{}, false
}

// Timezone returns the configured timezone or "".
func (p *Profile) Timezone() string {
	if p == nil || p.Preferences == nil {
		return ""
	}
	return p.Preferences.Timezone
}

// Availability returns the weekly schedule or nil.
func (p *Profile) Availability() WeeklySchedule {
	if p == nil || p.Preferences == nil {
		return nil
	}
	return p.Preferences.Availability
}

// ══════════════════════════════════════════════════════════════════════════════
// AVAILABILITY
// ══════════════════════════════════════════════════════════════════════════════

// TimeSlot is a half-open time-of-day interval, "HH:MM" to "HH:MM".
type TimeSlot struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// Minutes returns the slot bounds as minutes after midnight.
// ok is false for malformed or empty slots.
func (t TimeSlot) Minutes() (start, end int, ok bool) {
	start, err := timeutil.ParseClock(t.Start)
	if err != nil {
		return 0, 0, false
	}
	end, err = timeutil.ParseClock(t.End)
	if err != nil || end <= start {
		return 0, 0, false
	}
	return start, end, true
}

// Duration returns the slot length in minutes, or 0 when malformed.
func (t TimeSlot) Duration() int {
	s, e, ok := t.Minutes()
	if !ok {
		return 0
	}
	return e - s
}

// WeeklySchedule maps each weekday to its ordered, non-overlapping slots.
type WeeklySchedule map[time.Weekday][]TimeSlot

// TotalMinutes sums the valid slot lengths across the week.
func (w WeeklySchedule) TotalMinutes() int {
	total := 0
	for _, slots := range w {
		for _, s := range slots {
			total += s.Duration()
		}
	}
	return total
}

// IsEmpty reports whether the schedule has no usable time.
func (w WeeklySchedule) IsEmpty() bool {
	return w.TotalMinutes() == 0
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION HISTORY
// ══════════════════════════════════════════════════════════════════════════════

// SessionRating is the feedback pair recorded after a prior session between
// two users. Either side may be missing (zero).
type SessionRating struct {
	SessionID  string
	RatingByA  shared.Rating
	RatingByB  shared.Rating
	OccurredAt time.Time
}

// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

// ═══════════════════════════════════════════════════════════════════════════
// SkillLevel Value Object
// ═══════════════════════════════════════════════════════════════════════════

// SkillLevel is a self-assessed or verified proficiency on a 1-5 scale.
type SkillLevel int

const (
	MinSkillLevel SkillLevel = 1
	MaxSkillLevel SkillLevel = 5
)

// IsValid checks if the level is within range.
func (l SkillLevel) IsValid() bool {
	return l >= MinSkillLevel && l <= MaxSkillLevel
}

// Int returns the underlying int value.
func (l SkillLevel) Int() int {
	return int(l)
}

// ═══════════════════════════════════════════════════════════════════════════
// Rating Value Object (for session feedback)
// ═══════════════════════════════════════════════════════════════════════════

// Rating represents a rating value (1-5 stars).
type Rating int

const (
	MinRating Rating = 1
	MaxRating Rating = 5
)

// IsValid checks if the rating is within valid range.
func (r Rating) IsValid() bool {
	return r >= MinRating && r <= MaxRating
}

// Int returns the underlying int value.
func (r Rating) Int() int {
	return int(r)
}

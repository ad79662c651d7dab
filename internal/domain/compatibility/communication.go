package compatibility

import (
	"math"
	"strings"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/profile"
)

const (
	styleWeight    = 0.5
	languageWeight = 0.3
	durationWeight = 0.2

	// durationSpread is the difference in minutes at which duration fit hits zero.
	durationSpread = 120.0
)

// CommunicationCompatibility blends style, language and session length fit.
// Nil preferences on either side score Neutral.
func CommunicationCompatibility(a, b *profile.Preferences) float64 {
	if a == nil || b == nil {
		return Neutral
	}
	return clamp01(styleWeight*StyleCompatibility(a.CommunicationStyle, b.CommunicationStyle) +
		languageWeight*LanguageCompatibility(a.Languages, b.Languages) +
		durationWeight*DurationCompatibility(a.MaxSessionDuration, b.MaxSessionDuration))
}

// StyleCompatibility: equal styles 1, balanced with anything 0.75,
// formal against casual 0.3.
func StyleCompatibility(a, b profile.CommunicationStyle) float64 {
	if !a.IsValid() || !b.IsValid() {
		return Neutral
	}
	switch {
	case a == b:
		return 1
	case a == profile.StyleBalanced || b == profile.StyleBalanced:
		return 0.75
	default:
		return 0.3
	}
}

// LanguageCompatibility is high only when the users share a language.
func LanguageCompatibility(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return Neutral
	}
	set := make(map[string]struct{}, len(a))
	for _, l := range a {
		set[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}
	for _, l := range b {
		if _, ok := set[strings.ToLower(strings.TrimSpace(l))]; ok {
			return 1
		}
	}
	return 0.2
}

// DurationCompatibility compares preferred maximum session lengths.
func DurationCompatibility(a, b int) float64 {
	if a <= 0 || b <= 0 {
		return Neutral
	}
	return 1 - math.Min(math.Abs(float64(a-b))/durationSpread, 1)
}

package compatibility

import (
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/profile"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/timeutil"
)

// SlotOverlapMinutes returns the minutes two slots share. Adjacent slots
// share nothing; malformed slots share nothing.
func SlotOverlapMinutes(a, b profile.TimeSlot) int {
	sa, ea, ok := a.Minutes()
	if !ok {
		return 0
	}
	sb, eb, ok := b.Minutes()
	if !ok {
		return 0
	}
	return timeutil.IntervalOverlap(sa, ea, sb, eb)
}

// OverlapMinutes sums slot overlaps per weekday across the week.
func OverlapMinutes(a, b profile.WeeklySchedule) int {
	total := 0
	for day, slotsA := range a {
		slotsB := b[day]
		for _, sa := range slotsA {
			for _, sb := range slotsB {
				total += SlotOverlapMinutes(sa, sb)
			}
		}
	}
	return total
}

// AvailabilityCompatibility is the shared weekly time divided by the mean of
// both users' weekly time. Identical schedules score 1. A missing or empty
// schedule on either side scores Neutral.
func AvailabilityCompatibility(a, b profile.WeeklySchedule) float64 {
	totalA, totalB := a.TotalMinutes(), b.TotalMinutes()
	if totalA == 0 || totalB == 0 {
		return Neutral
	}
	ref := float64(totalA+totalB) / 2
	return clamp01(float64(OverlapMinutes(a, b)) / ref)
}

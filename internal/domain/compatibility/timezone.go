package compatibility

import (
	"math"
	"strings"
	"time"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/timeutil"
)

// maxOffsetHours is the offset distance at which the score reaches zero.
const maxOffsetHours = 12.0

// TimezoneCompatibility is 1 - |offset difference in hours| / 12, floored at
// zero. Offsets are resolved at the given instant so daylight saving is
// respected. Empty or unknown zones score Neutral, even when both sides
// name the same one; otherwise identical names score 1.
func TimezoneCompatibility(tzA, tzB string, at time.Time) float64 {
	a, b := strings.TrimSpace(tzA), strings.TrimSpace(tzB)
	if a == "" || b == "" {
		return Neutral
	}
	locA, err := timeutil.ResolveLocation(a)
	if err != nil {
		return Neutral
	}
	locB, err := timeutil.ResolveLocation(b)
	if err != nil {
		return Neutral
	}
	if a == b {
		return 1
	}
	diff := math.Abs(timeutil.OffsetHours(locA, at) - timeutil.OffsetHours(locB, at))
	return math.Max(0, 1-diff/maxOffsetHours)
}

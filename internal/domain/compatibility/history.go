package compatibility

import (
	"math"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/profile"
)

const (
	// historyFloor and historySpan bound the no-history score to [0.5, 0.7].
	historyFloor = 0.5
	historySpan  = 0.2
	// experienceCap is the combined session count at which the bonus saturates.
	experienceCap = 100.0
)

// SessionHistoryCompatibility scores the pair's track record.
//
// With prior rated sessions it is the mean of every rating either user gave
// the other, mapped onto [0,1]. Without any, it falls back to a mid-range
// value that grows with combined experience but stays within [0.5, 0.7].
// Missing stats score Neutral.
func SessionHistoryCompatibility(prior []profile.SessionRating, a, b *profile.Stats) float64 {
	var sum float64
	var n int
	for _, r := range prior {
		for _, rating := range [...]int{r.RatingByA.Int(), r.RatingByB.Int()} {
			if rating < 1 || rating > 5 {
				continue
			}
			sum += float64(rating-1) / 4
			n++
		}
	}
	if n > 0 {
		return clamp01(sum / float64(n))
	}
	return NoHistoryScore(a, b)
}

// NoHistoryScore is the fallback used when the pair has never been rated or
// the history store is unavailable.
func NoHistoryScore(a, b *profile.Stats) float64 {
	if a == nil || b == nil {
		return Neutral
	}
	combined := math.Max(0, float64(a.TotalSessions+b.TotalSessions))
	return historyFloor + historySpan*math.Min(combined, experienceCap)/experienceCap
}

package compatibility

import (
	"math"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/profile"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/queue"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
)

// maxLevelGap is the largest possible distance between two 1-5 levels.
const maxLevelGap = 4.0

// IdealGap is the preferred candidate-minus-requester level difference.
func IdealGap(st queue.SessionType) (int, bool) {
	switch st {
	case queue.SessionLearning:
		return 2, true
	case queue.SessionTeaching:
		return -2, true
	case queue.SessionCollaboration:
		return 0, true
	}
	return 0, false
}

// SkillComplementarity scores one shared skill. levelA is the requester's,
// levelB the candidate's. A learner wants a candidate two levels above and a
// mentor wants one two levels below. Collaborators want parity.
func SkillComplementarity(levelA, levelB int, st queue.SessionType) float64 {
	ideal, ok := IdealGap(st)
	if !ok || !shared.SkillLevel(levelA).IsValid() || !shared.SkillLevel(levelB).IsValid() {
		return Neutral
	}
	gap := levelB - levelA
	return clamp01(1 - math.Abs(float64(gap-ideal))/maxLevelGap)
}

// SkillCompatibility is the weighted mean complementarity over the skills
// both users share. Skills named in preferred count double; verified candidate
// skills count a little more. Empty preferred means every overlap counts the
// same. No shared skill at all yields NoOverlapScore.
func SkillCompatibility(requester, candidate []profile.Skill, preferred []string, st queue.SessionType) float64 {
	if len(requester) == 0 || len(candidate) == 0 {
		return NoOverlapScore
	}

	pref := make(map[string]struct{}, len(preferred))
	for _, p := range preferred {
		pref[profile.SkillKey(p)] = struct{}{}
	}

	theirs := make(map[string]profile.Skill, len(candidate))
	for _, s := range candidate {
		if k := s.Key(); k != "" {
			theirs[k] = s
		}
	}

	var sum, weight float64
	seen := make(map[string]struct{}, len(requester))
	for _, mine := range requester {
		k := mine.Key()
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		other, ok := theirs[k]
		if !ok {
			continue
		}
		w := 1.0
		if _, ok := pref[k]; ok {
			w *= PreferredSkillMultiplier
		}
		if other.Verified {
			w *= VerifiedSkillMultiplier
		}
		sum += w * SkillComplementarity(mine.Level.Int(), other.Level.Int(), st)
		weight += w
	}

	if weight == 0 {
		return NoOverlapScore
	}
	return clamp01(sum / weight)
}

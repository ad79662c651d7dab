package compatibility

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/profile"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/queue"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/timeutil"
)

var winter = time.Date(2026, time.January, 14, 12, 0, 0, 0, time.UTC)

func skill(name string, level int) profile.Skill {
	return profile.Skill{Name: name, Level: shared.SkillLevel(level)}
}

func TestDefaultWeights(t *testing.T) {
	w := DefaultWeights()
	assert.InDelta(t, 1.0, w.Sum(), 1e-9)
	assert.NoError(t, w.Validate())

	w.Skill = 0.5
	assert.Error(t, w.Validate())

	w = DefaultWeights()
	w.Timezone = -0.15
	w.Skill = 0.60
	assert.Error(t, w.Validate())
}

func TestSkillComplementarity_Bounds(t *testing.T) {
	for _, st := range queue.AllSessionTypes {
		for a := 1; a <= 5; a++ {
			for b := 1; b <= 5; b++ {
				v := SkillComplementarity(a, b, st)
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
		}
	}
}

func TestSkillComplementarity_IdealGaps(t *testing.T) {
	assert.Equal(t, 1.0, SkillComplementarity(2, 4, queue.SessionLearning))
	assert.Equal(t, 1.0, SkillComplementarity(4, 2, queue.SessionTeaching))
	assert.Equal(t, 1.0, SkillComplementarity(3, 3, queue.SessionCollaboration))

	// Learning: the ideal gap beats both a smaller and a larger one.
	ideal := SkillComplementarity(1, 3, queue.SessionLearning)
	assert.Greater(t, ideal, SkillComplementarity(1, 2, queue.SessionLearning))
	assert.Greater(t, ideal, SkillComplementarity(1, 5, queue.SessionLearning))
	assert.Greater(t, ideal, SkillComplementarity(3, 3, queue.SessionLearning))

	// A learner paired with someone below them is the worst case.
	assert.Equal(t, 0.0, SkillComplementarity(5, 3, queue.SessionLearning))
}

func TestSkillComplementarity_Neutral(t *testing.T) {
	assert.Equal(t, Neutral, SkillComplementarity(0, 3, queue.SessionLearning))
	assert.Equal(t, Neutral, SkillComplementarity(3, 6, queue.SessionLearning))
	assert.Equal(t, Neutral, SkillComplementarity(3, 3, queue.SessionType("pairing")))
}

func TestSkillCompatibility(t *testing.T) {
	t.Run("disjoint skills score low", func(t *testing.T) {
		v := SkillCompatibility(
			[]profile.Skill{skill("Go", 3), skill("SQL", 2)},
			[]profile.Skill{skill("Rust", 4)},
			nil, queue.SessionLearning)
		assert.Less(t, v, 0.2)
	})

	t.Run("empty side counts as no overlap", func(t *testing.T) {
		assert.Less(t, SkillCompatibility(nil, []profile.Skill{skill("Go", 3)}, nil, queue.SessionLearning), 0.2)
	})

	t.Run("names match case-insensitively", func(t *testing.T) {
		v := SkillCompatibility(
			[]profile.Skill{skill("javascript", 2)},
			[]profile.Skill{skill(" JavaScript ", 4)},
			nil, queue.SessionLearning)
		assert.Equal(t, 1.0, v)
	})

	t.Run("preferred skills weigh double", func(t *testing.T) {
		mine := []profile.Skill{skill("JavaScript", 2), skill("Go", 2)}
		theirs := []profile.Skill{skill("JavaScript", 4), skill("Go", 2)}

		assert.InDelta(t, 0.75, SkillCompatibility(mine, theirs, nil, queue.SessionLearning), 1e-9)
		assert.InDelta(t, 2.5/3, SkillCompatibility(mine, theirs, []string{"JavaScript"}, queue.SessionLearning), 1e-9)
		assert.InDelta(t, 2.0/3, SkillCompatibility(mine, theirs, []string{"go"}, queue.SessionLearning), 1e-9)
	})

	t.Run("results stay in range", func(t *testing.T) {
		for a := 1; a <= 5; a++ {
			for b := 1; b <= 5; b++ {
				for _, st := range queue.AllSessionTypes {
					v := SkillCompatibility([]profile.Skill{skill("x", a)}, []profile.Skill{skill("X", b)}, []string{"x"}, st)
					assert.GreaterOrEqual(t, v, 0.0)
					assert.LessOrEqual(t, v, 1.0)
				}
			}
		}
	})
}

func TestTimezoneCompatibility(t *testing.T) {
	assert.Equal(t, 1.0, TimezoneCompatibility("America/New_York", "America/New_York", winter))
	assert.Equal(t, 1.0, TimezoneCompatibility("UTC+05:00", "Asia/Karachi", winter))
	assert.InDelta(t, 1-5.0/12, TimezoneCompatibility("America/New_York", "Europe/London", winter), 1e-9)

	t.Run("monotonically non-increasing in offset distance", func(t *testing.T) {
		prev := 1.0
		for h := 0; h <= 14; h++ {
			tz := "UTC+" + timeutil.FormatClock(h*60)
			v := TimezoneCompatibility("UTC+00:00", tz, winter)
			assert.LessOrEqual(t, v, prev, "offset %d", h)
			assert.GreaterOrEqual(t, v, 0.0)
			prev = v
		}
		assert.Equal(t, 0.0, prev)
	})

	t.Run("unresolvable zones are neutral", func(t *testing.T) {
		assert.Equal(t, Neutral, TimezoneCompatibility("Mars/Olympus_Mons", "UTC", winter))
		assert.Equal(t, Neutral, TimezoneCompatibility("", "UTC", winter))
		assert.Equal(t, Neutral, TimezoneCompatibility("Not/AZone", "Not/AZone", winter))
	})
}

func TestSlotOverlapMinutes(t *testing.T) {
	nineToFive := profile.TimeSlot{Start: "09:00", End: "17:00"}
	assert.Equal(t, 480, SlotOverlapMinutes(nineToFive, nineToFive))
	assert.Equal(t, 0, SlotOverlapMinutes(
		profile.TimeSlot{Start: "09:00", End: "12:00"},
		profile.TimeSlot{Start: "12:00", End: "15:00"}))
	assert.Equal(t, 60, SlotOverlapMinutes(
		profile.TimeSlot{Start: "09:00", End: "12:00"},
		profile.TimeSlot{Start: "11:00", End: "15:00"}))
	assert.Equal(t, 0, SlotOverlapMinutes(
		profile.TimeSlot{Start: "9am", End: "12:00"}, nineToFive))
}

func TestAvailabilityCompatibility(t *testing.T) {
	week := profile.WeeklySchedule{
		time.Monday:    {{Start: "09:00", End: "17:00"}},
		time.Wednesday: {{Start: "18:00", End: "20:00"}},
	}
	assert.Equal(t, 1.0, AvailabilityCompatibility(week, week))

	other := profile.WeeklySchedule{time.Tuesday: {{Start: "09:00", End: "17:00"}}}
	assert.Equal(t, 0.0, AvailabilityCompatibility(week, other))

	partial := profile.WeeklySchedule{time.Monday: {{Start: "13:00", End: "21:00"}}}
	// 240 shared minutes against a mean of (600+480)/2.
	assert.InDelta(t, 240.0/540.0, AvailabilityCompatibility(week, partial), 1e-9)

	assert.Equal(t, Neutral, AvailabilityCompatibility(nil, week))
	assert.Equal(t, Neutral, AvailabilityCompatibility(week, profile.WeeklySchedule{}))
}

func TestCommunicationCompatibility(t *testing.T) {
	base := &profile.Preferences{CommunicationStyle: profile.StyleCasual, Languages: []string{"en"}, MaxSessionDuration: 60}
	assert.Equal(t, 1.0, CommunicationCompatibility(base, base))
	assert.Equal(t, Neutral, CommunicationCompatibility(nil, base))

	noLanguage := &profile.Preferences{CommunicationStyle: profile.StyleCasual, Languages: []string{"fr"}, MaxSessionDuration: 60}
	assert.Less(t, CommunicationCompatibility(base, noLanguage), 0.8)

	assert.Equal(t, 0.75, StyleCompatibility(profile.StyleBalanced, profile.StyleFormal))
	assert.Equal(t, 0.3, StyleCompatibility(profile.StyleCasual, profile.StyleFormal))
	assert.Equal(t, Neutral, StyleCompatibility("", profile.StyleFormal))
	assert.Equal(t, 0.0, DurationCompatibility(30, 180))
	assert.Equal(t, Neutral, DurationCompatibility(0, 60))
}

func TestSessionHistoryCompatibility(t *testing.T) {
	good := []profile.SessionRating{{RatingByA: 5, RatingByB: 5}}
	assert.Equal(t, 1.0, SessionHistoryCompatibility(good, nil, nil))

	mixed := []profile.SessionRating{{RatingByA: 5, RatingByB: 1}, {RatingByA: 3}}
	assert.InDelta(t, 0.5, SessionHistoryCompatibility(mixed, nil, nil), 1e-9)

	assert.Equal(t, Neutral, SessionHistoryCompatibility(nil, nil, &profile.Stats{}))
	assert.Equal(t, 0.5, SessionHistoryCompatibility(nil, &profile.Stats{}, &profile.Stats{}))
	assert.InDelta(t, 0.6, SessionHistoryCompatibility(nil, &profile.Stats{TotalSessions: 20}, &profile.Stats{TotalSessions: 30}), 1e-9)

	saturated := SessionHistoryCompatibility(nil, &profile.Stats{TotalSessions: 900}, &profile.Stats{TotalSessions: 900})
	assert.InDelta(t, 0.7, saturated, 1e-9)
}

type stubHistory struct {
	ratings []profile.SessionRating
	err     error
	calls   int
}

func (s *stubHistory) PriorSessions(ctx context.Context, a, b string, since time.Time) ([]profile.SessionRating, error) {
	s.calls++
	return s.ratings, s.err
}

func nyProfile(id string, level int) *profile.Profile {
	return &profile.Profile{
		UserID: id,
		Skills: []profile.Skill{skill("JavaScript", level)},
		Preferences: &profile.Preferences{
			CommunicationStyle: profile.StyleCasual,
			Languages:          []string{"en"},
			MaxSessionDuration: 60,
			Timezone:           "America/New_York",
			Availability: profile.WeeklySchedule{
				time.Monday: {{Start: "09:00", End: "17:00"}},
			},
		},
	}
}

func TestScorer_LearnerAndMentorInSameZone(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), WithClock(timeutil.NewManualClock(winter)))
	req := queue.MatchingRequest{
		UserID:          "learner",
		PreferredSkills: []string{"JavaScript"},
		SessionType:     queue.SessionLearning,
		MaxDuration:     60,
		Urgency:         queue.UrgencyMedium,
	}

	r := scorer.Score(context.Background(), nyProfile("learner", 2), nyProfile("mentor", 4), req)

	assert.Greater(t, r.Skill, 0.8)
	assert.Equal(t, 1.0, r.Timezone)
	assert.Greater(t, r.Total, 0.8)
	assert.InDelta(t, r.Weighted(DefaultWeights()), r.Total, 1e-12)
}

func TestScorer_Deterministic(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), WithClock(timeutil.NewManualClock(winter)))
	req := queue.MatchingRequest{UserID: "a", SessionType: queue.SessionCollaboration, MaxDuration: 30, Urgency: queue.UrgencyLow}
	a, b := nyProfile("a", 3), nyProfile("b", 1)

	first := scorer.Score(context.Background(), a, b, req)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, scorer.Score(context.Background(), a, b, req))
	}
}

func TestScorer_HistoryFailureDegrades(t *testing.T) {
	h := &stubHistory{err: errors.New("connection refused")}
	scorer := NewScorer(DefaultWeights(), WithHistory(h), WithClock(timeutil.NewManualClock(winter)))
	req := queue.MatchingRequest{UserID: "a", SessionType: queue.SessionLearning, MaxDuration: 30, Urgency: queue.UrgencyLow}

	a, b := nyProfile("a", 2), nyProfile("b", 4)
	a.Stats = &profile.Stats{TotalSessions: 50}
	b.Stats = &profile.Stats{TotalSessions: 50}

	r := scorer.Score(context.Background(), a, b, req)
	require.Equal(t, 1, h.calls)
	assert.InDelta(t, 0.7, r.SessionHistory, 1e-9)
}

func TestScorer_UsesPriorRatings(t *testing.T) {
	h := &stubHistory{ratings: []profile.SessionRating{{RatingByA: 1, RatingByB: 1}}}
	scorer := NewScorer(DefaultWeights(), WithHistory(h), WithClock(timeutil.NewManualClock(winter)))
	req := queue.MatchingRequest{UserID: "a", SessionType: queue.SessionLearning, MaxDuration: 30, Urgency: queue.UrgencyLow}

	r := scorer.Score(context.Background(), nyProfile("a", 2), nyProfile("b", 4), req)
	assert.Equal(t, 0.0, r.SessionHistory)
}

func TestScorer_NilProfiles(t *testing.T) {
	scorer := NewScorer(DefaultWeights())
	r := scorer.Score(context.Background(), nil, nyProfile("b", 4), queue.MatchingRequest{})
	assert.Equal(t, Neutral, r.Total)
}

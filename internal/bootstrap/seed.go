package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/profile"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/queue"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
)

// SeedFile is the YAML layout read from MATCHING_SEED_FILE. It preloads
// profiles and rated sessions, mainly for local runs on the in-memory stores.
//
//	profiles:
//	  - user_id: alice
//	    skills: [{name: Go, level: 2}]
//	    preferences:
//	      timezone: America/New_York
//	      communication_style: casual
//	      availability:
//	        monday: [{start: "09:00", end: "17:00"}]
//	sessions:
//	  - users: [alice, bob]
//	    session_type: learning
//	    ratings: {alice: 5, bob: 4}
type SeedFile struct {
	Profiles []SeedProfile `yaml:"profiles"`
	Sessions []SeedSession `yaml:"sessions"`
}

type SeedProfile struct {
	UserID      string           `yaml:"user_id"`
	Skills      []SeedSkill      `yaml:"skills"`
	Preferences *SeedPreferences `yaml:"preferences"`
	Stats       *SeedStats       `yaml:"stats"`
}

type SeedSkill struct {
	Name         string `yaml:"name"`
	Level        int    `yaml:"level"`
	Verified     bool   `yaml:"verified"`
	Endorsements int    `yaml:"endorsements"`
}

type SeedPreferences struct {
	SessionTypes       []string                      `yaml:"session_types"`
	MaxSessionDuration int                           `yaml:"max_session_duration"`
	CommunicationStyle string                        `yaml:"communication_style"`
	Timezone           string                        `yaml:"timezone"`
	Languages          []string                      `yaml:"languages"`
	Availability       map[string][]profile.TimeSlot `yaml:"availability"`
}

type SeedStats struct {
	TotalSessions int     `yaml:"total_sessions"`
	AverageRating float64 `yaml:"average_rating"`
	CurrentStreak int     `yaml:"current_streak"`
}

type SeedSession struct {
	Users       []string       `yaml:"users"`
	SessionType string         `yaml:"session_type"`
	Ratings     map[string]int `yaml:"ratings"`
}

// Seeded counts what LoadSeed wrote.
type Seeded struct {
	Profiles int
	Sessions int
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// LoadSeed reads path and writes its profiles and sessions.
func LoadSeed(ctx context.Context, path string, profiles profile.Writer, sessions sessionStore) (Seeded, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seeded{}, fmt.Errorf("MATCHING_SEED_FILE: %w", err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Seeded{}, fmt.Errorf("MATCHING_SEED_FILE: decode: %w", err)
	}
	return f.Apply(ctx, profiles, sessions)
}

// Apply validates every record and writes them in file order.
func (f *SeedFile) Apply(ctx context.Context, profiles profile.Writer, sessions sessionStore) (Seeded, error) {
	var n Seeded
	for i, sp := range f.Profiles {
		p, err := sp.toProfile()
		if err != nil {
			return n, fmt.Errorf("seed profile %d: %w", i, err)
		}
		if err := profiles.Save(ctx, p); err != nil {
			return n, fmt.Errorf("seed profile %q: %w", p.UserID, err)
		}
		n.Profiles++
	}

	for i, ss := range f.Sessions {
		if len(ss.Users) != 2 || ss.Users[0] == "" || ss.Users[1] == "" || ss.Users[0] == ss.Users[1] {
			return n, fmt.Errorf("seed session %d: users must name two different people", i)
		}
		st := queue.SessionType(ss.SessionType)
		if !st.IsValid() {
			return n, fmt.Errorf("seed session %d: unknown session type %q", i, ss.SessionType)
		}
		id, err := sessions.CreateSession(ctx, ss.Users[0], ss.Users[1], st)
		if err != nil {
			return n, fmt.Errorf("seed session %d: %w", i, err)
		}
		for by, r := range ss.Ratings {
			if err := sessions.Rate(ctx, id, by, shared.Rating(r)); err != nil {
				return n, fmt.Errorf("seed session %d rating by %q: %w", i, by, err)
			}
		}
		n.Sessions++
	}
	return n, nil
}

func (sp SeedProfile) toProfile() (*profile.Profile, error) {
	if strings.TrimSpace(sp.UserID) == "" {
		return nil, shared.ErrInvalidUserID
	}
	p := &profile.Profile{UserID: sp.UserID}
	for _, s := range sp.Skills {
		level := shared.SkillLevel(s.Level)
		if !level.IsValid() {
			return nil, fmt.Errorf("skill %q: level %d out of range", s.Name, s.Level)
		}
		p.Skills = append(p.Skills, profile.Skill{
			Name: s.Name, Level: level, Verified: s.Verified, Endorsements: s.Endorsements,
		})
	}

	if pr := sp.Preferences; pr != nil {
		style := profile.CommunicationStyle(pr.CommunicationStyle)
		if pr.CommunicationStyle != "" && !style.IsValid() {
			return nil, fmt.Errorf("unknown communication style %q", pr.CommunicationStyle)
		}
		prefs := &profile.Preferences{
			PreferredSessionTypes: pr.SessionTypes,
			MaxSessionDuration:    pr.MaxSessionDuration,
			CommunicationStyle:    style,
			Timezone:              pr.Timezone,
			Languages:             pr.Languages,
		}
		if len(pr.Availability) > 0 {
			prefs.Availability = make(profile.WeeklySchedule, len(pr.Availability))
			for day, slots := range pr.Availability {
				wd, ok := weekdays[strings.ToLower(day)]
				if !ok {
					return nil, fmt.Errorf("unknown weekday %q", day)
				}
				prefs.Availability[wd] = slots
			}
		}
		p.Preferences = prefs
	}

	if st := sp.Stats; st != nil {
		p.Stats = &profile.Stats{
			TotalSessions: st.TotalSessions,
			AverageRating: st.AverageRating,
			CurrentStreak: st.CurrentStreak,
		}
	}
	return p, nil
}

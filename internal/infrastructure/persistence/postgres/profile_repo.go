package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/profile"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository implements profile.Repository and profile.Writer.
type ProfileRepository struct {
	conn  *Connection
	retry *retry.Retrier
}

var (
	_ profile.Repository = (*ProfileRepository)(nil)
	_ profile.Writer     = (*ProfileRepository)(nil)
)

// NewProfileRepository creates a ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn, retry: retry.New(retry.DatabasePolicy(IsTransient))}
}

const selectProfile = `
	SELECT user_id, timezone, communication_style, max_session_duration,
	       preferred_session_types, languages, availability,
	       total_sessions, average_rating, current_streak,
	       has_preferences, has_stats, created_at, last_active_at
	FROM profiles
	WHERE user_id = $1
`

const selectSkills = `
	SELECT name, level, verified, endorsements
	FROM profile_skills
	WHERE user_id = $1
	ORDER BY name_key
`

// GetByID loads the profile and its skills.
func (r *ProfileRepository) GetByID(ctx context.Context, userID string) (*profile.Profile, error) {
	var p *profile.Profile
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		p, err = r.getByID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProfileRepository) getByID(ctx context.Context, userID string) (*profile.Profile, error) {
	const op = "GetByID"

	var (
		p            = &profile.Profile{UserID: userID}
		prefs        profile.Preferences
		stats        profile.Stats
		style        string
		availability []byte
		hasPrefs     bool
		hasStats     bool
		lastActive   *time.Time
	)
	err := r.conn.QueryRow(ctx, selectProfile, userID).Scan(
		&p.UserID, &prefs.Timezone, &style, &prefs.MaxSessionDuration,
		&prefs.PreferredSessionTypes, &prefs.Languages, &availability,
		&stats.TotalSessions, &stats.AverageRating, &stats.CurrentStreak,
		&hasPrefs, &hasStats, &stats.CreatedAt, &lastActive,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, shared.Infrastructure("profile", op, err)
	}

	prefs.CommunicationStyle = profile.CommunicationStyle(style)
	if prefs.Availability, err = decodeAvailability(availability); err != nil {
		return nil, shared.Infrastructure("profile", op, err)
	}
	if lastActive != nil {
		stats.LastActiveAt = *lastActive
	}
	if hasPrefs {
		p.Preferences = &prefs
	}
	if hasStats {
		p.Stats = &stats
	}

	rows, err := r.conn.Query(ctx, selectSkills, userID)
	if err != nil {
		return nil, shared.Infrastructure("profile", op, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			s     profile.Skill
			level int16
		)
		if err := rows.Scan(&s.Name, &level, &s.Verified, &s.Endorsements); err != nil {
			return nil, shared.Infrastructure("profile", op, err)
		}
		s.Level = shared.SkillLevel(level)
		p.Skills = append(p.Skills, s)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Infrastructure("profile", op, err)
	}
	return p, nil
}

// Save upserts the profile and replaces its skills.
func (r *ProfileRepository) Save(ctx context.Context, p *profile.Profile) error {
	const op = "Save"
	if p == nil || p.UserID == "" {
		return shared.ErrInvalidUserID
	}

	var prefs profile.Preferences
	if p.Preferences != nil {
		prefs = *p.Preferences
	}
	var stats profile.Stats
	if p.Stats != nil {
		stats = *p.Stats
	}
	availability, err := encodeAvailability(prefs.Availability)
	if err != nil {
		return shared.Validation("profile", op, err.Error())
	}
	createdAt := stats.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var lastActive *time.Time
	if !stats.LastActiveAt.IsZero() {
		lastActive = &stats.LastActiveAt
	}

	err = r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO profiles (
				user_id, timezone, communication_style, max_session_duration,
				preferred_session_types, languages, availability,
				total_sessions, average_rating, current_streak,
				has_preferences, has_stats, created_at, last_active_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
			ON CONFLICT (user_id) DO UPDATE SET
				timezone = EXCLUDED.timezone,
				communication_style = EXCLUDED.communication_style,
				max_session_duration = EXCLUDED.max_session_duration,
				preferred_session_types = EXCLUDED.preferred_session_types,
				languages = EXCLUDED.languages,
				availability = EXCLUDED.availability,
				total_sessions = EXCLUDED.total_sessions,
				average_rating = EXCLUDED.average_rating,
				current_streak = EXCLUDED.current_streak,
				has_preferences = EXCLUDED.has_preferences,
				has_stats = EXCLUDED.has_stats,
				last_active_at = EXCLUDED.last_active_at,
				updated_at = NOW()`,
			p.UserID, prefs.Timezone, string(prefs.CommunicationStyle), prefs.MaxSessionDuration,
			nonNil(prefs.PreferredSessionTypes), nonNil(prefs.Languages), availability,
			stats.TotalSessions, stats.AverageRating, stats.CurrentStreak,
			p.Preferences != nil, p.Stats != nil, createdAt, lastActive,
		)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		batch.Queue(`DELETE FROM profile_skills WHERE user_id = $1`, p.UserID)
		for _, s := range p.Skills {
			batch.Queue(`
				INSERT INTO profile_skills (user_id, name_key, name, level, verified, endorsements)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				p.UserID, s.Key(), s.Name, int16(s.Level), s.Verified, s.Endorsements,
			)
		}
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return err
			}
		}
		return br.Close()
	})
	if err != nil {
		if IsUniqueViolation(err) || IsCheckViolation(err) {
			return shared.Validation("profile", op, err.Error())
		}
		return shared.Infrastructure("profile", op, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AVAILABILITY ENCODING
// ══════════════════════════════════════════════════════════════════════════════

// Stored as {"1":[{"start":"09:00","end":"17:00"}]} keyed by weekday number.
func encodeAvailability(w profile.WeeklySchedule) ([]byte, error) {
	out := make(map[string][]profile.TimeSlot, len(w))
	for day, slots := range w {
		if day < time.Sunday || day > time.Saturday {
			return nil, fmt.Errorf("invalid weekday %d", day)
		}
		if len(slots) == 0 {
			continue
		}
		sorted := append([]profile.TimeSlot(nil), slots...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
		out[strconv.Itoa(int(day))] = sorted
	}
	return json.Marshal(out)
}

func decodeAvailability(raw []byte) (profile.WeeklySchedule, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var stored map[string][]profile.TimeSlot
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode availability: %w", err)
	}
	if len(stored) == 0 {
		return nil, nil
	}
	w := make(profile.WeeklySchedule, len(stored))
	for k, slots := range stored {
		d, err := strconv.Atoi(k)
		if err != nil || d < 0 || d > 6 {
			return nil, fmt.Errorf("decode availability: bad weekday %q", k)
		}
		w[time.Weekday(d)] = slots
	}
	return w, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

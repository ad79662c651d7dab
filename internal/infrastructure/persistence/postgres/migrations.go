package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one forward/backward schema step.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded migrations in version order.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: Migrations(), tableName: "schema_migrations"}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, m.tableName))
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var (
			v  int
			at time.Time
		)
		if err := rows.Scan(&v, &at); err != nil {
			return nil, err
		}
		out[v] = at
	}
	return out, rows.Err()
}

// Migrate applies every pending migration, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if _, ok := done[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName), mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
		count++
	}
	return count, nil
}

// Rollback reverts the latest applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range done {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var mig *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			mig = &m.migrations[i]
		}
	}
	if mig == nil || mig.DownSQL == "" {
		return fmt.Errorf("%w: no down migration for version %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// Status lists every migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := done[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}

// Migrations returns the embedded migrations sorted by version.
func Migrations() []Migration {
	migs := []Migration{
		{Version: 1, Name: "create_profiles", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_sessions", UpSQL: migration002Up, DownSQL: migration002Down},
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	return migs
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: PROFILES
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS profiles (
    user_id TEXT PRIMARY KEY,
    timezone TEXT NOT NULL DEFAULT '',
    communication_style TEXT NOT NULL DEFAULT '',
    max_session_duration INTEGER NOT NULL DEFAULT 0,
    preferred_session_types TEXT[] NOT NULL DEFAULT '{}',
    languages TEXT[] NOT NULL DEFAULT '{}',
    -- weekday (0=Sunday) -> [{"start":"HH:MM","end":"HH:MM"}]
    availability JSONB NOT NULL DEFAULT '{}'::jsonb,
    total_sessions INTEGER NOT NULL DEFAULT 0,
    average_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
    current_streak INTEGER NOT NULL DEFAULT 0,
    has_preferences BOOLEAN NOT NULL DEFAULT FALSE,
    has_stats BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_active_at TIMESTAMPTZ,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_style CHECK (communication_style IN ('', 'formal', 'casual', 'balanced')),
    CONSTRAINT valid_average_rating CHECK (average_rating >= 0 AND average_rating <= 5)
);

CREATE TABLE IF NOT EXISTS profile_skills (
    user_id TEXT NOT NULL REFERENCES profiles(user_id) ON DELETE CASCADE,
    name_key TEXT NOT NULL,
    name TEXT NOT NULL,
    level SMALLINT NOT NULL,
    verified BOOLEAN NOT NULL DEFAULT FALSE,
    endorsements INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY (user_id, name_key),
    CONSTRAINT valid_level CHECK (level BETWEEN 1 AND 5)
);

CREATE INDEX IF NOT EXISTS idx_profile_skills_name_key ON profile_skills(name_key);
`

const migration001Down = `
DROP TABLE IF EXISTS profile_skills;
DROP TABLE IF EXISTS profiles;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: SESSIONS & RATINGS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS sessions (
    id UUID PRIMARY KEY,
    user_a TEXT NOT NULL,
    user_b TEXT NOT NULL,
    session_type TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT distinct_participants CHECK (user_a <> user_b),
    CONSTRAINT valid_session_type CHECK (session_type IN ('learning', 'teaching', 'collaboration'))
);

-- Unordered pair lookups for history scoring.
CREATE INDEX IF NOT EXISTS idx_sessions_pair
    ON sessions (LEAST(user_a, user_b), GREATEST(user_a, user_b), created_at DESC);

CREATE TABLE IF NOT EXISTS session_ratings (
    session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    rater TEXT NOT NULL,
    rating SMALLINT NOT NULL,
    rated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    PRIMARY KEY (session_id, rater),
    CONSTRAINT valid_rating CHECK (rating BETWEEN 1 AND 5)
);
`

const migration002Down = `
DROP TABLE IF EXISTS session_ratings;
DROP TABLE IF EXISTS sessions;
`

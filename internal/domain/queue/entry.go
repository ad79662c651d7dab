package queue

import (
	"context"
	"time"
)

// Entry is a queued request. Priority and expiry are derived from it at read
// time and never stored.
type Entry struct {
	Request    MatchingRequest `json:"request"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	// Version changes on every upsert and is the compare-and-remove token.
	Version string `json:"version"`
}

// UserID is shorthand for e.Request.UserID.
func (e Entry) UserID() string { return e.Request.UserID }

// Claim identifies an entry at the version a caller observed.
type Claim struct {
	UserID  string
	Version string
}

// ClaimOf returns the claim token for e.
func ClaimOf(e Entry) Claim {
	return Claim{UserID: e.Request.UserID, Version: e.Version}
}

// RankedEntry is an entry with its derived values at a single instant.
type RankedEntry struct {
	Entry
	Priority  float64
	ExpiresAt time.Time
	// Position is 1-based within the slice it was returned in.
	Position int
}

// Backend is the storage primitive behind Store. Implementations must make
// DeletePair and DeleteIfVersion atomic with respect to Put and each other.
type Backend interface {
	// Put stores e and clears any left marker for the user.
	Put(ctx context.Context, e Entry) error
	// PutIfAbsent stores e only when the user has neither an entry nor a live
	// left marker. It reports whether e was stored.
	PutIfAbsent(ctx context.Context, e Entry) (bool, error)
	// Get returns shared.ErrEntryNotFound when absent.
	Get(ctx context.Context, userID string) (Entry, error)
	Delete(ctx context.Context, userID string) (bool, error)
	DeleteIfVersion(ctx context.Context, userID, version string) (bool, error)
	// DeletePair removes both entries only if both still carry the given
	// versions. An empty a.Version means a is not queued and only b is
	// checked. Returns shared.ErrClaimConflict on any mismatch.
	DeletePair(ctx context.Context, a, b Claim) error
	List(ctx context.Context) ([]Entry, error)

	// MarkClaiming sets a short-lived marker; false if one already exists.
	MarkClaiming(ctx context.Context, userID string, ttl time.Duration) (bool, error)
	ReleaseClaiming(ctx context.Context, userID string) error
	Claiming(ctx context.Context) (map[string]struct{}, error)
	// MarkLeft records a leave request that found no entry.
	MarkLeft(ctx context.Context, userID string, ttl time.Duration) error

	RecordEnqueue(ctx context.Context, at time.Time) error
	EnqueueHistogram(ctx context.Context) ([24]int64, error)
	RecordServiceTime(ctx context.Context, d time.Duration) error
	ServiceTimes(ctx context.Context) ([]time.Duration, error)
}

// Status is a user's view of their own place in the queue.
type Status struct {
	UserID        string        `json:"user_id"`
	SessionType   SessionType   `json:"session_type"`
	Urgency       Urgency       `json:"urgency"`
	Position      int           `json:"position"`
	EstimatedWait time.Duration `json:"estimated_wait"`
	Priority      float64       `json:"priority"`
	EnqueuedAt    time.Time     `json:"enqueued_at"`
	ExpiresAt     time.Time     `json:"expires_at"`
	// Competing is the number of live entries, the user included, that wait
	// for the same partners.
	Competing int `json:"competing"`
}

// Stats is an aggregate snapshot of the queue.
type Stats struct {
	Total              int                 `json:"total"`
	ByType             map[SessionType]int `json:"by_type"`
	ByUrgency          map[Urgency]int     `json:"by_urgency"`
	AverageWait        time.Duration       `json:"average_wait"`
	AverageServiceTime time.Duration       `json:"average_service_time"`
	ServiceSamples     int                 `json:"service_samples"`
	PeakHours          [24]int64           `json:"peak_hours"`
	BusiestHour        int                 `json:"busiest_hour"`
	OldestEnqueuedAt   time.Time           `json:"oldest_enqueued_at,omitempty"`
	GeneratedAt        time.Time           `json:"generated_at"`
}

// CandidateQuery selects candidates for a requester.
type CandidateQuery struct {
	SessionTypes  []SessionType
	ExcludeUserID string
	Limit         int
}

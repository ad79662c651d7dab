// Package memory provides in-process implementations of the persistence
// interfaces. They back single-instance deployments and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/queue"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/timeutil"
)

// DefaultServiceSamples bounds the service-time ring.
const DefaultServiceSamples = 200

// QueueBackend is a queue.Backend kept in maps behind one mutex. Every
// method holds the lock only for the duration of a map operation.
type QueueBackend struct {
	mu       sync.Mutex
	entries  map[string]queue.Entry
	claiming map[string]time.Time
	left     map[string]time.Time
	hours    [24]int64
	samples  []time.Duration
	next     int
	capacity int
	clock    timeutil.Clock
}

var _ queue.Backend = (*QueueBackend)(nil)

// NewQueueBackend creates an empty backend.
func NewQueueBackend(clock timeutil.Clock) *QueueBackend {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &QueueBackend{
		entries:  make(map[string]queue.Entry),
		claiming: make(map[string]time.Time),
		left:     make(map[string]time.Time),
		capacity: DefaultServiceSamples,
		clock:    clock,
	}
}

func (b *QueueBackend) Put(ctx context.Context, e queue.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.entries[e.UserID()] = e
	delete(b.left, e.UserID())
	b.mu.Unlock()
	return nil
}

func (b *QueueBackend) PutIfAbsent(ctx context.Context, e queue.Entry) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	now := b.clock.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[e.UserID()]; ok {
		return false, nil
	}
	if until, ok := b.left[e.UserID()]; ok && now.Before(until) {
		return false, nil
	}
	b.entries[e.UserID()] = e
	return true, nil
}

func (b *QueueBackend) Get(ctx context.Context, userID string) (queue.Entry, error) {
	if err := ctx.Err(); err != nil {
		return queue.Entry{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[userID]
	if !ok {
		return queue.Entry{}, shared.ErrEntryNotFound
	}
	return e, nil
}

func (b *QueueBackend) Delete(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[userID]
	delete(b.entries, userID)
	return ok, nil
}

func (b *QueueBackend) DeleteIfVersion(ctx context.Context, userID, version string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[userID]
	if !ok || e.Version != version {
		return false, nil
	}
	delete(b.entries, userID)
	return true, nil
}

func (b *QueueBackend) DeletePair(ctx context.Context, a, c queue.Claim) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.holds(c) {
		return shared.ErrClaimConflict
	}
	if a.Version != "" && !b.holds(a) {
		return shared.ErrClaimConflict
	}
	delete(b.entries, c.UserID)
	if a.Version != "" {
		delete(b.entries, a.UserID)
	}
	return nil
}

// holds must be called with mu held.
func (b *QueueBackend) holds(c queue.Claim) bool {
	e, ok := b.entries[c.UserID]
	return ok && e.Version == c.Version
}

func (b *QueueBackend) List(ctx context.Context) ([]queue.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]queue.Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	return out, nil
}

func (b *QueueBackend) MarkClaiming(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	now := b.clock.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	if until, ok := b.claiming[userID]; ok && now.Before(until) {
		return false, nil
	}
	b.claiming[userID] = now.Add(ttl)
	return true, nil
}

func (b *QueueBackend) ReleaseClaiming(ctx context.Context, userID string) error {
	b.mu.Lock()
	delete(b.claiming, userID)
	b.mu.Unlock()
	return nil
}

func (b *QueueBackend) Claiming(ctx context.Context) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := b.clock.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]struct{}, len(b.claiming))
	for id, until := range b.claiming {
		if !now.Before(until) {
			delete(b.claiming, id)
			continue
		}
		out[id] = struct{}{}
	}
	return out, nil
}

func (b *QueueBackend) MarkLeft(ctx context.Context, userID string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := b.clock.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, until := range b.left {
		if !now.Before(until) {
			delete(b.left, id)
		}
	}
	b.left[userID] = now.Add(ttl)
	return nil
}

func (b *QueueBackend) RecordEnqueue(ctx context.Context, at time.Time) error {
	b.mu.Lock()
	b.hours[timeutil.HourOfDayUTC(at)]++
	b.mu.Unlock()
	return nil
}

func (b *QueueBackend) EnqueueHistogram(ctx context.Context) ([24]int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hours, nil
}

func (b *QueueBackend) RecordServiceTime(ctx context.Context, d time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.samples) < b.capacity {
		b.samples = append(b.samples, d)
		return nil
	}
	b.samples[b.next] = d
	b.next = (b.next + 1) % b.capacity
	return nil
}

func (b *QueueBackend) ServiceTimes(ctx context.Context) ([]time.Duration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]time.Duration, len(b.samples))
	copy(out, b.samples)
	return out, nil
}

// Len returns the number of stored entries, expired ones included.
func (b *QueueBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/queue"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/timeutil"
)

// maxServiceSamples caps the service-time list.
const maxServiceSamples = 200

// Entry hashes carry two fields: the JSON payload and the version, kept
// separately so scripts can compare versions without decoding JSON.
const (
	fieldPayload = "payload"
	fieldVersion = "version"
)

// deleteIfVersion: KEYS[1]=entry KEYS[2]=index ARGV[1]=version ARGV[2]=userID
var deleteIfVersion = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'version') == ARGV[1] then
  redis.call('DEL', KEYS[1])
  redis.call('ZREM', KEYS[2], ARGV[2])
  return 1
end
return 0
`)

// deletePair: KEYS[1]=entryA KEYS[2]=entryB KEYS[3]=index
// ARGV[1]=versionA ('' when A is not queued) ARGV[2]=versionB ARGV[3]=userA ARGV[4]=userB
var deletePair = redis.NewScript(`
if redis.call('HGET', KEYS[2], 'version') ~= ARGV[2] then
  return 0
end
if ARGV[1] ~= '' and redis.call('HGET', KEYS[1], 'version') ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[2])
redis.call('ZREM', KEYS[3], ARGV[4])
if ARGV[1] ~= '' then
  redis.call('DEL', KEYS[1])
  redis.call('ZREM', KEYS[3], ARGV[3])
end
return 1
`)

// markClaiming: KEYS[1]=claiming zset ARGV[1]=now ms ARGV[2]=until ms ARGV[3]=userID
var markClaiming = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZSCORE', KEYS[1], ARGV[3]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[3])
return 1
`)

// putIfAbsent: KEYS[1]=entry KEYS[2]=index KEYS[3]=left zset
// ARGV[1]=now ms ARGV[2]=userID ARGV[3]=payload ARGV[4]=version ARGV[5]=index score
var putIfAbsent = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
local expiry = redis.call('ZSCORE', KEYS[3], ARGV[2])
if expiry and tonumber(expiry) > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'payload', ARGV[3], 'version', ARGV[4])
redis.call('ZADD', KEYS[2], ARGV[5], ARGV[2])
return 1
`)

// QueueBackend is a queue.Backend on Redis. Entries live in one hash per
// user, indexed by a sorted set scored by enqueue time.
type QueueBackend struct {
	rdb   *redis.Client
	keys  Keys
	clock timeutil.Clock
}

var _ queue.Backend = (*QueueBackend)(nil)

// NewQueueBackend creates a backend on the client's connection.
func NewQueueBackend(c *Client, clock timeutil.Clock) *QueueBackend {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &QueueBackend{rdb: c.Redis(), keys: NewKeys(c.Config().KeyPrefix), clock: clock}
}

func (b *QueueBackend) Put(ctx context.Context, e queue.Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	_, err = b.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		key := b.keys.Entry(e.UserID())
		p.Del(ctx, key)
		p.HSet(ctx, key, fieldPayload, payload, fieldVersion, e.Version)
		p.ZAdd(ctx, b.keys.Index(), redis.Z{Score: float64(e.EnqueuedAt.UnixMilli()), Member: e.UserID()})
		p.ZRem(ctx, b.keys.Left(), e.UserID())
		return nil
	})
	return err
}

func (b *QueueBackend) PutIfAbsent(ctx context.Context, e queue.Entry) (bool, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	n, err := putIfAbsent.Run(ctx, b.rdb,
		[]string{b.keys.Entry(e.UserID()), b.keys.Index(), b.keys.Left()},
		b.clock.Now().UnixMilli(), e.UserID(), payload, e.Version, e.EnqueuedAt.UnixMilli(),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (b *QueueBackend) Get(ctx context.Context, userID string) (queue.Entry, error) {
	raw, err := b.rdb.HGet(ctx, b.keys.Entry(userID), fieldPayload).Bytes()
	if errors.Is(err, redis.Nil) {
		return queue.Entry{}, shared.ErrEntryNotFound
	}
	if err != nil {
		return queue.Entry{}, err
	}
	return decodeEntry(raw)
}

func decodeEntry(raw []byte) (queue.Entry, error) {
	var e queue.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return queue.Entry{}, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return e, nil
}

func (b *QueueBackend) Delete(ctx context.Context, userID string) (bool, error) {
	var del *redis.IntCmd
	_, err := b.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, b.keys.Entry(userID))
		p.ZRem(ctx, b.keys.Index(), userID)
		return nil
	})
	if err != nil {
		return false, err
	}
	return del.Val() > 0, nil
}

func (b *QueueBackend) DeleteIfVersion(ctx context.Context, userID, version string) (bool, error) {
	n, err := deleteIfVersion.Run(ctx, b.rdb,
		[]string{b.keys.Entry(userID), b.keys.Index()},
		version, userID,
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (b *QueueBackend) DeletePair(ctx context.Context, a, c queue.Claim) error {
	entryA := b.keys.Entry(c.UserID)
	if a.UserID != "" {
		entryA = b.keys.Entry(a.UserID)
	}
	n, err := deletePair.Run(ctx, b.rdb,
		[]string{entryA, b.keys.Entry(c.UserID), b.keys.Index()},
		a.Version, c.Version, a.UserID, c.UserID,
	).Int()
	if err != nil {
		return err
	}
	if n != 1 {
		return shared.ErrClaimConflict
	}
	return nil
}

// List reads every indexed entry. Index members whose hash has vanished are
// skipped; they are cleaned by the next Delete of that user.
func (b *QueueBackend) List(ctx context.Context) ([]queue.Entry, error) {
	ids, err := b.rdb.ZRange(ctx, b.keys.Index(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.StringCmd, len(ids))
	_, err = b.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGet(ctx, b.keys.Entry(id), fieldPayload)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([]queue.Entry, 0, len(ids))
	for _, cmd := range cmds {
		raw, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		e, err := decodeEntry(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (b *QueueBackend) MarkClaiming(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	now := b.clock.Now()
	n, err := markClaiming.Run(ctx, b.rdb,
		[]string{b.keys.Claiming()},
		now.UnixMilli(), now.Add(ttl).UnixMilli(), userID,
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (b *QueueBackend) ReleaseClaiming(ctx context.Context, userID string) error {
	return b.rdb.ZRem(ctx, b.keys.Claiming(), userID).Err()
}

func (b *QueueBackend) Claiming(ctx context.Context) (map[string]struct{}, error) {
	now := b.clock.Now().UnixMilli()
	ids, err := b.rdb.ZRangeByScore(ctx, b.keys.Claiming(), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// MarkLeft scores the user in the left set by expiry and drops lapsed members.
func (b *QueueBackend) MarkLeft(ctx context.Context, userID string, ttl time.Duration) error {
	now := b.clock.Now()
	_, err := b.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, b.keys.Left(), "-inf", strconv.FormatInt(now.UnixMilli(), 10))
		p.ZAdd(ctx, b.keys.Left(), redis.Z{Score: float64(now.Add(ttl).UnixMilli()), Member: userID})
		return nil
	})
	return err
}

func (b *QueueBackend) RecordEnqueue(ctx context.Context, at time.Time) error {
	return b.rdb.HIncrBy(ctx, b.keys.Hours(), strconv.Itoa(timeutil.HourOfDayUTC(at)), 1).Err()
}

func (b *QueueBackend) EnqueueHistogram(ctx context.Context) ([24]int64, error) {
	var hours [24]int64
	raw, err := b.rdb.HGetAll(ctx, b.keys.Hours()).Result()
	if err != nil {
		return hours, err
	}
	for field, val := range raw {
		h, err := strconv.Atoi(field)
		if err != nil || h < 0 || h > 23 {
			continue
		}
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		hours[h] = n
	}
	return hours, nil
}

func (b *QueueBackend) RecordServiceTime(ctx context.Context, d time.Duration) error {
	_, err := b.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, b.keys.ServiceTimes(), d.Milliseconds())
		p.LTrim(ctx, b.keys.ServiceTimes(), 0, maxServiceSamples-1)
		return nil
	})
	return err
}

func (b *QueueBackend) ServiceTimes(ctx context.Context) ([]time.Duration, error) {
	raw, err := b.rdb.LRange(ctx, b.keys.ServiceTimes(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]time.Duration, 0, len(raw))
	for _, v := range raw {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, time.Duration(ms)*time.Millisecond)
	}
	return out, nil
}

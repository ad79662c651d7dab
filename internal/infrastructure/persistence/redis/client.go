// Package redis implements the Redis-backed queue store and the connection
// plumbing shared with the event bus.
//
// Key components:
//   - Client: connection management, health checks and pub/sub
//   - QueueBackend: the shared waiting pool with atomic Lua claims
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	Host     string
	Port     int
	Password string
	// DB is the Redis database number (0-15).
	DB int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration

	// KeyPrefix namespaces every key. It is wrapped in a hash tag so all
	// queue keys land in one cluster slot and Lua scripts may touch them together.
	KeyPrefix string
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		KeyPrefix:    "skillsync",
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

var (
	// ErrConnection is returned when Redis cannot be reached at startup.
	ErrConnection = errors.New("redis: connection failed")
	// ErrSerialization is returned when a stored payload cannot be decoded.
	ErrSerialization = errors.New("redis: serialization failed")
	// ErrEmptyChannel is returned when publishing without a channel.
	ErrEmptyChannel = errors.New("redis: channel cannot be empty")
)

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client owns the go-redis connection pool.
type Client struct {
	rdb    *redis.Client
	config Config
}

// NewClient connects and pings Redis.
func NewClient(cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return &Client{rdb: rdb, config: cfg}, nil
}

// Wrap adopts an existing go-redis client.
func Wrap(rdb *redis.Client, cfg Config) *Client {
	return &Client{rdb: rdb, config: cfg}
}

// Redis returns the underlying go-redis client.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Config returns the configuration the client was built with.
func (c *Client) Config() Config {
	return c.config
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks if Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// PUB/SUB OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Publish JSON-encodes message unless it is already bytes or a string.
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) error {
	if channel == "" {
		return ErrEmptyChannel
	}
	var payload interface{}
	switch m := message.(type) {
	case []byte, string:
		payload = m
	default:
		data, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		payload = data
	}
	return c.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe creates a subscription to channels.
// Remember to call Close() on the returned PubSub when done.
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}

// ══════════════════════════════════════════════════════════════════════════════
// KEYS
// ══════════════════════════════════════════════════════════════════════════════

// Keys builds the queue key names for a prefix. Every key shares the hash tag
// "{prefix:queue}".
type Keys struct {
	tag string
}

// NewKeys creates the key builder.
func NewKeys(prefix string) Keys {
	if prefix == "" {
		prefix = "skillsync"
	}
	return Keys{tag: "{" + prefix + ":queue}"}
}

func (k Keys) Entry(userID string) string { return k.tag + ":entry:" + userID }
func (k Keys) Index() string              { return k.tag + ":index" }
func (k Keys) Claiming() string           { return k.tag + ":claiming" }
func (k Keys) Left() string               { return k.tag + ":left" }
func (k Keys) Hours() string              { return k.tag + ":stats:hours" }
func (k Keys) ServiceTimes() string       { return k.tag + ":stats:service" }

// EventChannel is the pub/sub channel for an event type.
func EventChannel(prefix, eventType string) string {
	return prefix + ":events:" + eventType
}

package messaging

import (
	"context"
	"sync"

	redisstore "github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/persistence/redis"
)

// GoRedisClient adapts the shared Redis client to RedisClient. It owns the
// subscriptions it opens but not the underlying connection pool.
type GoRedisClient struct {
	client *redisstore.Client

	mu   sync.Mutex
	subs []closer
}

type closer interface{ Close() error }

// NewGoRedisClient wraps client for the event bus.
func NewGoRedisClient(client *redisstore.Client) *GoRedisClient {
	return &GoRedisClient{client: client}
}

func (c *GoRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	return c.client.Publish(ctx, channel, message)
}

// Subscribe waits for the subscription to be confirmed so no message
// published after it returns is lost.
func (c *GoRedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error) {
	ps := c.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	c.mu.Lock()
	c.subs = append(c.subs, ps)
	c.mu.Unlock()

	out := make(chan RedisMessage)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close closes the subscriptions opened through this adapter.
func (c *GoRedisClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var first error
	for _, s := range c.subs {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	c.subs = nil
	return first
}

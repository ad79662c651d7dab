package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/logger"
)

// RedisClient is the pub/sub surface the Redis bus needs.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error)
	Close() error
}

// RedisMessage is one pub/sub delivery.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

// RedisEventBusConfig configures a RedisEventBus.
type RedisEventBusConfig struct {
	Client RedisClient

	// ChannelName defaults to "skillsync:events".
	ChannelName string

	// InstanceID tags outgoing envelopes so the instance can skip its own
	// messages. Defaults to a random UUID.
	InstanceID string

	LocalBusConfig InMemoryEventBusConfig
	Logger         *logger.Logger
}

// RedisEventBus delivers every event once to the handlers of every instance:
// locally on Publish, and on the other instances through the channel.
type RedisEventBus struct {
	client   RedisClient
	local    *InMemoryEventBus
	channel  string
	instance string
	log      *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	sent, failed, received, dropped atomic.Int64
}

// NewRedisEventBus subscribes to the channel before returning.
func NewRedisEventBus(cfg RedisEventBusConfig) (*RedisEventBus, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.ChannelName == "" {
		cfg.ChannelName = "skillsync:events"
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.LocalBusConfig.Logger == nil {
		cfg.LocalBusConfig.Logger = cfg.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	messages, err := cfg.Client.Subscribe(ctx, cfg.ChannelName)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", cfg.ChannelName, err)
	}

	b := &RedisEventBus{
		client:   cfg.Client,
		local:    NewInMemoryEventBus(cfg.LocalBusConfig),
		channel:  cfg.ChannelName,
		instance: cfg.InstanceID,
		log:      cfg.Logger.Named("redis_eventbus").With(logger.String("instance", cfg.InstanceID)),
		ctx:      ctx,
		cancel:   cancel,
	}
	b.wg.Add(1)
	go b.receive(messages)
	return b, nil
}

func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.local.Subscribe(eventType, handler)
}

func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.local.SubscribeAll(handler)
}

// Publish fans event out through Redis, then delivers it locally. A Redis
// failure is logged and counted; local delivery still happens.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}
	if b.closed.Load() {
		return ErrEventBusClosed
	}

	raw, err := json.Marshal(envelope{
		Instance:  b.instance,
		Type:      event.EventType(),
		Aggregate: event.AggregateID(),
		At:        event.OccurredAt(),
		Data:      event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.EventType(), err)
	}

	if err := b.client.Publish(b.ctx, b.channel, string(raw)); err != nil {
		b.failed.Add(1)
		b.log.Error("redis publish failed", logger.String("event_type", string(event.EventType())), logger.Err(err))
	} else {
		b.sent.Add(1)
	}
	return b.local.Publish(event)
}

func (b *RedisEventBus) receive(messages <-chan RedisMessage) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			b.handle(msg)
		}
	}
}

func (b *RedisEventBus) handle(msg RedisMessage) {
	if msg.Err != nil {
		b.log.Error("redis subscription error", logger.Err(msg.Err))
		return
	}

	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		b.dropped.Add(1)
		b.log.Warn("dropping malformed event", logger.Err(err))
		return
	}
	if env.Instance == b.instance {
		return
	}

	b.received.Add(1)
	if err := b.local.Publish(&env); err != nil {
		b.log.Error("local delivery of remote event failed", logger.Err(err))
	}
}

// Close stops receiving, drains local deliveries and closes the client.
func (b *RedisEventBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.cancel()
	b.wg.Wait()

	if err := b.local.Close(); err != nil {
		b.log.Error("local bus close failed", logger.Err(err))
	}
	return b.client.Close()
}

// Stats combines the local delivery counters with the channel traffic.
func (b *RedisEventBus) Stats() BusStats {
	s := b.local.Stats()
	s.RemoteSent = b.sent.Load()
	s.RemoteFailed = b.failed.Load()
	s.RemoteReceived = b.received.Load()
	s.RemoteDropped = b.dropped.Load()
	return s
}

// envelope is the wire form of an event. A received envelope is itself the
// event handed to local handlers; only the payload map survives the trip, so
// consumers read remote events through Payload().
type envelope struct {
	Instance  string                 `json:"instance_id"`
	Type      shared.EventType       `json:"event_type"`
	Aggregate string                 `json:"aggregate_id"`
	At        time.Time              `json:"occurred_at"`
	Data      map[string]interface{} `json:"payload"`
}

func (e *envelope) EventType() shared.EventType     { return e.Type }
func (e *envelope) AggregateID() string             { return e.Aggregate }
func (e *envelope) OccurredAt() time.Time           { return e.At }
func (e *envelope) Payload() map[string]interface{} { return e.Data }

// Package notifier delivers queue and match events to connected clients. It
// owns no queue state: bindings map users to transport channels and are
// rebuilt as clients reconnect.
package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/queue"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/logger"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/timeutil"
)

// Broadcast topics.
const (
	TopicQueue = "queue"
	TopicStats = "queue:stats"
)

// Message is what clients receive. Type is one of the shared event types.
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// Transport is the delivery contract: topic broadcasts plus a per-user
// addressable channel.
type Transport interface {
	Publish(ctx context.Context, topic string, msg Message) error
	SendToChannel(ctx context.Context, channelID string, msg Message) error
}

// QueueReader is the read side the periodic broadcasts need.
type QueueReader interface {
	GetStatus(ctx context.Context, userID string) (*queue.Status, error)
	GetQueueStats(ctx context.Context) (*queue.Stats, error)
}

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("notifier: already started")

// Notifier fans events out to bound users and topics.
type Notifier struct {
	transport Transport
	feed      shared.EventSubscriber
	queue     QueueReader
	clock     timeutil.Clock
	log       *logger.Logger
	timeout   time.Duration

	mu       sync.RWMutex
	bindings map[string]string
	started  bool
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option { return func(n *Notifier) { n.log = l } }

// WithClock overrides the time source for message timestamps.
func WithClock(c timeutil.Clock) Option { return func(n *Notifier) { n.clock = c } }

// WithSendTimeout bounds each transport call (default 2s).
func WithSendTimeout(d time.Duration) Option { return func(n *Notifier) { n.timeout = d } }

// New creates a notifier over transport, fed by feed.
func New(transport Transport, feed shared.EventSubscriber, q QueueReader, opts ...Option) *Notifier {
	n := &Notifier{
		transport: transport,
		feed:      feed,
		queue:     q,
		clock:     timeutil.SystemClock{},
		log:       logger.Nop(),
		timeout:   2 * time.Second,
		bindings:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.log = n.log.With(logger.Component("queue_notifier"))
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// BINDINGS
// ══════════════════════════════════════════════════════════════════════════════

// Bind routes userID's messages to channelID, replacing any earlier binding.
func (n *Notifier) Bind(userID, channelID string) {
	n.mu.Lock()
	n.bindings[userID] = channelID
	n.mu.Unlock()
}

// Unbind forgets userID.
func (n *Notifier) Unbind(userID string) {
	n.mu.Lock()
	delete(n.bindings, userID)
	n.mu.Unlock()
}

// UnbindChannel forgets whichever user is bound to channelID. A user who has
// since reconnected on another channel keeps the new binding.
func (n *Notifier) UnbindChannel(channelID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for user, ch := range n.bindings {
		if ch == channelID {
			delete(n.bindings, user)
		}
	}
}

// ChannelOf returns the channel bound to userID.
func (n *Notifier) ChannelOf(userID string) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ch, ok := n.bindings[userID]
	return ch, ok
}

func (n *Notifier) snapshot() map[string]string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]string, len(n.bindings))
	for u, ch := range n.bindings {
		out[u] = ch
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT FEED
// ══════════════════════════════════════════════════════════════════════════════

// Start subscribes to the shared event feed.
func (n *Notifier) Start() error {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return ErrAlreadyStarted
	}
	n.started = true
	n.mu.Unlock()

	for _, t := range []shared.EventType{
		shared.EventQueueJoined,
		shared.EventQueueLeft,
		shared.EventMatchFound,
		shared.EventQueueRebalanced,
	} {
		if err := n.feed.Subscribe(t, n.handle); err != nil {
			return err
		}
	}
	return nil
}

// handle reads everything through Payload so events rebuilt from another
// instance deliver the same way as local ones.
func (n *Notifier) handle(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	payload := event.Payload()
	msg := Message{Type: string(event.EventType()), Data: payload, Timestamp: event.OccurredAt()}

	switch event.EventType() {
	case shared.EventQueueJoined, shared.EventQueueLeft:
		n.sendToUser(ctx, stringField(payload, "user_id"), msg)
	case shared.EventMatchFound:
		n.sendToUser(ctx, stringField(payload, "user_a"), msg)
		n.sendToUser(ctx, stringField(payload, "user_b"), msg)
	case shared.EventQueueRebalanced:
		n.publish(ctx, TopicQueue, msg)
	}
	return nil
}

func (n *Notifier) sendToUser(ctx context.Context, userID string, msg Message) bool {
	if userID == "" {
		return false
	}
	channelID, ok := n.ChannelOf(userID)
	if !ok {
		return false
	}
	if err := n.transport.SendToChannel(ctx, channelID, msg); err != nil {
		n.log.Warn("delivery failed",
			logger.UserID(userID),
			logger.ChannelID(channelID),
			logger.String("type", msg.Type),
			logger.Err(err),
		)
		return false
	}
	return true
}

func (n *Notifier) publish(ctx context.Context, topic string, msg Message) {
	if err := n.transport.Publish(ctx, topic, msg); err != nil {
		n.log.Warn("broadcast failed", logger.String("topic", topic), logger.String("type", msg.Type), logger.Err(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PERIODIC BROADCASTS
// ══════════════════════════════════════════════════════════════════════════════

// BroadcastPositions sends a fresh position to every bound user who is still
// queued and returns how many were delivered.
func (n *Notifier) BroadcastPositions(ctx context.Context) (int, error) {
	var (
		sent    int
		lastErr error
	)
	for userID := range n.snapshot() {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		status, err := n.queue.GetStatus(ctx, userID)
		if err != nil {
			lastErr = err
			n.log.Warn("position lookup failed", logger.UserID(userID), logger.Err(err))
			continue
		}
		if status == nil {
			continue
		}

		sctx, cancel := context.WithTimeout(ctx, n.timeout)
		if n.sendToUser(sctx, userID, Message{
			Type: string(shared.EventQueuePositionUpdate),
			Data: map[string]interface{}{
				"user_id":           userID,
				"session_type":      string(status.SessionType),
				"position":          status.Position,
				"competing":         status.Competing,
				"estimated_wait_ms": status.EstimatedWait.Milliseconds(),
				"estimated_wait":    timeutil.FormatRelative(status.EstimatedWait),
				"priority":          status.Priority,
				"expires_at":        status.ExpiresAt,
			},
			Timestamp: n.clock.Now(),
		}) {
			sent++
		}
		cancel()
	}
	return sent, lastErr
}

// BroadcastStats publishes the queue stats to every connected client.
func (n *Notifier) BroadcastStats(ctx context.Context) error {
	stats, err := n.queue.GetQueueStats(ctx)
	if err != nil {
		return err
	}

	byType := make(map[string]interface{}, len(stats.ByType))
	for t, c := range stats.ByType {
		byType[string(t)] = c
	}
	byUrgency := make(map[string]interface{}, len(stats.ByUrgency))
	for u, c := range stats.ByUrgency {
		byUrgency[string(u)] = c
	}

	sctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	return n.transport.Publish(sctx, TopicStats, Message{
		Type: string(shared.EventQueueStatsUpdate),
		Data: map[string]interface{}{
			"total":                   stats.Total,
			"by_type":                 byType,
			"by_urgency":              byUrgency,
			"average_wait_ms":         stats.AverageWait.Milliseconds(),
			"average_service_time_ms": stats.AverageServiceTime.Milliseconds(),
			"busiest_hour":            stats.BusiestHour,
		},
		Timestamp: n.clock.Now(),
	})
}

func stringField(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return s
}

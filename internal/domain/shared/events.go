// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Queue and matching event types. The string values double as the
// client-facing message types.
const (
	EventQueueJoined         EventType = "queue_joined"
	EventQueueLeft           EventType = "queue_left"
	EventQueuePositionUpdate EventType = "queue_position_update"
	EventMatchFound          EventType = "match_found"
	EventQueueStatsUpdate    EventType = "queue_stats_update"
	EventQueueRebalanced     EventType = "queue_rebalanced"
)

// Reasons attached to queue_left.
const (
	LeftReasonUser    = "user"
	LeftReasonExpired = "expired"
	LeftReasonMatched = "matched"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	// For queue events this is the user id.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Queue Events
// ═══════════════════════════════════════════════════════════════════════════

// QueueJoinedEvent is emitted after a request is upserted into the queue.
type QueueJoinedEvent struct {
	BaseEvent
	UserID        string
	SessionType   string
	Urgency       string
	Position      int
	EstimatedWait time.Duration
}

// Payload implements Event interface.
func (e QueueJoinedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":           e.UserID,
		"session_type":      e.SessionType,
		"urgency":           e.Urgency,
		"position":          e.Position,
		"estimated_wait_ms": e.EstimatedWait.Milliseconds(),
	}
}

// NewQueueJoinedEvent creates a new QueueJoinedEvent.
func NewQueueJoinedEvent(userID, sessionType, urgency string, position int, wait time.Duration) QueueJoinedEvent {
	return QueueJoinedEvent{
		BaseEvent:     NewBaseEvent(EventQueueJoined, userID),
		UserID:        userID,
		SessionType:   sessionType,
		Urgency:       urgency,
		Position:      position,
		EstimatedWait: wait,
	}
}

// QueueLeftEvent is emitted when an entry leaves the queue for any reason.
type QueueLeftEvent struct {
	BaseEvent
	UserID string
	Reason string
}

// Payload implements Event interface.
func (e QueueLeftEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"reason":  e.Reason,
	}
}

// NewQueueLeftEvent creates a new QueueLeftEvent.
func NewQueueLeftEvent(userID, reason string) QueueLeftEvent {
	return QueueLeftEvent{
		BaseEvent: NewBaseEvent(EventQueueLeft, userID),
		UserID:    userID,
		Reason:    reason,
	}
}

// MatchFoundEvent is emitted once per successful claim.
type MatchFoundEvent struct {
	BaseEvent
	SessionID   string
	UserA       string
	UserB       string
	SessionType string
	Score       float64
	Components  map[string]float64
}

// Payload implements Event interface.
func (e MatchFoundEvent) Payload() map[string]interface{} {
	components := make(map[string]interface{}, len(e.Components))
	for k, v := range e.Components {
		components[k] = v
	}
	return map[string]interface{}{
		"session_id":   e.SessionID,
		"user_a":       e.UserA,
		"user_b":       e.UserB,
		"session_type": e.SessionType,
		"score":        e.Score,
		"components":   components,
	}
}

// NewMatchFoundEvent creates a new MatchFoundEvent.
func NewMatchFoundEvent(sessionID, userA, userB, sessionType string, score float64, components map[string]float64) MatchFoundEvent {
	return MatchFoundEvent{
		BaseEvent:   NewBaseEvent(EventMatchFound, sessionID),
		SessionID:   sessionID,
		UserA:       userA,
		UserB:       userB,
		SessionType: sessionType,
		Score:       score,
		Components:  components,
	}
}

// RankedUser is one row of a rebalance snapshot.
type RankedUser struct {
	UserID   string  `json:"user_id"`
	Position int     `json:"position"`
	Priority float64 `json:"priority"`
}

// QueueRebalancedEvent carries the freshly computed ranking.
type QueueRebalancedEvent struct {
	BaseEvent
	Ranking []RankedUser
}

// Payload implements Event interface.
func (e QueueRebalancedEvent) Payload() map[string]interface{} {
	ranking := make([]interface{}, 0, len(e.Ranking))
	for _, r := range e.Ranking {
		ranking = append(ranking, map[string]interface{}{
			"user_id":  r.UserID,
			"position": r.Position,
			"priority": r.Priority,
		})
	}
	return map[string]interface{}{
		"total":   len(e.Ranking),
		"ranking": ranking,
	}
}

// NewQueueRebalancedEvent creates a new QueueRebalancedEvent.
func NewQueueRebalancedEvent(ranking []RankedUser) QueueRebalancedEvent {
	return QueueRebalancedEvent{
		BaseEvent: NewBaseEvent(EventQueueRebalanced, "queue"),
		Ranking:   ranking,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// Package messaging carries queue and match events between the matching
// engine, the cleanup service and the notifier. The in-memory bus serves a
// single process; the Redis bus fans events out across instances.
package messaging

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/logger"
)

var (
	ErrEventBusClosed = errors.New("event bus is closed")
	ErrNilHandler     = errors.New("handler cannot be nil")
	ErrNilEvent       = errors.New("event cannot be nil")
)

// InMemoryEventBusConfig configures an InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode hands each delivery to a bounded pool of goroutines instead
	// of running handlers on the publisher's goroutine.
	AsyncMode      bool
	WorkerPoolSize int

	Logger *logger.Logger
}

// DefaultInMemoryEventBusConfig is the asynchronous bus used by the binaries.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 10}
}

// InMemoryEventBus dispatches events to handlers in this process. Handler
// errors and panics are logged and counted; they never reach the publisher.
type InMemoryEventBus struct {
	log   *logger.Logger
	async bool
	slots chan struct{}
	done  chan struct{}
	wg    sync.WaitGroup

	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	wildcard []shared.EventHandler
	closed   bool

	counters
}

// NewInMemoryEventBus creates a bus ready for use.
func NewInMemoryEventBus(cfg InMemoryEventBusConfig) *InMemoryEventBus {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 10
	}
	return &InMemoryEventBus{
		log:    cfg.Logger.Named("eventbus"),
		async:  cfg.AsyncMode,
		slots:  make(chan struct{}, cfg.WorkerPoolSize),
		done:   make(chan struct{}),
		byType: make(map[shared.EventType][]shared.EventHandler),
		counters: counters{
			published: make(map[shared.EventType]int64),
		},
	}
}

// Subscribe registers handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.subscribe(handler, func() {
		b.byType[eventType] = append(b.byType[eventType], handler)
	})
}

// SubscribeAll registers handler for every event type.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.subscribe(handler, func() {
		b.wildcard = append(b.wildcard, handler)
	})
}

func (b *InMemoryEventBus) subscribe(handler shared.EventHandler, add func()) error {
	if handler == nil {
		return ErrNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	add()
	return nil
}

// Publish delivers event to the handlers of its type, then to the wildcard
// handlers.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	typed := b.byType[event.EventType()]
	targets := make([]shared.EventHandler, 0, len(typed)+len(b.wildcard))
	targets = append(append(targets, typed...), b.wildcard...)
	if b.async {
		// Added under the lock so Close cannot start waiting in between.
		b.wg.Add(len(targets))
	}
	b.mu.RUnlock()

	b.countPublish(event.EventType())
	for _, h := range targets {
		if b.async {
			b.deliverAsync(event, h)
		} else {
			b.deliver(event, h)
		}
	}
	return nil
}

// deliverAsync expects the caller to have added to wg.
func (b *InMemoryEventBus) deliverAsync(event shared.Event, h shared.EventHandler) {
	go func() {
		defer b.wg.Done()
		select {
		case b.slots <- struct{}{}:
		case <-b.done:
			return
		}
		defer func() { <-b.slots }()
		b.deliver(event, h)
	}()
}

func (b *InMemoryEventBus) deliver(event shared.Event, h shared.EventHandler) {
	start := time.Now()
	err := invoke(event, h)
	b.countHandler(time.Since(start), err)
	if err != nil {
		b.log.Error("event handler failed",
			logger.String("event_type", string(event.EventType())),
			logger.String("aggregate_id", event.AggregateID()),
			logger.Err(err),
		)
	}
}

func invoke(event shared.Event, h shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(event)
}

// Close rejects further use and waits for queued deliveries. Deliveries still
// waiting for a pool slot are dropped.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
	b.log.Info("event bus closed")
	return nil
}

// Stats snapshots the bus counters.
func (b *InMemoryEventBus) Stats() BusStats { return b.snapshot() }

// BusStats counts traffic through a bus. The Remote fields stay zero on the
// in-memory bus.
type BusStats struct {
	Published       map[shared.EventType]int64
	TotalPublished  int64
	HandlerRuns     int64
	HandlerFailures int64
	AvgHandlerTime  time.Duration

	RemoteSent     int64
	RemoteFailed   int64
	RemoteReceived int64
	RemoteDropped  int64
}

type counters struct {
	statsMu     sync.Mutex
	published   map[shared.EventType]int64
	handlerTime time.Duration

	handlerRuns     atomic.Int64
	handlerFailures atomic.Int64
}

func (c *counters) countPublish(t shared.EventType) {
	c.statsMu.Lock()
	c.published[t]++
	c.statsMu.Unlock()
}

func (c *counters) countHandler(d time.Duration, err error) {
	c.statsMu.Lock()
	c.handlerTime += d
	c.statsMu.Unlock()
	c.handlerRuns.Add(1)
	if err != nil {
		c.handlerFailures.Add(1)
	}
}

func (c *counters) snapshot() BusStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	s := BusStats{
		Published:       make(map[shared.EventType]int64, len(c.published)),
		HandlerRuns:     c.handlerRuns.Load(),
		HandlerFailures: c.handlerFailures.Load(),
	}
	for t, n := range c.published {
		s.Published[t] = n
		s.TotalPublished += n
	}
	if s.HandlerRuns > 0 {
		s.AvgHandlerTime = c.handlerTime / time.Duration(s.HandlerRuns)
	}
	return s
}

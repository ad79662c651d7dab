// Package realtime is the server-sent-events transport behind the queue
// notifier. Each connected client gets an addressable channel (its client
// ID) and may join broadcast topics.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/application/notifier"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/logger"
)

var (
	ErrChannelNotFound      = errors.New("realtime: channel not found")
	ErrBufferFull           = errors.New("realtime: outbound buffer full")
	ErrStreamingUnsupported = errors.New("realtime: streaming unsupported")
)

// Client is one live SSE connection.
type Client struct {
	ID     string
	UserID string

	topics    map[string]struct{}
	outbound  chan notifier.Message
	done      chan struct{}
	closeOnce sync.Once
}

// Done is closed when the hub drops the client.
func (c *Client) Done() <-chan struct{} { return c.done }

// Handler receives topic messages in-process.
type Handler func(notifier.Message)

// HubConfig tunes buffering and keepalives.
type HubConfig struct {
	BufferSize int
	Heartbeat  time.Duration
	Logger     *logger.Logger
}

// Hub routes messages to clients by channel and topic.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	topics   map[string]map[*Client]struct{}
	handlers map[string]map[int]Handler
	nextID   int

	bufferSize int
	heartbeat  time.Duration
	log        *logger.Logger
}

// NewHub creates a hub. BufferSize defaults to 16, Heartbeat to 15s.
func NewHub(cfg HubConfig) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 16
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		topics:     make(map[string]map[*Client]struct{}),
		handlers:   make(map[string]map[int]Handler),
		bufferSize: cfg.BufferSize,
		heartbeat:  cfg.Heartbeat,
		log:        cfg.Logger.With(logger.Component("sse_hub")),
	}
}

// Connect registers a client for userID.
func (h *Hub) Connect(userID string) *Client {
	c := &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		topics:   make(map[string]struct{}),
		outbound: make(chan notifier.Message, h.bufferSize),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	h.log.Debug("client connected", logger.ChannelID(c.ID), logger.UserID(userID))
	return c
}

// Join adds the client to topic.
func (h *Hub) Join(c *Client, topic string) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	c.topics[topic] = struct{}{}
	members, ok := h.topics[topic]
	if !ok {
		members = make(map[*Client]struct{})
		h.topics[topic] = members
	}
	members[c] = struct{}{}
}

// Leave removes the client from topic.
func (h *Hub) Leave(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, topic)
}

func (h *Hub) leaveLocked(c *Client, topic string) {
	delete(c.topics, topic)
	if members, ok := h.topics[topic]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Disconnect drops the client from every topic and closes it. Safe to call
// more than once.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	for topic := range c.topics {
		h.leaveLocked(c, topic)
	}
	delete(h.clients, c.ID)
	h.mu.Unlock()

	c.closeOnce.Do(func() { close(c.done) })
	h.log.Debug("client disconnected", logger.ChannelID(c.ID), logger.UserID(c.UserID))
}

// Close disconnects every client, ending their streams.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Disconnect(c)
	}
}

// Subscribe registers an in-process handler for topic and returns a func
// that removes it.
func (h *Hub) Subscribe(topic string, handler Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	hs, ok := h.handlers[topic]
	if !ok {
		hs = make(map[int]Handler)
		h.handlers[topic] = hs
	}
	hs[id] = handler

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.handlers[topic], id)
	}
}

// Publish implements notifier.Transport. Slow clients miss messages rather
// than stall the publisher.
func (h *Hub) Publish(_ context.Context, topic string, msg notifier.Message) error {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		members = append(members, c)
	}
	handlers := make([]Handler, 0, len(h.handlers[topic]))
	for _, fn := range h.handlers[topic] {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if !h.offer(c, msg) {
			h.log.Warn("dropping message; outbound buffer full",
				logger.ChannelID(c.ID), logger.String("topic", topic), logger.String("type", msg.Type))
		}
	}
	for _, fn := range handlers {
		fn(msg)
	}
	return nil
}

// SendToChannel implements notifier.Transport.
func (h *Hub) SendToChannel(_ context.Context, channelID string, msg notifier.Message) error {
	h.mu.RLock()
	c, ok := h.clients[channelID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}
	if !h.offer(c, msg) {
		return fmt.Errorf("%w: %s", ErrBufferFull, channelID)
	}
	return nil
}

func (h *Hub) offer(c *Client, msg notifier.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outbound <- msg:
		return true
	default:
		return false
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve streams the client's messages until the request ends or the client
// is disconnected. onReady runs once the stream headers are flushed.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, c *Client, onReady func()) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: connected\ndata: {\"channel_id\":%q}\n\n", c.ID)
	flusher.Flush()
	if onReady != nil {
		onReady()
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return nil
		case <-c.done:
			return nil
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg := <-c.outbound:
			raw, err := json.Marshal(msg)
			if err != nil {
				h.log.Warn("failed to marshal message", logger.Err(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, raw)
			flusher.Flush()
		}
	}
}

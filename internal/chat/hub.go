// Package chat implements the storefront chat room: persisted messages and a
// websocket fan-out hub.
package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

const (
	defaultClientBuffer = 100
	eventsBuffer        = 512
)

type client struct {
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans out published frames to every subscriber. A subscriber whose
// buffer is full is dropped and its channel closed.
type Hub struct {
	logger zerolog.Logger
	buffer int

	mu      sync.RWMutex
	clients map[*client]struct{}
	events  chan []byte
}

func NewHub(logger zerolog.Logger, clientBuffer int) *Hub {
	if clientBuffer <= 0 {
		clientBuffer = defaultClientBuffer
	}
	return &Hub{
		logger:  logger,
		buffer:  clientBuffer,
		clients: make(map[*client]struct{}),
		events:  make(chan []byte, eventsBuffer),
	}
}

// Run delivers published frames until ctx is cancelled, then closes all
// subscriptions
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				c.close()
			}
			h.mu.Unlock()
			return
		case data := <-h.events:
			h.deliver(data)
		}
	}
}

func (h *Hub) deliver(data []byte) {
	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, c := range slow {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
	h.logger.Warn().Int("dropped", len(slow)).Msg("Dropped slow chat clients")
}

// Publish queues a frame for every subscriber
func (h *Hub) Publish(ctx context.Context, data []byte) error {
	select {
	case h.events <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscription receives frames from the hub
type Subscription struct {
	C <-chan []byte

	hub    *Hub
	client *client
}

// Subscribe registers a new subscriber
func (h *Hub) Subscribe() *Subscription {
	c := &client{send: make(chan []byte, h.buffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return &Subscription{C: c.send, hub: h, client: c}
}

// Close unregisters the subscriber. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	delete(s.hub.clients, s.client)
	s.hub.mu.Unlock()
	s.client.close()
}

// Clients returns the number of live subscribers
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

package httpapi

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

const defaultClientBuffer = 64

// Hub fans published events out to connected websocket clients. Publish never
// blocks: a client whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	clients map[*subscriber]struct{}
	buffer  int
	dropped atomic.Uint64
	logger  *slog.Logger
}

type subscriber struct {
	send chan any
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*subscriber]struct{}),
		buffer:  buffer,
		logger:  logger,
	}
}

// Publish implements session.Publisher.
func (h *Hub) Publish(ev any) {
	if h == nil || ev == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			if n := h.dropped.Add(1); n == 1 || n%100 == 0 {
				h.logger.Warn("event client too slow, dropping", "dropped_total", n)
			}
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many deliveries were skipped for slow clients.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) subscribe() *subscriber {
	c := &subscriber{send: make(chan any, h.buffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) unsubscribe(c *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

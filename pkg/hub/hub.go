package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	name string
	log  *slog.Logger

	clients    map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	// guards len(clients) for readers outside Run
	mu sync.RWMutex

	running atomic.Bool
	dropped atomic.Uint64
	done    chan struct{}
}

// New creates a hub. Call Run before registering clients.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		log:        logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled. All clients are
// disconnected on return.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client connected", "remote", c.remote, "clients", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client disconnected", "remote", c.remote, "clients", n)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer; its write pump closes the socket.
					delete(h.clients, c)
					close(c.send)
					h.log.Warn("dropped slow client", "remote", c.remote)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for all clients. It never blocks; the message is
// dropped when the queue is full or the hub is not running.
func (h *Hub) Broadcast(msg Message) {
	if !h.running.Load() {
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		if h.dropped.Add(1)%100 == 1 {
			h.log.Warn("broadcast queue full, dropping", "dropped", h.dropped.Load())
		}
	}
}

// BroadcastJSON encodes and broadcasts v.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(JSON(data))
	return nil
}

// BroadcastBinary broadcasts binary data such as a JPEG frame.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(Binary(data))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/chandanyadavsde/vms-v2/internal/services/prelr"
	"github.com/sirupsen/logrus"
)

// Hub maintains the set of active clients and broadcasts sync events
type Hub struct {
	// Registered clients map: ClientID -> Client
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	// Mutex for thread-safe access to clients map
	mu  sync.RWMutex
	log *logrus.Entry
}

// NewHub creates a new Hub instance
func NewHub(log *logrus.Entry) *Hub {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
		log:        log.WithField("component", "ws-hub"),
	}
}

// Run starts the hub's main loop. It returns when ctx is done, after
// closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.ID]; ok {
				close(old.send)
			}
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.WithField("client", client.ID).Debug("dashboard connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.ID]; ok && current == client {
				delete(h.clients, client.ID)
				close(client.send)
				h.log.WithField("client", client.ID).Debug("dashboard disconnected")
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow consumer
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Notify implements prelr.Notifier. Events are dropped when the broadcast
// buffer is full.
func (h *Hub) Notify(e prelr.Event) {
	msg, err := json.Marshal(e)
	if err != nil {
		h.log.WithError(err).Error("failed to marshal event")
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.log.WithField("type", e.Type).Warn("event dropped: broadcast buffer full")
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

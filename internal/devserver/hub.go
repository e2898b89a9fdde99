package devserver

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/concord-chat/livechat/internal/protocol"
)

// broadcast is a frame relayed to every client except its sender.
// A non-nil raw is sent as is.
type broadcast struct {
	from  *Client
	frame protocol.BroadcastFrame
	raw   []byte
}

// Hub maintains the set of active clients and relays chat frames
type Hub struct {
	// Registered clients
	clients map[*Client]struct{}

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Inbound frames from clients
	broadcast chan broadcast

	// Client count requests
	count chan chan int

	// Closed when Run returns
	done chan struct{}

	logger *zap.Logger
}

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcast, 256),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop; it returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.logger.Info("client registered",
				zap.String("user_id", client.userID),
				zap.Int("clients", len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("client unregistered", zap.String("user_id", client.userID))
			}

		case msg := <-h.broadcast:
			h.relay(msg)

		case reply := <-h.count:
			reply <- len(h.clients)

		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		}
	}
}

// relay sends a frame to every client except the sender
func (h *Hub) relay(msg broadcast) {
	data := msg.raw
	if data == nil {
		var err error
		if data, err = json.Marshal(msg.frame); err != nil {
			h.logger.Error("failed to marshal frame", zap.Error(err))
			return
		}
	}

	for client := range h.clients {
		if client == msg.from {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Client's buffer is full, skip
			h.logger.Warn("client buffer full, dropping frame", zap.String("user_id", client.userID))
		}
	}
}

// submit queues a frame for relay unless the hub has stopped
func (h *Hub) submit(msg broadcast) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// join registers a client; it returns false if the hub has stopped
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters a client unless the hub has stopped
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Inject sends a raw frame to every client
func (h *Hub) Inject(raw string) {
	h.submit(broadcast{raw: []byte(raw)})
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	case <-ctx.Done():
		return 0
	}
}

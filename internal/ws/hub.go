package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"vendsim/internal/vending"
)

// Hub tracks connected UI clients and fans the notification stream out to
// them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *zap.Logger
}

// NewHub builds client hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Add registers a new client.
func (h *Hub) Add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
}

// Remove drops a client.
func (h *Hub) Remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
}

// Run forwards notifications to every connected client until ctx ends.
func (h *Hub) Run(ctx context.Context, notifications <-chan vending.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case notification, ok := <-notifications:
			if !ok {
				return
			}
			payload, err := json.Marshal(notification)
			if err != nil {
				h.logger.Warn("failed to encode notification", zap.Error(err))
				continue
			}
			h.broadcast(payload)
		}
	}
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		client.Send(payload)
	}
}

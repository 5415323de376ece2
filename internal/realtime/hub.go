package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// Hub tracks live websocket clients by connection id and delivers outbound
// messages to them. It owns nothing but transport state; room membership
// lives in the Registry.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub constructs an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

// Attach adds a client to the live set.
func (h *Hub) Attach(client *Client) {
	h.mu.Lock()
	h.clients[client.ID()] = client
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("websocket client connected",
		zap.String("connection_id", client.ID()),
		zap.Int("total_clients", total))
}

// Detach removes a client from the live set and closes its send channel.
func (h *Hub) Detach(connectionID string) {
	h.mu.Lock()
	client, exists := h.clients[connectionID]
	if exists {
		delete(h.clients, connectionID)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	if exists {
		h.logger.Info("websocket client disconnected",
			zap.String("connection_id", connectionID),
			zap.Int("total_clients", total))
	}
}

// Send queues a message for one connection without blocking. A full buffer
// or unknown connection reports false and the message is dropped.
func (h *Hub) Send(connectionID string, message Message) bool {
	h.mu.RLock()
	client, exists := h.clients[connectionID]
	h.mu.RUnlock()
	if !exists {
		return false
	}
	select {
	case client.send <- message:
		return true
	default:
		h.logger.Warn("send buffer full, dropping message",
			zap.String("connection_id", connectionID),
			zap.String("message_type", message.Type))
		return false
	}
}

// LiveConnectionIDs returns the transport's live connection set for the
// janitor's reconciliation sweep.
func (h *Hub) LiveConnectionIDs() map[string]struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	live := make(map[string]struct{}, len(h.clients))
	for id := range h.clients {
		live[id] = struct{}{}
	}
	return live
}

// ClientCount reports the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Change actions carried in Message.Action.
const (
	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// Message is a change notification for one row of one table.
type Message struct {
	Type   string `json:"type"`
	Entity string `json:"entity"`
	Action string `json:"action"`
	ID     int64  `json:"id,omitempty"`
	Key    string `json:"key,omitempty"`
}

// NewMessage creates a Message with the Type field derived from table and action.
func NewMessage(table, action string, id int64) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", table, action),
		Entity: table,
		Action: action,
		ID:     id,
	}
}

// Hub maintains the set of active WebSocket clients and fans change
// notifications out to the clients subscribed to the changed table.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("subscriber joined", "id", c.id, "table", c.table)
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to every client subscribed to msg.Entity.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.table != msg.Entity {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client buffer full; drop rather than block writers.
			h.logger.Warn("dropped change notification", "id", c.id, "table", msg.Entity)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

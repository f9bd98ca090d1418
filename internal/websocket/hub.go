package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/campuspulse/campuspulse/internal/model"
)

// Message is one live notification pushed to a connected user.
type Message struct {
	Type           string         `json:"type"`
	NotificationID int64          `json:"notification_id"`
	Kind           string         `json:"kind"`
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	EventID        *int64         `json:"event_id,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	SentAt         time.Time      `json:"sent_at"`
}

// NewMessage converts a stored notification into its live form.
func NewMessage(n *model.Notification, sentAt time.Time) Message {
	return Message{
		Type:           "notification",
		NotificationID: n.ID,
		Kind:           n.Type,
		Title:          n.Title,
		Body:           n.Message,
		EventID:        n.RelatedEvent,
		Data:           n.Data,
		SentAt:         sentAt,
	}
}

// Hub tracks connected clients per user. A user may hold several
// connections, one per open tab or device.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	now     func() time.Time
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		now:     time.Now,
		logger:  logger.With("component", "websocket"),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.clients[c.userID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
}

// Publish sends n to every connection of userID. Users without a live
// connection are ignored; they still have the inbox.
func (h *Hub) Publish(userID int64, n *model.Notification) {
	data, err := json.Marshal(NewMessage(n, h.now().UTC()))
	if err != nil {
		h.logger.Error("marshal notification", "notification_id", n.ID, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[userID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("client buffer full, dropping message", "user_id", userID, "notification_id", n.ID)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Connected reports whether userID has at least one live connection.
func (h *Hub) Connected(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

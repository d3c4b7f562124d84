package ws

import (
	"sync"
)

// Hub tracks open websocket clients per conversation. Message fan-out is done by
// the feed broker; the hub exists so connections can be counted and closed on shutdown.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]struct{})}
}

// Add registers a client under its conversation.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.info.ConversationID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.info.ConversationID] = room
	}
	room[c] = struct{}{}
}

// Remove drops a client; empty rooms are deleted.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.info.ConversationID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.info.ConversationID)
	}
}

// Count returns the number of open clients for a conversation.
func (h *Hub) Count(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// CloseAll closes every open client. Their read loops then run the normal
// disconnect path.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0)
	for _, room := range h.rooms {
		for c := range room {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
}

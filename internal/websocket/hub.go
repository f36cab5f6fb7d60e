package websocket

import (
	"log"
	"sync"
)

// Hub is the presence registry: it maps a user id to its single active
// client. Registering a new client for a user that already has one evicts
// the old client first (last-writer-wins), so at any instant at most one
// session exists per user. All map mutations happen under the mutex; nothing
// blocking is ever done while holding it.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint]*Client
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[uint]*Client),
	}
}

// Register installs client as the active session for its user. If a session
// is already registered for that user it is force-closed before the new one
// takes its place. A second login from the same account therefore silently
// disconnects the first; this is intentional, not a race.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.clients[client.UserID]; ok && existing != client {
		log.Printf("User %d already has a session %s, evicting it for %s",
			client.UserID, existing.SessionToken, client.SessionToken)
		existing.shutdown()
	}
	h.clients[client.UserID] = client
}

// Unregister removes client from the registry, but only if it is still the
// session currently registered for its user. This keeps a stale disconnect
// from erasing a newer session that already replaced it. The client's send
// path is shut down either way.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if current, ok := h.clients[client.UserID]; ok && current == client {
		delete(h.clients, client.UserID)
	}
	h.mu.Unlock()

	client.shutdown()
}

// IsOnline reports whether userID has an active session.
func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// SessionOf returns the active session for userID, or nil.
func (h *Hub) SessionOf(userID uint) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[userID]
}

// Deliver routes payload to userID's session. Returns false when the user is
// offline or the session could not accept the payload, in which case the
// caller falls back to the offline buffer.
func (h *Hub) Deliver(userID uint, payload []byte) bool {
	h.mu.RLock()
	client := h.clients[userID]
	h.mu.RUnlock()

	if client == nil {
		return false
	}
	return client.Enqueue(payload)
}

// OnlineCount returns the number of registered sessions.
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

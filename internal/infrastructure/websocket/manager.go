package websocket

import (
	"encoding/json"
	"sync"

	"tradelink/pkg/logger"
)

// Manager is the in-process connection registry. It tracks two group
// namespaces: per-user notification groups and per-thread rooms. A
// client may sit in both, and a user may hold several connections in
// the same group. Join and leave are idempotent.
type Manager struct {
	mu         sync.RWMutex
	userGroups map[string]map[*Client]bool
	rooms      map[string]map[*Client]bool
}

func NewManager() *Manager {
	return &Manager{
		userGroups: make(map[string]map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
	}
}

func (m *Manager) JoinUserGroup(userID string, client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.userGroups[userID] == nil {
		m.userGroups[userID] = make(map[*Client]bool)
	}
	m.userGroups[userID][client] = true
}

func (m *Manager) LeaveUserGroup(userID string, client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if clients, ok := m.userGroups[userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(m.userGroups, userID)
		}
	}
}

func (m *Manager) JoinRoom(threadID string, client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rooms[threadID] == nil {
		m.rooms[threadID] = make(map[*Client]bool)
	}
	m.rooms[threadID][client] = true
}

func (m *Manager) LeaveRoom(threadID string, client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if clients, ok := m.rooms[threadID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(m.rooms, threadID)
		}
	}
}

// SendToUser delivers payload to every connection in the user's
// notification group. A user with no open connections is a no-op.
func (m *Manager) SendToUser(userID string, payload interface{}) {
	m.broadcast(m.userGroups, userID, payload)
}

// BroadcastToRoom delivers payload to every connection in the thread's
// room, the sender's included.
func (m *Manager) BroadcastToRoom(threadID string, payload interface{}) {
	m.broadcast(m.rooms, threadID, payload)
}

func (m *Manager) broadcast(groups map[string]map[*Client]bool, key string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("broadcast: failed to marshal payload: %v", err)
		return
	}

	// Sends happen under the read lock so a leave followed by a channel
	// close cannot race an in-flight delivery. The sends never block: a
	// slow or dead connection loses the payload instead of stalling the
	// rest of the group.
	m.mu.RLock()
	defer m.mu.RUnlock()

	for client := range groups[key] {
		select {
		case client.Send <- data:
		default:
			logger.Warn("broadcast: dropping payload for slow client user=%s group=%s", client.UserID, key)
		}
	}
}

package realtime

import (
	"sort"
	"strings"
	"sync"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/metrics"
)

const chatRoomPrefix = "chat:"

func workspaceRoom(workspaceID string) string { return workspaceID }

func chatRoom(workspaceID string) string { return chatRoomPrefix + workspaceID }

// Identity is who a connection authenticated as.
type Identity struct {
	UserID   string
	Username string
}

// Conn is one client connection as the router sees it.
type Conn interface {
	ID() string
	Identity() Identity
	// Send queues a frame without blocking; false means it was dropped.
	Send(payload []byte) bool
	Close()
}

// Hub tracks room membership in process. It is rebuilt from scratch on
// restart.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Conn
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[string]Conn)}
}

// Join adds c to room and reports whether it was not already a member.
func (h *Hub) Join(room string, c Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]Conn)
		h.rooms[room] = members
	}
	if _, exists := members[c.ID()]; exists {
		return false
	}
	members[c.ID()] = c
	metrics.RoomConnections.Inc()
	return true
}

func (h *Hub) Leave(room, connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(room, connID)
}

func (h *Hub) leaveLocked(room, connID string) bool {
	members, ok := h.rooms[room]
	if !ok {
		return false
	}
	if _, exists := members[connID]; !exists {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	metrics.RoomConnections.Dec()
	return true
}

// LeaveAll removes the connection from every room and returns those rooms.
func (h *Hub) LeaveAll(connID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var left []string
	for room := range h.rooms {
		if h.leaveLocked(room, connID) {
			left = append(left, room)
		}
	}
	sort.Strings(left)
	return left
}

func (h *Hub) IsMember(room, connID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][connID]
	return ok
}

func (h *Hub) Members(room string) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Conn, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		out = append(out, c)
	}
	return out
}

// Broadcast sends payload to every member of room except exceptID and
// returns how many members accepted it.
func (h *Hub) Broadcast(room string, payload []byte, exceptID string) int {
	delivered := 0
	for _, c := range h.Members(room) {
		if c.ID() == exceptID {
			continue
		}
		if c.Send(payload) {
			delivered++
		}
	}
	return delivered
}

// ActiveWorkspaces lists workspaces whose room has at least one member.
func (h *Hub) ActiveWorkspaces() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.rooms))
	for room := range h.rooms {
		if !strings.HasPrefix(room, chatRoomPrefix) {
			out = append(out, room)
		}
	}
	sort.Strings(out)
	return out
}

// CloseAll closes every connection in every room.
func (h *Hub) CloseAll() {
	seen := map[string]Conn{}
	h.mu.RLock()
	for _, members := range h.rooms {
		for id, c := range members {
			seen[id] = c
		}
	}
	h.mu.RUnlock()
	for _, c := range seen {
		c.Close()
	}
}

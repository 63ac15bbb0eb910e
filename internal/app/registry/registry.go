package registry

import (
	"sync"

	"github.com/arefin-aareef/talksy/internal/core/contracts"
)

// Registry is the in-memory presence directory. One handle per user; rooms
// are keyed by connection id so a superseded connection keeps its own
// memberships until it closes.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]contracts.Handle            // user_id → handle
	room_hub map[string]map[string]contracts.Handle // room_id → conn_id → handle
	joined   map[string]map[string]struct{}         // conn_id → room_ids
}

var _ contracts.Directory = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		clients:  make(map[string]contracts.Handle),
		room_hub: make(map[string]map[string]contracts.Handle),
		joined:   make(map[string]map[string]struct{}),
	}
}

func (h *Registry) Register(userID string, c contracts.Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[userID] = c
}

func (h *Registry) Unregister(userID string, c contracts.Handle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	cur, ok := h.clients[userID]
	if !ok || cur.ID() != c.ID() {
		return false
	}
	delete(h.clients, userID)
	return true
}

func (h *Registry) Lookup(userID string) (contracts.Handle, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[userID]
	return c, ok
}

func (h *Registry) ListAll() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

func (h *Registry) Snapshot() []contracts.Handle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]contracts.Handle, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Registry) JoinRoom(roomID string, c contracts.Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.room_hub[roomID] == nil {
		h.room_hub[roomID] = make(map[string]contracts.Handle)
	}
	h.room_hub[roomID][c.ID()] = c
	if h.joined[c.ID()] == nil {
		h.joined[c.ID()] = make(map[string]struct{})
	}
	h.joined[c.ID()][roomID] = struct{}{}
}

func (h *Registry) LeaveRoom(roomID string, c contracts.Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(roomID, c.ID())
}

func (h *Registry) LeaveAll(c contracts.Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID := range h.joined[c.ID()] {
		h.leave(roomID, c.ID())
	}
}

// leave must be called with mu held.
func (h *Registry) leave(roomID, connID string) {
	if members := h.room_hub[roomID]; members != nil {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.room_hub, roomID)
		}
	}
	if rooms := h.joined[connID]; rooms != nil {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(h.joined, connID)
		}
	}
}

func (h *Registry) RoomMembers(roomID string) []contracts.Handle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]contracts.Handle, 0, len(h.room_hub[roomID]))
	for _, c := range h.room_hub[roomID] {
		out = append(out, c)
	}
	return out
}

package realtime

import (
	"slices"
	"sync"

	"github.com/chess-vn/slpuzzle/pkg/logging"
	"go.uber.org/zap"
)

func userRoom(userId string) string   { return "user:" + userId }
func matchRoom(matchId string) string { return "match:" + matchId }
func lobbyRoom(gameId string) string  { return "lobby:" + gameId }

// hub tracks room membership.
type hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
	of    map[*client][]string
}

func newHub() *hub {
	return &hub{
		rooms: make(map[string]map[*client]struct{}),
		of:    make(map[*client][]string),
	}
}

func (h *hub) join(c *client, rooms ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*client]struct{})
			h.rooms[room] = members
		}
		members[c] = struct{}{}
	}
	h.of[c] = append(h.of[c], rooms...)
}

// remove takes the client out of every room and reports whether it was
// still registered.
func (h *hub) remove(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms, ok := h.of[c]
	if !ok {
		return false
	}
	for _, room := range rooms {
		delete(h.rooms[room], c)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.of, c)
	return true
}

func (h *hub) clients(room string) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		clients = append(clients, c)
	}
	return clients
}

// userIds lists the distinct users connected to a room, sorted.
func (h *hub) userIds(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := []string{}
	for c := range h.rooms[room] {
		if !slices.Contains(ids, c.userId) {
			ids = append(ids, c.userId)
		}
	}
	slices.Sort(ids)
	return ids
}

// connectedUserIds lists every connected user, sorted.
func (h *hub) connectedUserIds() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := []string{}
	for c := range h.of {
		if !slices.Contains(ids, c.userId) {
			ids = append(ids, c.userId)
		}
	}
	slices.Sort(ids)
	return ids
}

func (h *hub) contains(room, userId string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if c.userId == userId {
			return true
		}
	}
	return false
}

// deliver queues msg for one client. A client whose queue is full is
// dropped; it gets the current state again when it reconnects.
func (h *hub) deliver(c *client, msg []byte) {
	if c.enqueue(msg) {
		return
	}
	if h.remove(c) {
		logging.Warn("dropped slow client",
			zap.String("user_id", c.userId),
			zap.String("match_id", c.matchId),
		)
	}
	c.close()
}

func (h *hub) emit(room string, msg []byte) {
	for _, c := range h.clients(room) {
		h.deliver(c, msg)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.of))
	for c := range h.of {
		clients = append(clients, c)
	}
	h.rooms = make(map[string]map[*client]struct{})
	h.of = make(map[*client][]string)
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

package ws

import "sync"

// Hub owns the document rooms: docID -> set of live connections. It is the
// only shared mutable state in the server; every mutation happens under mu.
//
// Rooms hold connections rather than user ids because one user may have
// several tabs open on the same document, and fan-out is per connection.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Conn]struct{})}
}

// Join adds a connection to a document room, creating the room on first use.
func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

// Leave removes a connection from a document room. The room itself is
// dropped once its last member is gone, so an abandoned document retains no
// server-side state. Reports whether the room became empty.
func (h *Hub) Leave(docID string, c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.rooms[docID]
	if !ok {
		return false
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.rooms, docID)
		return true
	}
	return false
}

// Broadcast fans a message out to every member of a document room except
// the sender. Enqueueing never blocks: a recipient whose outbound buffer is
// full or whose connection is closing simply misses the message.
func (h *Hub) Broadcast(docID string, except *Conn, msg ServerMessage) {
	h.mu.RLock()
	recipients := make([]*Conn, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		if c != except {
			recipients = append(recipients, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range recipients {
		c.enqueue(msg)
	}
}

// RoomSize returns the number of connections currently in a document room.
func (h *Hub) RoomSize(docID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[docID])
}

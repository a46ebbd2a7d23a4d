package rooms

import (
	"log/slog"
	"sync"
	"time"
)

// Hub is the in-memory registry of active rooms, keyed by room identifier.
// Rooms are created on first join and destroyed once fully empty. Nothing
// here is persisted.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*Room
	log   *slog.Logger
	now   func() time.Time
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]*Room),
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (h *Hub) room(id string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[id]
	if !ok {
		r = newRoom(id)
		h.rooms[id] = r
		h.log.Info("room created", slog.String("room", id))
	}
	return r
}

func (h *Hub) dropIfEmpty(r *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r.empty() && h.rooms[r.id] == r {
		delete(h.rooms, r.id)
		h.log.Info("room destroyed", slog.String("room", r.id))
	}
}

// RoomCount reports the number of active rooms.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.rooms)
}

// Join attaches the connection to a room, replays recent history to it
// alone and then broadcasts updated counters to the whole room. Joining a
// second room implicitly leaves the first.
func (h *Hub) Join(c *Client, roomID string) {
	if prev := c.currentRoom(); prev != nil {
		if prev.id == roomID {
			return
		}
		h.leave(c, prev)
	}

	r := h.room(roomID)
	history := r.add(c)
	c.setRoom(r)

	c.queueMessage(&ServerMessage{Type: MsgHistory, Room: roomID, History: history})

	stats := r.stats()
	r.broadcast(&ServerMessage{Type: MsgStats, Room: roomID, Stats: &stats})
}

// Message buffers and broadcasts a chat message. Messages from connections
// that never joined a room are dropped.
func (h *Hub) Message(c *Client, text string) {
	r := c.currentRoom()
	if r == nil {
		return
	}

	if runes := []rune(text); len(runes) > maxChatMessage {
		text = string(runes[:maxChatMessage])
	}

	msg := ChatMessage{
		Author: c.name,
		UserID: c.userID,
		Text:   text,
		SentAt: h.now(),
	}
	r.appendMessage(msg)
	r.broadcast(&ServerMessage{Type: MsgMessage, Room: r.id, Message: &msg})
}

// Like asserts the sender's desired like state, acknowledges the sender and
// broadcasts updated counters.
func (h *Hub) Like(c *Client, liked bool) {
	r := c.currentRoom()
	if r == nil {
		return
	}

	r.setLike(c.key, liked)
	c.queueMessage(&ServerMessage{Type: MsgLike, Room: r.id, Liked: &liked})

	stats := r.stats()
	r.broadcast(&ServerMessage{Type: MsgStats, Room: r.id, Stats: &stats})
}

// Announce pushes a system-authored chat message into every active room.
// Rooms that come up later never see it; announcements are not persisted.
func (h *Hub) Announce(text string) {
	h.mu.Lock()
	targets := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		targets = append(targets, r)
	}
	h.mu.Unlock()

	for _, r := range targets {
		msg := ChatMessage{
			Author: "cinema",
			Text:   text,
			SentAt: h.now(),
		}
		r.appendMessage(msg)
		r.broadcast(&ServerMessage{Type: MsgMessage, Room: r.id, Message: &msg})
	}
}

// Disconnect detaches the connection from its room, if any.
func (h *Hub) Disconnect(c *Client) {
	if r := c.currentRoom(); r != nil {
		h.leave(c, r)
	}
}

func (h *Hub) leave(c *Client, r *Room) {
	r.remove(c)
	c.setRoom(nil)

	stats := r.stats()
	r.broadcast(&ServerMessage{Type: MsgStats, Room: r.id, Stats: &stats})

	h.dropIfEmpty(r)
}

package rooms

import (
	"slices"
	"sync"
)

const (
	// historyReplay is how many buffered messages a joining participant
	// receives.
	historyReplay = 80
	// historyCap bounds the per-room buffer; the oldest entries are
	// evicted first.
	historyCap = 300
)

// Room is the aggregate of one real-time channel: connected participants,
// the bounded message buffer and the like-set. All three live behind one
// mutex; rooms are independent of each other and of the durable store.
type Room struct {
	id string

	mu      sync.Mutex
	clients map[*Client]struct{}
	history []ChatMessage
	likes   map[string]struct{}
}

func newRoom(id string) *Room {
	return &Room{
		id:      id,
		clients: make(map[*Client]struct{}),
		likes:   make(map[string]struct{}),
	}
}

// add registers a participant and returns the replay slice for it.
func (r *Room) add(c *Client) []ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[c] = struct{}{}

	start := max(len(r.history)-historyReplay, 0)
	return slices.Clone(r.history[start:])
}

// remove drops a participant and its like, if any.
func (r *Room) remove(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, c)
	delete(r.likes, c.key)
}

// appendMessage buffers a chat message, evicting oldest-first beyond the
// cap.
func (r *Room) appendMessage(msg ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, msg)
	if len(r.history) > historyCap {
		r.history = r.history[len(r.history)-historyCap:]
	}
}

// setLike asserts the participant's desired like state. The client sends
// the target state explicitly, so replayed frames stay idempotent.
func (r *Room) setLike(key string, liked bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if liked {
		r.likes[key] = struct{}{}
	} else {
		delete(r.likes, key)
	}
}

func (r *Room) stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{Viewers: len(r.clients), Likes: len(r.likes)}
}

// empty reports whether the room holds no participants, no buffered
// messages and no likes, i.e. whether it can be destroyed.
func (r *Room) empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.clients) == 0 && len(r.history) == 0 && len(r.likes) == 0
}

// broadcast fans a frame out to every participant. Queueing never blocks;
// participants with a full or closed send queue are skipped.
func (r *Room) broadcast(msg *ServerMessage) {
	r.mu.Lock()
	targets := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		targets = append(targets, c)
	}
	r.mu.Unlock()

	for _, c := range targets {
		c.queueMessage(msg)
	}
}

package rooms

import "time"

// Inbound and outbound message types of the room protocol.
const (
	MsgJoin    = "join"
	MsgMessage = "message"
	MsgLike    = "like"
	MsgHistory = "history"
	MsgStats   = "stats"
)

// ClientMessage is an inbound frame. Frames that don't parse, carry an
// unknown type, or miss their required fields are dropped without a reply.
type ClientMessage struct {
	Type  string `json:"type"`
	Room  string `json:"room,omitempty"`
	Text  string `json:"text,omitempty"`
	Liked *bool  `json:"liked,omitempty"`
}

// ChatMessage is one buffered chat entry. UserID is zero for guests.
type ChatMessage struct {
	Author string    `json:"author"`
	UserID int       `json:"user_id,omitempty"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// Stats carries the viewer and like counters of a room.
type Stats struct {
	Viewers int `json:"viewers"`
	Likes   int `json:"likes"`
}

// ServerMessage is an outbound frame.
type ServerMessage struct {
	Type    string        `json:"type"`
	Room    string        `json:"room"`
	Message *ChatMessage  `json:"message,omitempty"`
	History []ChatMessage `json:"history,omitempty"`
	Stats   *Stats        `json:"stats,omitempty"`
	Liked   *bool         `json:"liked,omitempty"`
}

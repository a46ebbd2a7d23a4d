package rooms

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size allowed from a peer.
	maxFrameSize = 4096

	// Maximum chat message length, in runes. Longer texts are truncated.
	maxChatMessage = 512
)

// Client is one connected participant. Its identity key deduplicates likes:
// authenticated connections share the stable "user:<id>" key across
// reconnects, guests get a fresh per-connection key.
type Client struct {
	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	key    string
	name   string
	userID int

	mu   sync.Mutex
	room *Room
}

// NewClient builds a participant for an upgraded connection. A userID of
// zero means the connection is a guest; nickname may be empty for guests.
func NewClient(conn *websocket.Conn, hub *Hub, userID int, nickname string) *Client {
	c := &Client{
		conn:   conn,
		hub:    hub,
		send:   make(chan []byte, 256),
		userID: userID,
		name:   nickname,
	}

	if userID > 0 {
		c.key = fmt.Sprintf("user:%d", userID)
		if c.name == "" {
			c.name = fmt.Sprintf("user-%d", userID)
		}
	} else {
		id := shortid.MustGenerate()
		c.key = "guest:" + id
		c.name = "guest-" + id
	}

	return c
}

// Start runs the client's read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) currentRoom() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.room
}

func (c *Client) setRoom(r *Room) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.room = r
}

// handleInbound dispatches one raw frame. Malformed or unknown frames are
// dropped silently; the connection stays open.
func (c *Client) handleInbound(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	switch msg.Type {
	case MsgJoin:
		if msg.Room != "" {
			c.hub.Join(c, msg.Room)
		}
	case MsgMessage:
		if msg.Text != "" {
			c.hub.Message(c, msg.Text)
		}
	case MsgLike:
		if msg.Liked != nil {
			c.hub.Like(c, *msg.Liked)
		}
	}
}

// queueMessage enqueues an outbound frame without ever blocking. A
// participant whose queue is full simply misses the frame; it is never
// retried inline.
func (c *Client) queueMessage(msg *ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.log.Error("failed to serialize frame", slog.String("error", err.Error()))
		return
	}

	select {
	case c.send <- data:
	default:
		c.hub.log.Warn("participant queue full, dropping frame", slog.String("participant", c.key))
	}
}

// readPump pumps inbound frames from the connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.log.Error("websocket read error", slog.String("error", err.Error()))
			}
			break
		}
		c.handleInbound(raw)
	}
}

// writePump pumps queued frames to the connection, newline-delimited, and
// keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(data)

			// drain queued frames into the same write
			n := len(c.send)
			for range n {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

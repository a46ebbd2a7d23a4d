package rooms

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// frames drains and decodes everything queued for the participant.
func frames(t *testing.T, c *Client) []ServerMessage {
	t.Helper()

	var out []ServerMessage
	for {
		select {
		case data := <-c.send:
			var msg ServerMessage
			require.NoError(t, json.Unmarshal(data, &msg))
			out = append(out, msg)
		default:
			return out
		}
	}
}

func lastStats(t *testing.T, c *Client) Stats {
	t.Helper()

	var stats *Stats
	for _, f := range frames(t, c) {
		if f.Type == MsgStats {
			stats = f.Stats
		}
	}
	require.NotNil(t, stats, "expected at least one stats frame")
	return *stats
}

func TestJoin_FreshRoom(t *testing.T) {
	hub := newTestHub()
	c := NewClient(nil, hub, 1, "ripley")

	hub.Join(c, "screening-1")

	got := frames(t, c)
	require.Len(t, got, 2)
	assert.Equal(t, MsgHistory, got[0].Type)
	assert.Empty(t, got[0].History)
	assert.Equal(t, MsgStats, got[1].Type)
	assert.Equal(t, Stats{Viewers: 1, Likes: 0}, *got[1].Stats)
	assert.Equal(t, 1, hub.RoomCount())
}

func TestMessage_RoomScoped(t *testing.T) {
	hub := newTestHub()
	a1 := NewClient(nil, hub, 1, "ripley")
	a2 := NewClient(nil, hub, 2, "dallas")
	b := NewClient(nil, hub, 3, "ash")

	hub.Join(a1, "room-a")
	hub.Join(a2, "room-a")
	hub.Join(b, "room-b")
	frames(t, a1)
	frames(t, a2)
	frames(t, b)

	hub.Message(a1, "hello room a")

	for _, c := range []*Client{a1, a2} {
		got := frames(t, c)
		require.Len(t, got, 1)
		assert.Equal(t, MsgMessage, got[0].Type)
		assert.Equal(t, "ripley", got[0].Message.Author)
		assert.Equal(t, 1, got[0].Message.UserID)
		assert.Equal(t, "hello room a", got[0].Message.Text)
	}
	assert.Empty(t, frames(t, b), "other rooms must not see the message")
}

func TestMessage_WithoutRoomIsDropped(t *testing.T) {
	hub := newTestHub()
	c := NewClient(nil, hub, 1, "ripley")

	hub.Message(c, "shouting into the void")
	assert.Empty(t, frames(t, c))
}

func TestMessage_TruncatesLongText(t *testing.T) {
	hub := newTestHub()
	c := NewClient(nil, hub, 1, "ripley")
	hub.Join(c, "room")
	frames(t, c)

	hub.Message(c, strings.Repeat("x", maxChatMessage+100))

	got := frames(t, c)
	require.Len(t, got, 1)
	assert.Len(t, []rune(got[0].Message.Text), maxChatMessage)
}

func TestJoin_ReplaysBoundedHistory(t *testing.T) {
	hub := newTestHub()
	writer := NewClient(nil, hub, 1, "ripley")
	hub.Join(writer, "busy")

	for i := 0; i < historyReplay+20; i++ {
		hub.Message(writer, fmt.Sprintf("msg-%d", i))
	}

	late := NewClient(nil, hub, 2, "dallas")
	hub.Join(late, "busy")

	got := frames(t, late)
	require.NotEmpty(t, got)
	require.Equal(t, MsgHistory, got[0].Type)
	require.Len(t, got[0].History, historyReplay)
	assert.Equal(t, "msg-20", got[0].History[0].Text, "replay starts at the oldest retained entry")
	assert.Equal(t, fmt.Sprintf("msg-%d", historyReplay+19), got[0].History[historyReplay-1].Text)
}

func TestHistory_EvictsOldestBeyondCap(t *testing.T) {
	r := newRoom("busy")

	for i := 0; i < historyCap+5; i++ {
		r.appendMessage(ChatMessage{Text: fmt.Sprintf("msg-%d", i)})
	}

	assert.Len(t, r.history, historyCap)
	assert.Equal(t, "msg-5", r.history[0].Text)
}

func TestLike_Toggle(t *testing.T) {
	hub := newTestHub()
	a := NewClient(nil, hub, 1, "ripley")
	b := NewClient(nil, hub, 0, "")
	hub.Join(a, "room")
	hub.Join(b, "room")
	frames(t, a)
	frames(t, b)

	hub.Like(a, true)
	hub.Like(b, true)
	assert.Equal(t, Stats{Viewers: 2, Likes: 2}, lastStats(t, a))

	// asserting the same state again is idempotent
	hub.Like(a, true)
	assert.Equal(t, 2, lastStats(t, a).Likes)

	hub.Like(a, false)
	assert.Equal(t, 1, lastStats(t, a).Likes)
}

func TestLike_SharedKeyAcrossConnections(t *testing.T) {
	hub := newTestHub()
	phone := NewClient(nil, hub, 7, "ripley")
	laptop := NewClient(nil, hub, 7, "ripley")
	hub.Join(phone, "room")
	hub.Join(laptop, "room")

	hub.Like(phone, true)
	hub.Like(laptop, true)

	assert.Equal(t, Stats{Viewers: 2, Likes: 1}, lastStats(t, phone),
		"one authenticated identity counts once no matter how many connections")
}

func TestLike_DroppedOnLeave(t *testing.T) {
	hub := newTestHub()
	a := NewClient(nil, hub, 1, "ripley")
	b := NewClient(nil, hub, 2, "dallas")
	hub.Join(a, "room")
	hub.Join(b, "room")

	hub.Like(a, true)
	hub.Disconnect(a)

	assert.Equal(t, Stats{Viewers: 1, Likes: 0}, lastStats(t, b))
}

func TestJoin_SwitchingRoomsLeavesTheFirst(t *testing.T) {
	hub := newTestHub()
	c := NewClient(nil, hub, 1, "ripley")

	hub.Join(c, "first")
	hub.Join(c, "second")

	assert.Equal(t, 1, hub.RoomCount(), "the emptied first room is destroyed")
	assert.Equal(t, "second", c.currentRoom().id)

	// re-joining the current room is a no-op
	frames(t, c)
	hub.Join(c, "second")
	assert.Empty(t, frames(t, c))
}

func TestRoomLifecycle(t *testing.T) {
	t.Run("destroyed when fully empty", func(t *testing.T) {
		hub := newTestHub()
		c := NewClient(nil, hub, 1, "ripley")
		hub.Join(c, "quiet")
		hub.Disconnect(c)
		assert.Equal(t, 0, hub.RoomCount())
	})

	t.Run("kept alive by buffered history", func(t *testing.T) {
		hub := newTestHub()
		c := NewClient(nil, hub, 1, "ripley")
		hub.Join(c, "chatty")
		hub.Message(c, "for posterity")
		hub.Disconnect(c)
		assert.Equal(t, 1, hub.RoomCount())

		// a later joiner still gets the replay
		late := NewClient(nil, hub, 2, "dallas")
		hub.Join(late, "chatty")
		got := frames(t, late)
		require.NotEmpty(t, got)
		require.Equal(t, MsgHistory, got[0].Type)
		require.Len(t, got[0].History, 1)
		assert.Equal(t, "for posterity", got[0].History[0].Text)
	})
}

func TestAnnounce(t *testing.T) {
	hub := newTestHub()
	a := NewClient(nil, hub, 1, "ripley")
	b := NewClient(nil, hub, 2, "dallas")
	hub.Join(a, "room-a")
	hub.Join(b, "room-b")
	frames(t, a)
	frames(t, b)

	hub.Announce("New screening scheduled: Alien")

	for _, c := range []*Client{a, b} {
		got := frames(t, c)
		require.Len(t, got, 1)
		assert.Equal(t, MsgMessage, got[0].Type)
		assert.Equal(t, "cinema", got[0].Message.Author)
		assert.Equal(t, "New screening scheduled: Alien", got[0].Message.Text)
	}
}

func TestHandleInbound(t *testing.T) {
	hub := newTestHub()
	c := NewClient(nil, hub, 1, "ripley")

	// none of these may panic, reply or change state
	c.handleInbound([]byte("not json"))
	c.handleInbound([]byte(`{"type":"teleport"}`))
	c.handleInbound([]byte(`{"type":"join"}`))
	c.handleInbound([]byte(`{"type":"message","text":"early"}`))
	c.handleInbound([]byte(`{"type":"like"}`))
	assert.Nil(t, c.currentRoom())
	assert.Empty(t, frames(t, c))
	assert.Equal(t, 0, hub.RoomCount())

	c.handleInbound([]byte(`{"type":"join","room":"screening-1"}`))
	require.NotNil(t, c.currentRoom())

	c.handleInbound([]byte(`{"type":"message","text":"made it"}`))
	c.handleInbound([]byte(`{"type":"like","liked":true}`))

	var sawMessage, sawLike bool
	for _, f := range frames(t, c) {
		switch f.Type {
		case MsgMessage:
			sawMessage = f.Message.Text == "made it"
		case MsgLike:
			sawLike = f.Liked != nil && *f.Liked
		}
	}
	assert.True(t, sawMessage)
	assert.True(t, sawLike)
}

func TestGuestIdentity(t *testing.T) {
	g1 := NewClient(nil, newTestHub(), 0, "")
	g2 := NewClient(nil, newTestHub(), 0, "")

	assert.True(t, strings.HasPrefix(g1.key, "guest:"))
	assert.True(t, strings.HasPrefix(g1.name, "guest-"))
	assert.NotEqual(t, g1.key, g2.key, "every guest connection gets a fresh key")

	u := NewClient(nil, newTestHub(), 9, "")
	assert.Equal(t, "user:9", u.key)
	assert.Equal(t, "user-9", u.name)

	named := NewClient(nil, newTestHub(), 9, "ripley")
	assert.Equal(t, "ripley", named.name)
}

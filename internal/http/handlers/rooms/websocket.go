package rooms

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/filmclub/cinema-service/internal/rooms"
	"github.com/filmclub/cinema-service/internal/session"
	"github.com/filmclub/cinema-service/internal/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow connections from any origin for development
		// In production, you should check the origin properly
		return true
	},
}

// WebSocketHandler upgrades the connection and attaches a client to the hub.
// Credentials come from the user_id and token query parameters; anything
// missing or invalid degrades the connection to a guest rather than
// rejecting it, since rooms are open to unauthenticated viewers.
func WebSocketHandler(hub *rooms.Hub, auth *session.Authority, store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := 0
		nickname := ""

		if rawID := r.URL.Query().Get("user_id"); rawID != "" {
			id, err := strconv.Atoi(rawID)
			token := r.URL.Query().Get("token")
			if err == nil && auth.Validate(id, token) == nil {
				userID = id
				if profile, ok := store.Profile(id); ok {
					nickname = profile.Nickname
				}
			} else {
				slog.Warn("WebSocket connection with invalid credentials, joining as guest",
					slog.String("user_id", rawID))
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("Failed to upgrade WebSocket connection", slog.String("error", err.Error()))
			return
		}

		client := rooms.NewClient(conn, hub, userID, nickname)
		client.Start()

		slog.Info("WebSocket connection established", slog.Int("user_id", userID))
	}
}

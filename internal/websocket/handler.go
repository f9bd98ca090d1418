package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/campuspulse/campuspulse/internal/auth"
)

// HandleWebSocket upgrades an authenticated request and streams the caller's
// notifications until the connection closes. originPatterns restricts
// cross-origin upgrades; empty means same-origin only.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())
		if userID == 0 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept failed", "user_id", userID, "error", err)
			return
		}
		defer conn.CloseNow()

		client := NewClient(hub, conn, userID)
		client.Run(r.Context())
	}
}

package http

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"daily-trivia-service/internal/app"
)

// WatchHandler streams ranked leaderboard snapshots to a connected viewer
// over a websocket. It is a read-only reporting surface: each tick runs the
// same aggregation a GET /leaderboard would.
type WatchHandler struct {
	leaderboard *app.LeaderboardService
	interval    time.Duration
	upgrader    websocket.Upgrader
}

func NewWatchHandler(leaderboard *app.LeaderboardService, interval time.Duration) *WatchHandler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &WatchHandler{
		leaderboard: leaderboard,
		interval:    interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type watchMessage struct {
	Type    string         `json:"type"`
	Payload app.RankResult `json:"payload"`
}

type watchError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ServeWatch upgrades the request and pushes a snapshot immediately, then
// on every interval tick until the client goes away.
func (h *WatchHandler) ServeWatch(w http.ResponseWriter, r *http.Request) {
	query, err := rankQueryFromRequest(r)
	if err != nil {
		http.Error(w, "invalid leaderboard query", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("watch upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Reads only serve to detect the client closing the socket.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		result, err := h.leaderboard.Rank(r.Context(), query)
		if err != nil {
			_ = conn.WriteJSON(watchError{Type: "error", Message: err.Error()})
			return
		}
		if err := conn.WriteJSON(watchMessage{Type: "leaderboard", Payload: result}); err != nil {
			return
		}

		select {
		case <-ticker.C:
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

package mockapi

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/idilsaglam/tasks/internal/live"
)

// Hub fans task events out to every connection that joined as a user.
type Hub struct {
	log *zap.Logger

	mu    sync.Mutex
	conns map[string]map[*websocket.Conn]struct{}
}

func newHub(log *zap.Logger) *Hub {
	return &Hub{log: log, conns: map[string]map[*websocket.Conn]struct{}{}}
}

// Handler serves the WebSocket endpoint. The first frame must be a join.
func (h *Hub) Handler() websocket.Handler {
	return func(ws *websocket.Conn) {
		var f live.Frame
		if err := websocket.JSON.Receive(ws, &f); err != nil {
			return
		}
		var userID string
		if f.Event != live.JoinEvent || json.Unmarshal(f.Data, &userID) != nil || userID == "" {
			h.log.Warn("ws: expected join", zap.String("event", f.Event))
			return
		}
		h.add(userID, ws)
		defer h.remove(userID, ws)
		h.log.Debug("ws: joined", zap.String("user_id", userID))

		// Nothing else is expected from clients; read until they leave.
		for websocket.JSON.Receive(ws, &f) == nil {
		}
	}
}

// Joined is the number of live connections for userID.
func (h *Hub) Joined(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID])
}

// Broadcast sends kind/data to every connection of userID.
func (h *Hub) Broadcast(userID string, kind live.Kind, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.log.Error("ws: encode", zap.Error(err))
		return
	}
	f := live.Frame{Event: string(kind), Data: raw}

	h.mu.Lock()
	targets := make([]*websocket.Conn, 0, len(h.conns[userID]))
	for ws := range h.conns[userID] {
		targets = append(targets, ws)
	}
	h.mu.Unlock()

	for _, ws := range targets {
		if err := websocket.JSON.Send(ws, f); err != nil {
			h.log.Debug("ws: send failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

func (h *Hub) add(userID string, ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = map[*websocket.Conn]struct{}{}
	}
	h.conns[userID][ws] = struct{}{}
}

func (h *Hub) remove(userID string, ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[userID], ws)
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
}

package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chadmichel/chadchat/internal/models"
	"github.com/chadmichel/chadchat/internal/observability"
)

// Hub maintains the active notification connections, keyed by user id. One
// user may hold several connections (multiple terminals).
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*websocket.Conn]bool
	connInfo map[*websocket.Conn]ConnInfo
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:  make(map[string]map[*websocket.Conn]bool),
		connInfo: make(map[*websocket.Conn]ConnInfo),
	}
}

// AddClient registers a websocket connection for a user.
func (h *Hub) AddClient(userID string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[userID]; !ok {
		h.clients[userID] = make(map[*websocket.Conn]bool)
	}
	h.clients[userID][conn] = true
	h.connInfo[conn] = info
}

// RemoveClient removes a user's websocket connection.
func (h *Hub) RemoveClient(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
	}
	delete(h.connInfo, conn)
}

// ConnectionCount reports the number of live connections for a user.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// NotifyMessage pushes a message event to every listed user, the sender
// included: the sender's own echo is what clients render locally.
func (h *Hub) NotifyMessage(userIDs []string, ev models.MessageEvent) {
	h.notify(userIDs, models.RealtimeEvent{Type: "message", Message: &ev})
}

// NotifyThreadCreated pushes a thread-created event to every listed user.
func (h *Hub) NotifyThreadCreated(userIDs []string, ev models.ThreadEvent) {
	h.notify(userIDs, models.RealtimeEvent{Type: "threadCreated", Thread: &ev})
}

func (h *Hub) notify(userIDs []string, event models.RealtimeEvent) {
	payload, _ := json.Marshal(event)

	h.mu.RLock()
	var conns []*websocket.Conn
	seen := map[string]bool{}
	for _, userID := range userIDs {
		if seen[userID] {
			continue
		}
		seen[userID] = true
		for conn := range h.clients[userID] {
			conns = append(conns, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.removeConn(conn, err)
		}
	}
	observability.IncWSEvent(event.Type)
}

func (h *Hub) removeConn(conn *websocket.Conn, err error) {
	h.mu.Lock()
	info, ok := h.connInfo[conn]
	if ok {
		if conns, found := h.clients[info.UserID]; found {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(h.clients, info.UserID)
			}
		}
		delete(h.connInfo, conn)
	}
	h.mu.Unlock()

	if ok {
		observability.DecWSActive()
		observability.IncWSEvent("ws_error")
		log.Printf("websocket dropped conn_id=%s user_id=%s after %dms: %v",
			info.ConnID, info.UserID, time.Since(info.ConnectedAt).Milliseconds(), err)
	}
}

package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"github.com/chadmichel/chadchat/internal/observability"
	"github.com/chadmichel/chadchat/internal/repositories"
)

// RealtimeHandler upgrades notification connections for authenticated users.
type RealtimeHandler struct {
	hub      *Hub
	sessions repositories.SessionRepository
}

// NewRealtimeHandler constructs a RealtimeHandler.
func NewRealtimeHandler(hub *Hub, sessions repositories.SessionRepository) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, sessions: sessions}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle validates the token, upgrades the connection and registers it with
// the hub. The read pump only watches for the close; clients never send
// frames upstream on this channel.
func (h *RealtimeHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chadchat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	session, err := h.sessions.Validate(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      session.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(session.UserID, conn, info)
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")

	go func() {
		defer func() {
			h.hub.RemoveClient(session.UserID, conn)
			observability.DecWSActive()
			observability.IncWSEvent("ws_disconnect")
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("ws_error")
				}
				return
			}
		}
	}()
}

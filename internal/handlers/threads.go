package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chadmichel/chadchat/internal/models"
	"github.com/chadmichel/chadchat/internal/repositories"
	"github.com/chadmichel/chadchat/internal/ws"
)

// ThreadHandler implements the provider surface the chat client SDK talks
// to: full history drain and message send, authenticated by bearer token.
type ThreadHandler struct {
	users         repositories.UserRepository
	sessions      repositories.SessionRepository
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	hub           *ws.Hub
}

// NewThreadHandler constructs a ThreadHandler.
func NewThreadHandler(users repositories.UserRepository, sessions repositories.SessionRepository, conversations repositories.ConversationRepository, messages repositories.MessageRepository, hub *ws.Hub) *ThreadHandler {
	return &ThreadHandler{
		users:         users,
		sessions:      sessions,
		conversations: conversations,
		messages:      messages,
		hub:           hub,
	}
}

// historyEntry is the wire shape of one drained message. The sequence id is
// transported as a string, matching the managed provider this emulates.
type historyEntry struct {
	ID                string    `json:"id"`
	Content           string    `json:"content"`
	SenderID          string    `json:"senderId"`
	SenderDisplayName string    `json:"senderDisplayName"`
	CreatedOn         time.Time `json:"createdOn"`
	SequenceID        string    `json:"sequenceId"`
}

// ListMessages drains the full history of a thread, oldest first.
func (h *ThreadHandler) ListMessages(c *gin.Context) {
	session, ok := h.authorize(c)
	if !ok {
		return
	}
	threadID := c.Param("thread_id")
	conv, err := h.conversations.Get(c.Request.Context(), threadID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		return
	}
	if !isParticipant(conv, session.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a thread member"})
		return
	}

	msgs, err := h.messages.ListForThread(c.Request.Context(), threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	entries := make([]historyEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, historyEntry{
			ID:                m.ID,
			Content:           m.Content,
			SenderID:          m.SenderID,
			SenderDisplayName: m.SenderDisplayName,
			CreatedOn:         m.CreatedOn,
			SequenceID:        strconv.FormatInt(m.SequenceID, 10),
		})
	}
	c.JSON(http.StatusOK, gin.H{"messages": entries})
}

// PostMessage stores a message, refreshes the conversation's last-message
// fields and fans the event out to both participants, sender included.
func (h *ThreadHandler) PostMessage(c *gin.Context) {
	session, ok := h.authorize(c)
	if !ok {
		return
	}
	threadID := c.Param("thread_id")
	conv, err := h.conversations.Get(c.Request.Context(), threadID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		return
	}
	if !isParticipant(conv, session.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a thread member"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sender, err := h.users.GetByID(c.Request.Context(), session.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve sender"})
		return
	}

	msg, err := h.messages.Create(c.Request.Context(), threadID, sender.ID, sender.Email, req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}
	if err := h.conversations.UpdateLastMessage(c.Request.Context(), threadID, msg.CreatedOn, msg.Content, sender.ID, sender.Email); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update conversation"})
		return
	}

	h.hub.NotifyMessage([]string{conv.CreatedByUserID, conv.InvitedUserID}, models.MessageEvent{
		ThreadID:          threadID,
		ID:                msg.ID,
		Content:           msg.Content,
		SenderID:          sender.ID,
		SenderDisplayName: sender.Email,
		CreatedOn:         msg.CreatedOn,
	})
	c.JSON(http.StatusCreated, gin.H{"id": msg.ID})
}

func (h *ThreadHandler) authorize(c *gin.Context) (models.ServerSession, bool) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
		return models.ServerSession{}, false
	}
	session, err := h.sessions.Validate(c.Request.Context(), parts[1])
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return models.ServerSession{}, false
	}
	return session, true
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chadmichel/chadchat/internal/models"
	"github.com/chadmichel/chadchat/internal/observability"
	"github.com/chadmichel/chadchat/internal/repositories"
	"github.com/chadmichel/chadchat/internal/telemetry"
	"github.com/chadmichel/chadchat/internal/ws"
)

// ChatHandler manages the conversation backend endpoints consumed by the
// terminal client: Init, GetConversations, CreateConversation, LogMessage.
type ChatHandler struct {
	users         repositories.UserRepository
	sessions      repositories.SessionRepository
	conversations repositories.ConversationRepository
	hub           *ws.Hub
	audit         *telemetry.AuditEmitter
	chatEndpoint  string
	sessionTTL    time.Duration
}

// NewChatHandler builds a ChatHandler. chatEndpoint is the public base URL
// clients should use for the provider surface (threads + realtime).
func NewChatHandler(users repositories.UserRepository, sessions repositories.SessionRepository, conversations repositories.ConversationRepository, hub *ws.Hub, audit *telemetry.AuditEmitter, chatEndpoint string, sessionTTL time.Duration) *ChatHandler {
	return &ChatHandler{
		users:         users,
		sessions:      sessions,
		conversations: conversations,
		hub:           hub,
		audit:         audit,
		chatEndpoint:  chatEndpoint,
		sessionTTL:    sessionTTL,
	}
}

// Init registers the email on first sight and mints a session token.
func (h *ChatHandler) Init(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetOrCreate(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}
	session, err := h.sessions.Create(c.Request.Context(), user.ID, h.sessionTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	h.audit.Emit(c.Request.Context(), "login", "", user.Email, requestIDFromContext(c), &user.ID)
	c.JSON(http.StatusOK, models.Session{
		Token:     session.Token,
		Endpoint:  h.chatEndpoint,
		Email:     user.Email,
		UserID:    user.ID,
		ExpiresOn: session.ExpiresOn,
	})
}

// GetConversations returns the caller's full conversation list.
func (h *ChatHandler) GetConversations(c *gin.Context) {
	userID := c.GetString("userID")

	conversations, err := h.conversations.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}
	for i := range conversations {
		conversations[i].Members = conversationMembers(conversations[i])
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}
	c.JSON(http.StatusOK, conversations)
}

// CreateConversation starts a conversation with the invited email, creating
// that user implicitly, and notifies both parties over the realtime channel.
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	var req struct {
		InviteEmail string `json:"inviteEmail" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	creator, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve caller"})
		return
	}
	if creator.Email == req.InviteEmail {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a conversation with yourself"})
		return
	}
	invited, err := h.users.GetOrCreate(c.Request.Context(), req.InviteEmail)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve invitee"})
		return
	}

	topic := creator.Email + " and " + invited.Email
	conv, err := h.conversations.Create(c.Request.Context(), creator, invited, topic)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}

	h.hub.NotifyThreadCreated([]string{creator.ID, invited.ID}, models.ThreadEvent{
		ThreadID:  conv.ConversationID,
		CreatedBy: creator.ID,
		CreatedOn: conv.CreatedTime,
	})
	h.audit.Emit(c.Request.Context(), "conversation_created", conv.ConversationID, invited.Email, requestIDFromContext(c), &creator.ID)
	c.JSON(http.StatusCreated, gin.H{"conversationId": conv.ConversationID})
}

// LogMessage records an outgoing message and returns the text the client is
// authorized to send; moderation may have altered it. Delivery itself goes
// through the provider surface, not here.
func (h *ChatHandler) LogMessage(c *gin.Context) {
	var req struct {
		ThreadID string `json:"threadId" binding:"required"`
		Message  string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	conv, err := h.conversations.Get(c.Request.Context(), req.ThreadID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	if !isParticipant(conv, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return
	}

	cleaned, hit := Moderate(req.Message)
	if hit {
		observability.IncModerationHit()
		if err := h.conversations.MarkProfanity(c.Request.Context(), conv.ConversationID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not flag conversation"})
			return
		}
		h.audit.Emit(c.Request.Context(), "moderation_hit", conv.ConversationID, "", requestIDFromContext(c), &userID)
	}

	observability.IncMessageLogged()
	h.audit.Emit(c.Request.Context(), "message_logged", conv.ConversationID, "", requestIDFromContext(c), &userID)
	c.JSON(http.StatusOK, gin.H{"message": cleaned})
}

func conversationMembers(conv models.Conversation) []models.ChatUser {
	return []models.ChatUser{
		{UserID: conv.CreatedByUserID, Email: conv.CreatedByEmail, DisplayName: conv.CreatedByEmail},
		{UserID: conv.InvitedUserID, Email: conv.InvitedUserEmail, DisplayName: conv.InvitedUserEmail},
	}
}

func isParticipant(conv models.Conversation, userID string) bool {
	return conv.CreatedByUserID == userID || conv.InvitedUserID == userID
}

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chadmichel/chadchat/internal/mocks"
	"github.com/chadmichel/chadchat/internal/models"
	"github.com/chadmichel/chadchat/internal/ws"
)

func setupChatRouter(handler *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/Init", handler.Init)
	authed := r.Group("/", func(c *gin.Context) {
		c.Set("userID", "u1")
		c.Next()
	})
	authed.GET("/api/GetConversations", handler.GetConversations)
	authed.POST("/api/CreateConversation", handler.CreateConversation)
	authed.POST("/api/LogMessage", handler.LogMessage)
	return r
}

func testConversation() models.Conversation {
	return models.Conversation{
		ConversationID:   "c1",
		Topic:            "a@x.com and b@x.com",
		CreatedByUserID:  "u1",
		CreatedByEmail:   "a@x.com",
		InvitedUserID:    "u2",
		InvitedUserEmail: "b@x.com",
	}
}

func TestInitSuccess(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	sessions := new(mocks.SessionRepositoryMock)
	handler := NewChatHandler(users, sessions, nil, ws.NewHub(), nil, "http://chat.example", time.Hour)
	router := setupChatRouter(handler)

	expires := time.Now().Add(time.Hour).UTC()
	users.On("GetOrCreate", mock.Anything, "a@x.com").Return(models.User{ID: "u1", Email: "a@x.com"}, nil).Once()
	sessions.On("Create", mock.Anything, "u1", time.Hour).Return(models.ServerSession{Token: "t1", UserID: "u1", ExpiresOn: expires}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/Init", bytes.NewBufferString(`{"email":"a@x.com"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var session models.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&session))
	assert.Equal(t, "t1", session.Token)
	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, "http://chat.example", session.Endpoint)
	users.AssertExpectations(t)
	sessions.AssertExpectations(t)
}

func TestInitRejectsInvalidEmail(t *testing.T) {
	handler := NewChatHandler(new(mocks.UserRepositoryMock), new(mocks.SessionRepositoryMock), nil, ws.NewHub(), nil, "http://chat.example", time.Hour)
	router := setupChatRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/Init", bytes.NewBufferString(`{"email":"not-an-email"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetConversationsFillsMembers(t *testing.T) {
	conversations := new(mocks.ConversationRepositoryMock)
	handler := NewChatHandler(new(mocks.UserRepositoryMock), new(mocks.SessionRepositoryMock), conversations, ws.NewHub(), nil, "http://chat.example", time.Hour)
	router := setupChatRouter(handler)

	conversations.On("ListForUser", mock.Anything, "u1").Return([]models.Conversation{testConversation()}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/GetConversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Conversation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	require.Len(t, list[0].Members, 2)
	assert.Equal(t, "a@x.com", list[0].Members[0].Email)
	assert.Equal(t, "b@x.com", list[0].Members[1].Email)
	conversations.AssertExpectations(t)
}

func TestGetConversationsEmptyListIsArray(t *testing.T) {
	conversations := new(mocks.ConversationRepositoryMock)
	handler := NewChatHandler(new(mocks.UserRepositoryMock), new(mocks.SessionRepositoryMock), conversations, ws.NewHub(), nil, "http://chat.example", time.Hour)
	router := setupChatRouter(handler)

	conversations.On("ListForUser", mock.Anything, "u1").Return(([]models.Conversation)(nil), nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/GetConversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())
}

func TestGetConversationsRepoError(t *testing.T) {
	conversations := new(mocks.ConversationRepositoryMock)
	handler := NewChatHandler(new(mocks.UserRepositoryMock), new(mocks.SessionRepositoryMock), conversations, ws.NewHub(), nil, "http://chat.example", time.Hour)
	router := setupChatRouter(handler)

	conversations.On("ListForUser", mock.Anything, "u1").Return(([]models.Conversation)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/GetConversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCreateConversationSuccess(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	conversations := new(mocks.ConversationRepositoryMock)
	handler := NewChatHandler(users, new(mocks.SessionRepositoryMock), conversations, ws.NewHub(), nil, "http://chat.example", time.Hour)
	router := setupChatRouter(handler)

	creator := models.User{ID: "u1", Email: "a@x.com"}
	invited := models.User{ID: "u2", Email: "b@x.com"}
	users.On("GetByID", mock.Anything, "u1").Return(creator, nil).Once()
	users.On("GetOrCreate", mock.Anything, "b@x.com").Return(invited, nil).Once()
	conversations.On("Create", mock.Anything, creator, invited, "a@x.com and b@x.com").Return(testConversation(), nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/CreateConversation", bytes.NewBufferString(`{"inviteEmail":"b@x.com"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "c1", resp["conversationId"])
	users.AssertExpectations(t)
	conversations.AssertExpectations(t)
}

func TestCreateConversationRejectsSelfInvite(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler := NewChatHandler(users, new(mocks.SessionRepositoryMock), new(mocks.ConversationRepositoryMock), ws.NewHub(), nil, "http://chat.example", time.Hour)
	router := setupChatRouter(handler)

	users.On("GetByID", mock.Anything, "u1").Return(models.User{ID: "u1", Email: "a@x.com"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/CreateConversation", bytes.NewBufferString(`{"inviteEmail":"a@x.com"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogMessageCleanText(t *testing.T) {
	conversations := new(mocks.ConversationRepositoryMock)
	handler := NewChatHandler(new(mocks.UserRepositoryMock), new(mocks.SessionRepositoryMock), conversations, ws.NewHub(), nil, "http://chat.example", time.Hour)
	router := setupChatRouter(handler)

	conversations.On("Get", mock.Anything, "c1").Return(testConversation(), nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/LogMessage", bytes.NewBufferString(`{"threadId":"c1","message":"hello there"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "hello there", resp["message"])
	conversations.AssertExpectations(t)
}

func TestLogMessageModerationHitFlagsConversation(t *testing.T) {
	conversations := new(mocks.ConversationRepositoryMock)
	handler := NewChatHandler(new(mocks.UserRepositoryMock), new(mocks.SessionRepositoryMock), conversations, ws.NewHub(), nil, "http://chat.example", time.Hour)
	router := setupChatRouter(handler)

	conversations.On("Get", mock.Anything, "c1").Return(testConversation(), nil).Once()
	conversations.On("MarkProfanity", mock.Anything, "c1").Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/LogMessage", bytes.NewBufferString(`{"threadId":"c1","message":"damn right"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "**** right", resp["message"])
	conversations.AssertExpectations(t)
}

func TestLogMessageRejectsNonParticipant(t *testing.T) {
	conversations := new(mocks.ConversationRepositoryMock)
	handler := NewChatHandler(new(mocks.UserRepositoryMock), new(mocks.SessionRepositoryMock), conversations, ws.NewHub(), nil, "http://chat.example", time.Hour)
	router := setupChatRouter(handler)

	conv := testConversation()
	conv.CreatedByUserID = "u8"
	conv.InvitedUserID = "u9"
	conversations.On("Get", mock.Anything, "c1").Return(conv, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/LogMessage", bytes.NewBufferString(`{"threadId":"c1","message":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

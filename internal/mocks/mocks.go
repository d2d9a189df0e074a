package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/chadmichel/chadchat/internal/models"
	"github.com/chadmichel/chadchat/internal/provider"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetOrCreate(ctx context.Context, email string) (models.User, error) {
	args := m.Called(ctx, email)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetByID(ctx context.Context, id string) (models.User, error) {
	args := m.Called(ctx, id)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetByEmail(ctx context.Context, email string) (models.User, error) {
	args := m.Called(ctx, email)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

type SessionRepositoryMock struct {
	mock.Mock
}

func (m *SessionRepositoryMock) Create(ctx context.Context, userID string, ttl time.Duration) (models.ServerSession, error) {
	args := m.Called(ctx, userID, ttl)
	var session models.ServerSession
	if val := args.Get(0); val != nil {
		session = val.(models.ServerSession)
	}
	return session, args.Error(1)
}

func (m *SessionRepositoryMock) Validate(ctx context.Context, token string) (models.ServerSession, error) {
	args := m.Called(ctx, token)
	var session models.ServerSession
	if val := args.Get(0); val != nil {
		session = val.(models.ServerSession)
	}
	return session, args.Error(1)
}

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) Create(ctx context.Context, creator, invited models.User, topic string) (models.Conversation, error) {
	args := m.Called(ctx, creator, invited, topic)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) Get(ctx context.Context, id string) (models.Conversation, error) {
	args := m.Called(ctx, id)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) UpdateLastMessage(ctx context.Context, id string, ts time.Time, text, senderID, senderEmail string) error {
	args := m.Called(ctx, id, ts, text, senderID, senderEmail)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) MarkProfanity(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, threadID, senderID, senderDisplayName, content string) (models.ThreadMessage, error) {
	args := m.Called(ctx, threadID, senderID, senderDisplayName, content)
	var msg models.ThreadMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ThreadMessage)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListForThread(ctx context.Context, threadID string) ([]models.ThreadMessage, error) {
	args := m.Called(ctx, threadID)
	var list []models.ThreadMessage
	if val := args.Get(0); val != nil {
		list = val.([]models.ThreadMessage)
	}
	return list, args.Error(1)
}

type BackendMock struct {
	mock.Mock
}

func (m *BackendMock) Init(ctx context.Context, email string) (models.Session, error) {
	args := m.Called(ctx, email)
	var session models.Session
	if val := args.Get(0); val != nil {
		session = val.(models.Session)
	}
	return session, args.Error(1)
}

func (m *BackendMock) GetConversations(ctx context.Context) ([]models.Conversation, error) {
	args := m.Called(ctx)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *BackendMock) CreateConversation(ctx context.Context, inviteEmail string) error {
	args := m.Called(ctx, inviteEmail)
	return args.Error(0)
}

func (m *BackendMock) LogMessage(ctx context.Context, threadID, message string) (string, error) {
	args := m.Called(ctx, threadID, message)
	return args.String(0), args.Error(1)
}

type ChatClientMock struct {
	mock.Mock

	onMessage func(provider.MessageReceivedEvent)
	onThread  func(provider.ThreadCreatedEvent)
}

func (m *ChatClientMock) StartRealtimeNotifications(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *ChatClientMock) StopRealtimeNotifications() {
	m.Called()
}

func (m *ChatClientMock) OnMessageReceived(handler func(provider.MessageReceivedEvent)) {
	m.onMessage = handler
}

func (m *ChatClientMock) OnThreadCreated(handler func(provider.ThreadCreatedEvent)) {
	m.onThread = handler
}

// FireMessageReceived invokes the registered message handler as the realtime
// connection would.
func (m *ChatClientMock) FireMessageReceived(event provider.MessageReceivedEvent) {
	if m.onMessage != nil {
		m.onMessage(event)
	}
}

// FireThreadCreated invokes the registered thread handler as the realtime
// connection would.
func (m *ChatClientMock) FireThreadCreated(event provider.ThreadCreatedEvent) {
	if m.onThread != nil {
		m.onThread(event)
	}
}

func (m *ChatClientMock) ListMessages(ctx context.Context, threadID string) ([]provider.HistoryMessage, error) {
	args := m.Called(ctx, threadID)
	var list []provider.HistoryMessage
	if val := args.Get(0); val != nil {
		list = val.([]provider.HistoryMessage)
	}
	return list, args.Error(1)
}

func (m *ChatClientMock) SendMessage(ctx context.Context, threadID, content string) (string, error) {
	args := m.Called(ctx, threadID, content)
	return args.String(0), args.Error(1)
}

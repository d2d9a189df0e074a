package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chadmichel/chadchat/internal/models"
)

// MemoryStore backs all repositories with process memory. Used when the
// server runs without DB_DSN (development mode) and by tests that need a
// working store rather than call expectations.
type MemoryStore struct {
	mu            sync.Mutex
	usersByEmail  map[string]models.User
	usersByID     map[string]models.User
	sessions      map[string]models.ServerSession
	conversations map[string]*models.Conversation
	messages      map[string][]models.ThreadMessage
	nextSequence  int64
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		usersByEmail:  map[string]models.User{},
		usersByID:     map[string]models.User{},
		sessions:      map[string]models.ServerSession{},
		conversations: map[string]*models.Conversation{},
		messages:      map[string][]models.ThreadMessage{},
	}
}

// Users returns the UserRepository view of the store.
func (m *MemoryStore) Users() UserRepository { return (*memoryUsers)(m) }

// Sessions returns the SessionRepository view of the store.
func (m *MemoryStore) Sessions() SessionRepository { return (*memorySessions)(m) }

// Conversations returns the ConversationRepository view of the store.
func (m *MemoryStore) Conversations() ConversationRepository { return (*memoryConversations)(m) }

// Messages returns the MessageRepository view of the store.
func (m *MemoryStore) Messages() MessageRepository { return (*memoryMessages)(m) }

type memoryUsers MemoryStore

func (m *memoryUsers) GetOrCreate(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.usersByEmail[email]; ok {
		return user, nil
	}
	user := models.User{ID: uuid.NewString(), Email: email, CreatedAt: time.Now().UTC()}
	m.usersByEmail[email] = user
	m.usersByID[user.ID] = user
	return user, nil
}

func (m *memoryUsers) GetByID(_ context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return user, nil
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByEmail[email]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return user, nil
}

type memorySessions MemoryStore

func (m *memorySessions) Create(_ context.Context, userID string, ttl time.Duration) (models.ServerSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := models.ServerSession{
		Token:     uuid.NewString(),
		UserID:    userID,
		ExpiresOn: time.Now().Add(ttl).UTC(),
	}
	m.sessions[session.Token] = session
	return session, nil
}

func (m *memorySessions) Validate(_ context.Context, token string) (models.ServerSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[token]
	if !ok || !session.ExpiresOn.After(time.Now()) {
		return models.ServerSession{}, ErrSessionNotFound
	}
	return session, nil
}

type memoryConversations MemoryStore

func (m *memoryConversations) Create(_ context.Context, creator, invited models.User, topic string) (models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv := models.Conversation{
		ConversationID:   uuid.NewString(),
		Topic:            topic,
		CreatedTime:      time.Now().UTC(),
		CreatedByUserID:  creator.ID,
		CreatedByEmail:   creator.Email,
		InvitedUserID:    invited.ID,
		InvitedUserEmail: invited.Email,
		LastMessageTime:  time.Now().UTC(),
	}
	stored := conv
	m.conversations[conv.ConversationID] = &stored
	return conv, nil
}

func (m *memoryConversations) Get(_ context.Context, id string) (models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		return models.Conversation{}, ErrConversationNotFound
	}
	return *conv, nil
}

func (m *memoryConversations) ListForUser(_ context.Context, userID string) ([]models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.Conversation
	for _, conv := range m.conversations {
		if conv.CreatedByUserID == userID || conv.InvitedUserID == userID {
			list = append(list, *conv)
		}
	}
	return list, nil
}

func (m *memoryConversations) UpdateLastMessage(_ context.Context, id string, ts time.Time, text, senderID, senderEmail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	conv.LastMessageTime = ts
	conv.LastMessage = text
	conv.LastMessageSenderUserID = senderID
	conv.LastMessageSenderEmail = senderEmail
	return nil
}

func (m *memoryConversations) MarkProfanity(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	conv.Profanity = true
	return nil
}

type memoryMessages MemoryStore

func (m *memoryMessages) Create(_ context.Context, threadID, senderID, senderDisplayName, content string) (models.ThreadMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSequence++
	msg := models.ThreadMessage{
		ID:                uuid.NewString(),
		ThreadID:          threadID,
		SenderID:          senderID,
		SenderDisplayName: senderDisplayName,
		Content:           content,
		CreatedOn:         time.Now().UTC(),
		SequenceID:        m.nextSequence,
	}
	m.messages[threadID] = append(m.messages[threadID], msg)
	return msg, nil
}

func (m *memoryMessages) ListForThread(_ context.Context, threadID string) ([]models.ThreadMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ThreadMessage(nil), m.messages[threadID]...), nil
}

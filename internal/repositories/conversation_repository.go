package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/chadmichel/chadchat/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	Create(ctx context.Context, creator, invited models.User, topic string) (models.Conversation, error)
	Get(ctx context.Context, id string) (models.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	UpdateLastMessage(ctx context.Context, id string, ts time.Time, text, senderID, senderEmail string) error
	MarkProfanity(ctx context.Context, id string) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `id, topic, created_time, created_by_user_id, created_by_email,
	invited_user_id, invited_user_email, last_message_time, last_message,
	last_message_sender_user_id, last_message_sender_email, profanity`

// Create stores a new two-party conversation.
func (r *ConversationRepo) Create(ctx context.Context, creator, invited models.User, topic string) (models.Conversation, error) {
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
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (id, topic, created_time, created_by_user_id, created_by_email,
			invited_user_id, invited_user_email, last_message_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		conv.ConversationID, conv.Topic, conv.CreatedTime, conv.CreatedByUserID, conv.CreatedByEmail,
		conv.InvitedUserID, conv.InvitedUserEmail, conv.LastMessageTime)
	if err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// Get fetches a conversation by id.
func (r *ConversationRepo) Get(ctx context.Context, id string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// ListForUser returns every conversation the user participates in, newest
// activity first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := r.db.SelectContext(ctx, &conversations,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE created_by_user_id=$1 OR invited_user_id=$1
		 ORDER BY last_message_time DESC`, userID)
	return conversations, err
}

// UpdateLastMessage refreshes the denormalized last-message fields.
func (r *ConversationRepo) UpdateLastMessage(ctx context.Context, id string, ts time.Time, text, senderID, senderEmail string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET last_message_time=$2, last_message=$3,
			last_message_sender_user_id=$4, last_message_sender_email=$5 WHERE id=$1`,
		id, ts, text, senderID, senderEmail)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// MarkProfanity flags the conversation after a moderation hit.
func (r *ConversationRepo) MarkProfanity(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE conversations SET profanity=TRUE WHERE id=$1`, id)
	return err
}

package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/chadmichel/chadchat/internal/models"
)

// MessageRepository defines interactions for thread messages.
type MessageRepository interface {
	Create(ctx context.Context, threadID, senderID, senderDisplayName, content string) (models.ThreadMessage, error)
	ListForThread(ctx context.Context, threadID string) ([]models.ThreadMessage, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create stores a message; the sequence id comes from the table's sequence,
// so it is monotonic across the thread.
func (r *MessageRepo) Create(ctx context.Context, threadID, senderID, senderDisplayName, content string) (models.ThreadMessage, error) {
	var msg models.ThreadMessage
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO thread_messages (id, thread_id, sender_id, sender_display_name, content)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, thread_id, sender_id, sender_display_name, content, created_on, sequence_id`,
		uuid.NewString(), threadID, senderID, senderDisplayName, content).
		Scan(&msg.ID, &msg.ThreadID, &msg.SenderID, &msg.SenderDisplayName, &msg.Content, &msg.CreatedOn, &msg.SequenceID)
	return msg, err
}

// ListForThread returns the full history of a thread, oldest first.
func (r *MessageRepo) ListForThread(ctx context.Context, threadID string) ([]models.ThreadMessage, error) {
	var msgs []models.ThreadMessage
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT id, thread_id, sender_id, sender_display_name, content, created_on, sequence_id
		 FROM thread_messages WHERE thread_id=$1 ORDER BY sequence_id ASC`, threadID)
	return msgs, err
}

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

var ErrSessionNotFound = errors.New("session not found or expired")

// SessionRepository abstracts minted-token persistence.
type SessionRepository interface {
	Create(ctx context.Context, userID string, ttl time.Duration) (models.ServerSession, error)
	Validate(ctx context.Context, token string) (models.ServerSession, error)
}

// SessionRepo is a sqlx implementation of SessionRepository.
type SessionRepo struct {
	db *sqlx.DB
}

// NewSessionRepo constructs a SessionRepo.
func NewSessionRepo(db *sqlx.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create mints a fresh token for the user.
func (r *SessionRepo) Create(ctx context.Context, userID string, ttl time.Duration) (models.ServerSession, error) {
	session := models.ServerSession{
		Token:     uuid.NewString(),
		UserID:    userID,
		ExpiresOn: time.Now().Add(ttl).UTC(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_on) VALUES ($1, $2, $3)`,
		session.Token, session.UserID, session.ExpiresOn)
	if err != nil {
		return models.ServerSession{}, err
	}
	return session, nil
}

// Validate resolves an unexpired token to its session.
func (r *SessionRepo) Validate(ctx context.Context, token string) (models.ServerSession, error) {
	var session models.ServerSession
	err := r.db.GetContext(ctx, &session,
		`SELECT token, user_id, expires_on FROM sessions WHERE token=$1 AND expires_on > NOW()`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ServerSession{}, ErrSessionNotFound
	}
	return session, err
}

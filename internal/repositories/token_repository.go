package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"convo-service/internal/models"
)

// TokenRepository stores push notification tokens, capped per user.
type TokenRepository interface {
	Register(ctx context.Context, userID int, token, platform string) error
	ActiveTokens(ctx context.Context, userID int) ([]models.NotificationToken, error)
	Deactivate(ctx context.Context, userID int, token string) error
	DeactivateTokens(ctx context.Context, tokens []string) error
	TouchTokens(ctx context.Context, tokens []string) error
}

// TokenRepo is a sqlx implementation of TokenRepository.
type TokenRepo struct {
	db *sqlx.DB
}

// NewTokenRepo constructs a TokenRepo.
func NewTokenRepo(db *sqlx.DB) *TokenRepo {
	return &TokenRepo{db: db}
}

// Register upserts the token and enforces the per-user active cap in the same
// transaction, so concurrent registrations from multiple devices cannot leave
// more than MaxActiveTokens rows active.
func (r *TokenRepo) Register(ctx context.Context, userID int, token, platform string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO notification_tokens (user_id, token, platform, is_active, last_used)
         VALUES ($1, $2, $3, TRUE, NOW())
         ON CONFLICT (token) DO UPDATE
            SET user_id=$1, platform=$3, is_active=TRUE, last_used=NOW()`,
		userID, token, platform); err != nil {
		return err
	}

	// Keep the newest MaxActiveTokens by creation order; deactivate the rest.
	if _, err := tx.ExecContext(ctx,
		`UPDATE notification_tokens SET is_active=FALSE
         WHERE user_id=$1 AND is_active
           AND id NOT IN (
               SELECT id FROM notification_tokens
               WHERE user_id=$1 AND is_active
               ORDER BY created_at DESC, id DESC
               LIMIT $2)`,
		userID, models.MaxActiveTokens); err != nil {
		return err
	}

	return tx.Commit()
}

// ActiveTokens returns the user's active push endpoints, newest first.
func (r *TokenRepo) ActiveTokens(ctx context.Context, userID int) ([]models.NotificationToken, error) {
	var tokens []models.NotificationToken
	err := r.db.SelectContext(ctx, &tokens,
		`SELECT id, user_id, token, platform, is_active, last_used, created_at
         FROM notification_tokens
         WHERE user_id=$1 AND is_active
         ORDER BY created_at DESC, id DESC`,
		userID)
	return tokens, err
}

// Deactivate soft-removes one of the user's tokens (logout path).
func (r *TokenRepo) Deactivate(ctx context.Context, userID int, token string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notification_tokens SET is_active=FALSE WHERE user_id=$1 AND token=$2`,
		userID, token)
	return err
}

// DeactivateTokens soft-removes tokens the push gateway reported as dead.
func (r *TokenRepo) DeactivateTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE notification_tokens SET is_active=FALSE WHERE token = ANY($1)`,
		pq.Array(tokens))
	return err
}

// TouchTokens refreshes last_used for tokens that received a delivery.
func (r *TokenRepo) TouchTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE notification_tokens SET last_used=NOW() WHERE token = ANY($1)`,
		pq.Array(tokens))
	return err
}

package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"convo-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, chat_id, sender_id, content, message_type, image_url, confession_id, created_at`

// CreateMessageParams carries the write-path fields for one message.
type CreateMessageParams struct {
	ChatID       int
	SenderID     int
	Content      string
	MessageType  string
	ImageURL     *string
	ConfessionID *int
}

// MessageRepository defines interactions with the dedicated message store.
// The store is append-only: messages are never mutated or deleted, not even
// when a chat is soft-deleted.
type MessageRepository interface {
	CreateMessage(ctx context.Context, p CreateMessageParams) (models.Message, error)
	ListPage(ctx context.Context, chatID, limit, offset int) ([]models.Message, error)
	ListBefore(ctx context.Context, chatID int, before time.Time, limit int) ([]models.Message, error)
	CountForChat(ctx context.Context, chatID int) (int, error)
	MarkRead(ctx context.Context, chatID, userID int) error
	UnreadCount(ctx context.Context, userID int) (int, error)
}

// MessageRepo is a sqlx-backed repository over the dedicated store.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage appends one message to the dedicated store.
func (r *MessageRepo) CreateMessage(ctx context.Context, p CreateMessageParams) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`INSERT INTO messages (chat_id, sender_id, content, message_type, image_url, confession_id)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING `+messageColumns,
		p.ChatID, p.SenderID, p.Content, p.MessageType, p.ImageURL, p.ConfessionID)
	return msg, err
}

// ListPage returns one page of messages for a chat, newest first.
func (r *MessageRepo) ListPage(ctx context.Context, chatID, limit, offset int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
         WHERE chat_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		chatID, limit, offset)
	return msgs, err
}

// ListBefore returns messages strictly older than the cursor, newest first.
func (r *MessageRepo) ListBefore(ctx context.Context, chatID int, before time.Time, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
         WHERE chat_id=$1 AND created_at < $2 ORDER BY created_at DESC LIMIT $3`,
		chatID, before, limit)
	return msgs, err
}

// CountForChat counts messages in the dedicated store for a chat.
func (r *MessageRepo) CountForChat(ctx context.Context, chatID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE chat_id=$1`, chatID)
	return count, err
}

// MarkRead stamps the caller's read position for the chat.
func (r *MessageRepo) MarkRead(ctx context.Context, chatID, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_reads (chat_id, user_id, last_read_at) VALUES ($1, $2, NOW())
         ON CONFLICT (chat_id, user_id) DO UPDATE SET last_read_at = NOW()`,
		chatID, userID)
	return err
}

// UnreadCount counts messages addressed to the user that arrived after their
// last read position, across all their visible chats.
func (r *MessageRepo) UnreadCount(ctx context.Context, userID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM messages m
         JOIN chats c ON c.id = m.chat_id
         LEFT JOIN chat_reads cr ON cr.chat_id = m.chat_id AND cr.user_id = $1
         LEFT JOIN chat_visibility cv ON cv.chat_id = m.chat_id AND cv.user_id = $1
         WHERE (c.user1_id=$1 OR c.user2_id=$1)
           AND m.sender_id <> $1
           AND (cv.hidden IS NULL OR cv.hidden = FALSE)
           AND m.created_at > COALESCE(cr.last_read_at, 'epoch'::timestamptz)`,
		userID)
	return count, err
}

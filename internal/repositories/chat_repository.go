package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"convo-service/internal/models"
)

var (
	ErrChatNotFound     = errors.New("chat not found")
	ErrSelfChat         = errors.New("cannot chat with yourself")
	ErrNotParticipant   = errors.New("not a chat participant")
	ErrNoPendingRequest = errors.New("no pending chat request")
	ErrOwnRequest       = errors.New("cannot act on own chat request")
	ErrChatInactive     = errors.New("chat is no longer active")
	ErrSlotAlreadySet   = errors.New("quiz slot already set")

	// Admission gate outcomes for the send path.
	ErrAwaitingAcceptance = errors.New("chat request awaiting acceptance")
	ErrRequestRejected    = errors.New("chat request was rejected")
)

const chatColumns = `id, user1_id, user2_id, is_active, requested_by, request_status,
    requested_at, accepted_at, rejected_at, quiz_asked_at, quiz_consent, quiz_scores,
    quiz_completed, quiz_answers, answers_exchanged_at, compatibility_score,
    last_message, last_message_at, legacy_messages, created_at`

// ChatRepository abstracts chat persistence and the request/quiz state
// transitions. Every single-fire transition is a conditional UPDATE so the
// chat row itself serializes concurrent writers.
type ChatRepository interface {
	CreateOrGetChat(ctx context.Context, userID, otherID int) (models.Chat, bool, error)
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	IsParticipant(ctx context.Context, chatID, userID int) (bool, error)
	ListChats(ctx context.Context, userID, page, limit int) ([]models.Chat, error)

	AcceptRequest(ctx context.Context, chatID, userID int) (models.Chat, error)
	RejectRequest(ctx context.Context, chatID, userID int) (models.Chat, error)

	UpdateLastMessage(ctx context.Context, chatID int, preview string, at time.Time) error
	HideChatForUser(ctx context.Context, chatID, userID int) error
	UnhideChatForUser(ctx context.Context, chatID, userID int) error

	TryMarkQuizAsked(ctx context.Context, chatID int) (bool, error)
	SetQuizConsent(ctx context.Context, chatID, userID int, consent bool) (models.Chat, error)
	SubmitQuiz(ctx context.Context, chatID, userID int, answers json.RawMessage, score int) (models.Chat, error)
	SetCompatibilityScore(ctx context.Context, chatID, score int) (bool, error)
	TryMarkAnswersExchanged(ctx context.Context, chatID, user1ID, user2ID int) (bool, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// CreateOrGetChat returns the active chat between the two users, creating it
// with a pending request by userID when none exists. The second return value
// reports whether a new chat was created.
func (r *ChatRepo) CreateOrGetChat(ctx context.Context, userID, otherID int) (models.Chat, bool, error) {
	if userID == otherID {
		return models.Chat{}, false, ErrSelfChat
	}
	participants := []int{userID, otherID}
	sort.Ints(participants)
	user1, user2 := participants[0], participants[1]

	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`SELECT `+chatColumns+` FROM chats WHERE user1_id=$1 AND user2_id=$2 AND is_active=TRUE`,
		user1, user2)
	if err == nil {
		return chat, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, false, err
	}

	err = r.db.GetContext(ctx, &chat,
		`INSERT INTO chats (user1_id, user2_id, requested_by, request_status)
         VALUES ($1, $2, $3, 'pending')
         ON CONFLICT (user1_id, user2_id) WHERE is_active DO NOTHING
         RETURNING `+chatColumns,
		user1, user2, userID)
	if err == nil {
		return chat, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, false, err
	}

	// Lost a creation race; the other writer's row is the chat.
	err = r.db.GetContext(ctx, &chat,
		`SELECT `+chatColumns+` FROM chats WHERE user1_id=$1 AND user2_id=$2 AND is_active=TRUE`,
		user1, user2)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, false, ErrChatNotFound
	}
	return chat, false, err
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// IsParticipant checks whether a user belongs to the chat.
func (r *ChatRepo) IsParticipant(ctx context.Context, chatID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM chats WHERE id=$1 AND (user1_id=$2 OR user2_id=$2))`,
		chatID, userID)
	return exists, err
}

// ListChats returns chats visible to the user, most recent activity first.
func (r *ChatRepo) ListChats(ctx context.Context, userID, page, limit int) ([]models.Chat, error) {
	if page < 1 {
		page = 1
	}
	query := `SELECT ` + prefixedChatColumns() + ` FROM chats c
        LEFT JOIN chat_visibility cv ON cv.chat_id = c.id AND cv.user_id=$1
        WHERE (c.user1_id=$1 OR c.user2_id=$1) AND (cv.hidden IS NULL OR cv.hidden = FALSE)
        ORDER BY COALESCE(c.last_message_at, c.created_at) DESC
        LIMIT $2 OFFSET $3`
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, query, userID, limit, (page-1)*limit)
	return chats, err
}

// AcceptRequest moves a pending request to accepted. Only the non-requester
// may accept; the conditional UPDATE makes the transition race-safe.
func (r *ChatRepo) AcceptRequest(ctx context.Context, chatID, userID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`UPDATE chats SET request_status='accepted', accepted_at=NOW()
         WHERE id=$1 AND request_status='pending' AND requested_by<>$2
           AND (user1_id=$2 OR user2_id=$2) AND is_active=TRUE
         RETURNING `+chatColumns,
		chatID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, r.classifyRequestFailure(ctx, chatID, userID)
	}
	return chat, err
}

// RejectRequest moves a pending request to rejected and deactivates the chat.
func (r *ChatRepo) RejectRequest(ctx context.Context, chatID, userID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`UPDATE chats SET request_status='rejected', rejected_at=NOW(), is_active=FALSE
         WHERE id=$1 AND request_status='pending' AND requested_by<>$2
           AND (user1_id=$2 OR user2_id=$2) AND is_active=TRUE
         RETURNING `+chatColumns,
		chatID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, r.classifyRequestFailure(ctx, chatID, userID)
	}
	return chat, err
}

func (r *ChatRepo) classifyRequestFailure(ctx context.Context, chatID, userID int) error {
	chat, err := r.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(userID) {
		return ErrNotParticipant
	}
	if chat.RequestedBy == userID && chat.RequestStatus == models.RequestPending {
		return ErrOwnRequest
	}
	return ErrNoPendingRequest
}

// UpdateLastMessage refreshes the chat summary line.
func (r *ChatRepo) UpdateLastMessage(ctx context.Context, chatID int, preview string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chats SET last_message=$2, last_message_at=$3 WHERE id=$1`,
		chatID, preview, at)
	return err
}

// HideChatForUser marks a chat hidden for the user. Messages stay untouched.
func (r *ChatRepo) HideChatForUser(ctx context.Context, chatID, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_visibility (chat_id, user_id, hidden) VALUES ($1, $2, TRUE)
         ON CONFLICT (chat_id, user_id) DO UPDATE SET hidden = TRUE`,
		chatID, userID)
	return err
}

// UnhideChatForUser removes the hidden flag for the user.
func (r *ChatRepo) UnhideChatForUser(ctx context.Context, chatID, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_visibility (chat_id, user_id, hidden) VALUES ($1, $2, FALSE)
         ON CONFLICT (chat_id, user_id) DO UPDATE SET hidden = FALSE`,
		chatID, userID)
	return err
}

// TryMarkQuizAsked stamps quiz_asked_at once per chat. Returns true only for
// the writer that won the one-shot; the window can never re-fire.
func (r *ChatRepo) TryMarkQuizAsked(ctx context.Context, chatID int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET quiz_asked_at=NOW()
         WHERE id=$1 AND quiz_asked_at IS NULL AND quiz_consent='{}'::jsonb`,
		chatID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count == 1, err
}

// SetQuizConsent records a participant's consent. First write per slot wins;
// a second write for the same user fails with ErrSlotAlreadySet.
func (r *ChatRepo) SetQuizConsent(ctx context.Context, chatID, userID int, consent bool) (models.Chat, error) {
	key := models.UserKey(userID)
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`UPDATE chats SET quiz_consent = quiz_consent || jsonb_build_object($2::text, $3::boolean)
         WHERE id=$1 AND NOT (quiz_consent ? $2) AND is_active=TRUE
         RETURNING `+chatColumns,
		chatID, key, consent)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, r.classifySlotFailure(ctx, chatID)
	}
	return chat, err
}

// SubmitQuiz records a participant's answers, score and completion time in
// one statement. First submission per slot wins.
func (r *ChatRepo) SubmitQuiz(ctx context.Context, chatID, userID int, answers json.RawMessage, score int) (models.Chat, error) {
	key := models.UserKey(userID)
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`UPDATE chats SET
            quiz_scores = quiz_scores || jsonb_build_object($2::text, $3::int),
            quiz_answers = quiz_answers || jsonb_build_object($2::text, $4::jsonb),
            quiz_completed = quiz_completed || jsonb_build_object($2::text, NOW())
         WHERE id=$1 AND NOT (quiz_scores ? $2) AND is_active=TRUE
         RETURNING `+chatColumns,
		chatID, key, score, string(answers))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, r.classifySlotFailure(ctx, chatID)
	}
	return chat, err
}

func (r *ChatRepo) classifySlotFailure(ctx context.Context, chatID int) error {
	chat, err := r.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.IsActive {
		return ErrChatInactive
	}
	return ErrSlotAlreadySet
}

// SetCompatibilityScore derives the shared score exactly once.
func (r *ChatRepo) SetCompatibilityScore(ctx context.Context, chatID, score int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET compatibility_score=$2
         WHERE id=$1 AND compatibility_score IS NULL`,
		chatID, score)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count == 1, err
}

// TryMarkAnswersExchanged stamps answers_exchanged_at once both answer slots
// exist. Returns true only for the single winning writer.
func (r *ChatRepo) TryMarkAnswersExchanged(ctx context.Context, chatID, user1ID, user2ID int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET answers_exchanged_at=NOW()
         WHERE id=$1 AND answers_exchanged_at IS NULL
           AND quiz_answers ? $2 AND quiz_answers ? $3`,
		chatID, models.UserKey(user1ID), models.UserKey(user2ID))
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count == 1, err
}

func prefixedChatColumns() string {
	return `c.id, c.user1_id, c.user2_id, c.is_active, c.requested_by, c.request_status,
        c.requested_at, c.accepted_at, c.rejected_at, c.quiz_asked_at, c.quiz_consent,
        c.quiz_scores, c.quiz_completed, c.quiz_answers, c.answers_exchanged_at,
        c.compatibility_score, c.last_message, c.last_message_at, c.legacy_messages, c.created_at`
}

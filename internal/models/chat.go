package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Request status values. Transitions only move forward:
// none -> pending -> accepted | rejected.
const (
	RequestNone     = "none"
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

// Chat represents a private conversation between exactly two users. The pair
// is normalized (user1_id < user2_id) and never changes after creation.
type Chat struct {
	ID       int  `db:"id" json:"id"`
	User1ID  int  `db:"user1_id" json:"user1_id"`
	User2ID  int  `db:"user2_id" json:"user2_id"`
	IsActive bool `db:"is_active" json:"is_active"`

	RequestedBy   int        `db:"requested_by" json:"requested_by"`
	RequestStatus string     `db:"request_status" json:"request_status"`
	RequestedAt   time.Time  `db:"requested_at" json:"requested_at"`
	AcceptedAt    *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	RejectedAt    *time.Time `db:"rejected_at" json:"rejected_at,omitempty"`

	QuizAskedAt        *time.Time `db:"quiz_asked_at" json:"quiz_asked_at,omitempty"`
	QuizConsent        BoolMap    `db:"quiz_consent" json:"quiz_consent"`
	QuizScores         IntMap     `db:"quiz_scores" json:"quiz_scores"`
	QuizCompleted      TimeMap    `db:"quiz_completed" json:"quiz_completed"`
	QuizAnswers        RawMap     `db:"quiz_answers" json:"quiz_answers"`
	AnswersExchangedAt *time.Time `db:"answers_exchanged_at" json:"answers_exchanged_at,omitempty"`
	CompatibilityScore *int       `db:"compatibility_score" json:"compatibility_score,omitempty"`

	LastMessage   string     `db:"last_message" json:"last_message"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`

	// LegacyMessages holds the embedded message array from the pre-migration
	// storage layout, chronological order. Never written by new code paths.
	LegacyMessages []byte `db:"legacy_messages" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// UserKey renders a user id the way the quiz slot maps key it.
func UserKey(userID int) string {
	return strconv.Itoa(userID)
}

// OtherParticipant returns the participant that is not userID.
func (c Chat) OtherParticipant(userID int) int {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// HasParticipant reports whether userID belongs to the chat.
func (c Chat) HasParticipant(userID int) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// BothConsented reports whether both participants agreed to the quiz.
func (c Chat) BothConsented() bool {
	return c.QuizConsent[UserKey(c.User1ID)] && c.QuizConsent[UserKey(c.User2ID)]
}

// BothScored reports whether both participants submitted a quiz score.
func (c Chat) BothScored() bool {
	_, ok1 := c.QuizScores[UserKey(c.User1ID)]
	_, ok2 := c.QuizScores[UserKey(c.User2ID)]
	return ok1 && ok2
}

// BothAnswered reports whether both participants submitted answers.
func (c Chat) BothAnswered() bool {
	_, ok1 := c.QuizAnswers[UserKey(c.User1ID)]
	_, ok2 := c.QuizAnswers[UserKey(c.User2ID)]
	return ok1 && ok2
}

// DecodeLegacyMessages unmarshals the embedded legacy message array.
func (c Chat) DecodeLegacyMessages() ([]Message, error) {
	if len(c.LegacyMessages) == 0 {
		return nil, nil
	}
	var msgs []Message
	if err := json.Unmarshal(c.LegacyMessages, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ChatSummary is the API view of a chat for one participant.
type ChatSummary struct {
	ChatID             int        `json:"chat_id"`
	FriendID           int        `json:"friend_id"`
	FriendName         string     `json:"friend_name,omitempty"`
	FriendAvatarURL    string     `json:"friend_avatar_url,omitempty"`
	RequestStatus      string     `json:"request_status"`
	RequestedBy        int        `json:"requested_by"`
	LastMessage        string     `json:"last_message"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	CompatibilityScore *int       `json:"compatibility_score,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// UserSummary is the profile slice used to enrich events and notifications.
type UserSummary struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ConfessionSummary is the read-only slice of a confession referenced by a
// shared-confession message.
type ConfessionSummary struct {
	ID           int    `json:"id"`
	Content      string `json:"content"`
	Author       string `json:"author"`
	LikeCount    int    `json:"like_count"`
	CommentCount int    `json:"comment_count"`
}

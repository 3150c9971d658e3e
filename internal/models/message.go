package models

import "time"

// Message types.
const (
	MessageText            = "text"
	MessageImage           = "image"
	MessageEmoji           = "emoji"
	MessageConfessionShare = "confession_share"
)

// MaxMessageLength bounds the content of a single message.
const MaxMessageLength = 1000

// Message represents one chat turn in the dedicated message store.
// Messages are append-only: never mutated, never deleted.
type Message struct {
	ID           int       `db:"id" json:"id"`
	ChatID       int       `db:"chat_id" json:"chat_id"`
	SenderID     int       `db:"sender_id" json:"sender_id"`
	Content      string    `db:"content" json:"content"`
	MessageType  string    `db:"message_type" json:"message_type"`
	ImageURL     *string   `db:"image_url" json:"image_url,omitempty"`
	ConfessionID *int      `db:"confession_id" json:"confession_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ValidMessageType reports whether t is a known message type.
func ValidMessageType(t string) bool {
	switch t {
	case MessageText, MessageImage, MessageEmoji, MessageConfessionShare:
		return true
	}
	return false
}

// Preview returns the human-readable chat summary line for the message.
func (m Message) Preview() string {
	switch m.MessageType {
	case MessageConfessionShare:
		return "Shared a confession"
	case MessageImage:
		return "Sent an image"
	default:
		return m.Content
	}
}

// PageInfo carries pagination metadata alongside a message page.
type PageInfo struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// ChatEvent is broadcast through websocket rooms.
type ChatEvent struct {
	Type    string       `json:"type"`
	ChatID  int          `json:"chat_id,omitempty"`
	Message *Message     `json:"message,omitempty"`
	Sender  *UserSummary `json:"sender,omitempty"`
	Quiz    *QuizEvent   `json:"quiz,omitempty"`
}

// Chat event types.
const (
	EventMessage            = "message"
	EventChatRequest        = "chat_request"
	EventRequestAccepted    = "request_accepted"
	EventRequestRejected    = "request_rejected"
	EventQuizConsentRequest = "quiz_consent_request"
	EventQuizConsentUpdate  = "quiz_consent_update"
	EventQuizStart          = "quiz_start"
	EventQuizScore          = "quiz_score"
	EventQuizAnswers        = "quiz_answers_exchanged"
)

// QuizEvent is the quiz portion of a ChatEvent payload.
type QuizEvent struct {
	AskedAt            *time.Time    `json:"asked_at,omitempty"`
	Consent            BoolMap       `json:"consent,omitempty"`
	Scores             IntMap        `json:"scores,omitempty"`
	Answers            RawMap        `json:"answers,omitempty"`
	CompatibilityScore *int          `json:"compatibility_score,omitempty"`
	Users              []UserSummary `json:"users,omitempty"`
}

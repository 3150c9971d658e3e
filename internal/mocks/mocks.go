package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stretchr/testify/mock"

	"convo-service/internal/models"
	"convo-service/internal/push"
	"convo-service/internal/repositories"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateOrGetChat(ctx context.Context, userID, otherID int) (models.Chat, bool, error) {
	args := m.Called(ctx, userID, otherID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Bool(1), args.Error(2)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) IsParticipant(ctx context.Context, chatID, userID int) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) ListChats(ctx context.Context, userID, page, limit int) ([]models.Chat, error) {
	args := m.Called(ctx, userID, page, limit)
	var chats []models.Chat
	if val := args.Get(0); val != nil {
		chats = val.([]models.Chat)
	}
	return chats, args.Error(1)
}

func (m *ChatRepositoryMock) AcceptRequest(ctx context.Context, chatID, userID int) (models.Chat, error) {
	args := m.Called(ctx, chatID, userID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) RejectRequest(ctx context.Context, chatID, userID int) (models.Chat, error) {
	args := m.Called(ctx, chatID, userID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) UpdateLastMessage(ctx context.Context, chatID int, preview string, at time.Time) error {
	args := m.Called(ctx, chatID, preview, at)
	return args.Error(0)
}

func (m *ChatRepositoryMock) HideChatForUser(ctx context.Context, chatID, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) UnhideChatForUser(ctx context.Context, chatID, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) TryMarkQuizAsked(ctx context.Context, chatID int) (bool, error) {
	args := m.Called(ctx, chatID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) SetQuizConsent(ctx context.Context, chatID, userID int, consent bool) (models.Chat, error) {
	args := m.Called(ctx, chatID, userID, consent)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) SubmitQuiz(ctx context.Context, chatID, userID int, answers json.RawMessage, score int) (models.Chat, error) {
	args := m.Called(ctx, chatID, userID, answers, score)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) SetCompatibilityScore(ctx context.Context, chatID, score int) (bool, error) {
	args := m.Called(ctx, chatID, score)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) TryMarkAnswersExchanged(ctx context.Context, chatID, user1ID, user2ID int) (bool, error) {
	args := m.Called(ctx, chatID, user1ID, user2ID)
	return args.Bool(0), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, p repositories.CreateMessageParams) (models.Message, error) {
	args := m.Called(ctx, p)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListPage(ctx context.Context, chatID, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, chatID, limit, offset)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListBefore(ctx context.Context, chatID int, before time.Time, limit int) ([]models.Message, error) {
	args := m.Called(ctx, chatID, before, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) CountForChat(ctx context.Context, chatID int) (int, error) {
	args := m.Called(ctx, chatID)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, chatID, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) UnreadCount(ctx context.Context, userID int) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type MessageReaderMock struct {
	mock.Mock
}

func (m *MessageReaderMock) ReadPage(ctx context.Context, chat models.Chat, page, limit int, cursor *time.Time) ([]models.Message, models.PageInfo, error) {
	args := m.Called(ctx, chat, page, limit, cursor)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	var info models.PageInfo
	if val := args.Get(1); val != nil {
		info = val.(models.PageInfo)
	}
	return msgs, info, args.Error(2)
}

type TokenRepositoryMock struct {
	mock.Mock
}

func (m *TokenRepositoryMock) Register(ctx context.Context, userID int, token, platform string) error {
	args := m.Called(ctx, userID, token, platform)
	return args.Error(0)
}

func (m *TokenRepositoryMock) ActiveTokens(ctx context.Context, userID int) ([]models.NotificationToken, error) {
	args := m.Called(ctx, userID)
	var tokens []models.NotificationToken
	if val := args.Get(0); val != nil {
		tokens = val.([]models.NotificationToken)
	}
	return tokens, args.Error(1)
}

func (m *TokenRepositoryMock) Deactivate(ctx context.Context, userID int, token string) error {
	args := m.Called(ctx, userID, token)
	return args.Error(0)
}

func (m *TokenRepositoryMock) DeactivateTokens(ctx context.Context, tokens []string) error {
	args := m.Called(ctx, tokens)
	return args.Error(0)
}

func (m *TokenRepositoryMock) TouchTokens(ctx context.Context, tokens []string) error {
	args := m.Called(ctx, tokens)
	return args.Error(0)
}

type GatewayMock struct {
	mock.Mock
}

func (m *GatewayMock) Dispatch(ctx context.Context, tokens []string, payload push.Payload) (push.Result, error) {
	args := m.Called(ctx, tokens, payload)
	var result push.Result
	if val := args.Get(0); val != nil {
		result = val.(push.Result)
	}
	return result, args.Error(1)
}

type UserDirectoryMock struct {
	mock.Mock
}

func (m *UserDirectoryMock) GetUserSummary(ctx context.Context, userID int) (models.UserSummary, error) {
	args := m.Called(ctx, userID)
	var summary models.UserSummary
	if val := args.Get(0); val != nil {
		summary = val.(models.UserSummary)
	}
	return summary, args.Error(1)
}

func (m *UserDirectoryMock) BulkUserSummaries(ctx context.Context, ids []int) (map[int]models.UserSummary, error) {
	args := m.Called(ctx, ids)
	var users map[int]models.UserSummary
	if val := args.Get(0); val != nil {
		users = val.(map[int]models.UserSummary)
	}
	return users, args.Error(1)
}

type ConfessionDirectoryMock struct {
	mock.Mock
}

func (m *ConfessionDirectoryMock) GetConfessionSummary(ctx context.Context, confessionID int) (models.ConfessionSummary, error) {
	args := m.Called(ctx, confessionID)
	var summary models.ConfessionSummary
	if val := args.Get(0); val != nil {
		summary = val.(models.ConfessionSummary)
	}
	return summary, args.Error(1)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) BroadcastToChat(chatID int, event models.ChatEvent) {
	m.Called(chatID, event)
}

func (m *BroadcasterMock) SendToUser(userID int, event models.ChatEvent) {
	m.Called(userID, event)
}

type PresenceMock struct {
	mock.Mock
}

func (m *PresenceMock) IsOnline(ctx context.Context, userID int) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

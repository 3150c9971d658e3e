package repositories

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"convo-service/internal/models"
)

type messageStoreMock struct {
	mock.Mock
}

func (m *messageStoreMock) CreateMessage(ctx context.Context, p CreateMessageParams) (models.Message, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *messageStoreMock) ListPage(ctx context.Context, chatID, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, chatID, limit, offset)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *messageStoreMock) ListBefore(ctx context.Context, chatID int, before time.Time, limit int) ([]models.Message, error) {
	args := m.Called(ctx, chatID, before, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *messageStoreMock) CountForChat(ctx context.Context, chatID int) (int, error) {
	args := m.Called(ctx, chatID)
	return args.Int(0), args.Error(1)
}

func (m *messageStoreMock) MarkRead(ctx context.Context, chatID, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *messageStoreMock) UnreadCount(ctx context.Context, userID int) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func legacyChat(t *testing.T, n int) models.Chat {
	t.Helper()
	msgs := make([]models.Message, 0, n)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		msgs = append(msgs, models.Message{
			ID:          i,
			ChatID:      9,
			SenderID:    1 + i%2,
			Content:     "m",
			MessageType: models.MessageText,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
	}
	raw, err := json.Marshal(msgs)
	require.NoError(t, err)
	return models.Chat{ID: 9, User1ID: 1, User2ID: 2, LegacyMessages: raw}
}

func TestLegacySlice(t *testing.T) {
	// 7 messages, pages of 5: first page is the newest 5 (indexes 2..6),
	// second page the remaining oldest 2 (indexes 0..1).
	start, length := LegacySlice(7, 1, 5)
	assert.Equal(t, 2, start)
	assert.Equal(t, 5, length)

	start, length = LegacySlice(7, 2, 5)
	assert.Equal(t, 0, start)
	assert.Equal(t, 2, length)

	_, length = LegacySlice(7, 3, 5)
	assert.LessOrEqual(t, length, 0)

	start, length = LegacySlice(10, 2, 5)
	assert.Equal(t, 0, start)
	assert.Equal(t, 5, length)
}

func TestDualReaderPrefersStore(t *testing.T) {
	store := new(messageStoreMock)
	reader := NewDualReader(store)

	chat := legacyChat(t, 3)
	store.On("CountForChat", mock.Anything, 9).Return(2, nil).Once()
	store.On("ListPage", mock.Anything, 9, 20, 0).
		Return([]models.Message{{ID: 102}, {ID: 101}}, nil).Once()

	msgs, info, err := reader.ReadPage(context.Background(), chat, 1, 20, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 102, msgs[0].ID)
	assert.Equal(t, 2, info.Total)
	store.AssertExpectations(t)
}

func TestDualReaderFallsBackToLegacy(t *testing.T) {
	store := new(messageStoreMock)
	reader := NewDualReader(store)

	chat := legacyChat(t, 7)
	store.On("CountForChat", mock.Anything, 9).Return(0, nil).Twice()

	// First page: newest five, newest first.
	msgs, info, err := reader.ReadPage(context.Background(), chat, 1, 5, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	assert.Equal(t, 7, msgs[0].ID)
	assert.Equal(t, 3, msgs[4].ID)
	assert.Equal(t, 7, info.Total)
	assert.True(t, info.HasNext)
	assert.False(t, info.HasPrev)

	// Second page: remaining oldest two.
	msgs, info, err = reader.ReadPage(context.Background(), chat, 2, 5, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 2, msgs[0].ID)
	assert.Equal(t, 1, msgs[1].ID)
	assert.False(t, info.HasNext)
	assert.True(t, info.HasPrev)

	store.AssertNotCalled(t, "ListPage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDualReaderPastLastLegacyPage(t *testing.T) {
	store := new(messageStoreMock)
	reader := NewDualReader(store)

	chat := legacyChat(t, 7)
	store.On("CountForChat", mock.Anything, 9).Return(0, nil).Once()

	msgs, info, err := reader.ReadPage(context.Background(), chat, 3, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, 7, info.Total)
}

func TestDualReaderEmptyChatUsesStore(t *testing.T) {
	store := new(messageStoreMock)
	reader := NewDualReader(store)

	chat := models.Chat{ID: 9, User1ID: 1, User2ID: 2}
	store.On("CountForChat", mock.Anything, 9).Return(0, nil).Once()
	store.On("ListPage", mock.Anything, 9, 20, 0).Return(([]models.Message)(nil), nil).Once()

	msgs, info, err := reader.ReadPage(context.Background(), chat, 1, 20, nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, 0, info.Total)
	store.AssertExpectations(t)
}

func TestDualReaderCursor(t *testing.T) {
	store := new(messageStoreMock)
	reader := NewDualReader(store)

	cursor := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	chat := models.Chat{ID: 9, User1ID: 1, User2ID: 2}
	store.On("CountForChat", mock.Anything, 9).Return(5, nil).Once()
	store.On("ListBefore", mock.Anything, 9, cursor, 20).
		Return([]models.Message{{ID: 4}}, nil).Once()

	msgs, _, err := reader.ReadPage(context.Background(), chat, 1, 20, &cursor)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	store.AssertExpectations(t)
}

package delivery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"convo-service/internal/mocks"
	"convo-service/internal/models"
	"convo-service/internal/push"
)

func newEngine(b *mocks.BroadcasterMock, p *mocks.PresenceMock, t *mocks.TokenRepositoryMock, g *mocks.GatewayMock) *Engine {
	return NewEngine(b, p, t, g, 1, 8)
}

func activeChat() models.Chat {
	return models.Chat{ID: 5, User1ID: 1, User2ID: 2, IsActive: true, RequestStatus: models.RequestAccepted}
}

func TestMessageSentOnlineRecipientSkipsPush(t *testing.T) {
	broadcaster := new(mocks.BroadcasterMock)
	presence := new(mocks.PresenceMock)
	tokens := new(mocks.TokenRepositoryMock)
	gateway := new(mocks.GatewayMock)
	engine := newEngine(broadcaster, presence, tokens, gateway)

	broadcaster.On("BroadcastToChat", 5, mock.Anything).Once()
	presence.On("IsOnline", mock.Anything, 2).Return(true, nil).Once()

	engine.MessageSent(activeChat(), models.Message{ID: 7, ChatID: 5, SenderID: 1, Content: "hi"}, models.UserSummary{ID: 1, Name: "alice"})
	engine.Close()

	broadcaster.AssertExpectations(t)
	presence.AssertExpectations(t)
	gateway.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestMessageSentOfflineRecipientDispatchesPush(t *testing.T) {
	broadcaster := new(mocks.BroadcasterMock)
	presence := new(mocks.PresenceMock)
	tokens := new(mocks.TokenRepositoryMock)
	gateway := new(mocks.GatewayMock)
	engine := newEngine(broadcaster, presence, tokens, gateway)

	broadcaster.On("BroadcastToChat", 5, mock.Anything).Once()
	presence.On("IsOnline", mock.Anything, 2).Return(false, nil).Once()
	tokens.On("ActiveTokens", mock.Anything, 2).
		Return([]models.NotificationToken{{Token: "ExponentPushToken[a]"}, {Token: "ExponentPushToken[b]"}}, nil).Once()
	gateway.On("Dispatch", mock.Anything, []string{"ExponentPushToken[a]", "ExponentPushToken[b]"}, mock.Anything).
		Return(push.Result{
			SuccessCount: 1,
			FailureCount: 1,
			SentTokens:   []string{"ExponentPushToken[a]"},
			FailedTokens: []string{"ExponentPushToken[b]"},
		}, nil).Once()
	tokens.On("DeactivateTokens", mock.Anything, []string{"ExponentPushToken[b]"}).Return(nil).Once()
	tokens.On("TouchTokens", mock.Anything, []string{"ExponentPushToken[a]"}).Return(nil).Once()

	engine.MessageSent(activeChat(), models.Message{ID: 7, ChatID: 5, SenderID: 1, Content: "hi"}, models.UserSummary{ID: 1, Name: "alice"})
	engine.Close()

	gateway.AssertExpectations(t)
	tokens.AssertExpectations(t)
}

func TestMessageSentProbeFailureDegradesToOffline(t *testing.T) {
	broadcaster := new(mocks.BroadcasterMock)
	presence := new(mocks.PresenceMock)
	tokens := new(mocks.TokenRepositoryMock)
	gateway := new(mocks.GatewayMock)
	engine := newEngine(broadcaster, presence, tokens, gateway)

	broadcaster.On("BroadcastToChat", 5, mock.Anything).Once()
	presence.On("IsOnline", mock.Anything, 2).Return(false, assert.AnError).Once()
	tokens.On("ActiveTokens", mock.Anything, 2).Return(([]models.NotificationToken)(nil), nil).Once()

	engine.MessageSent(activeChat(), models.Message{ID: 7, ChatID: 5, SenderID: 1, Content: "hi"}, models.UserSummary{ID: 1})
	engine.Close()

	// A failed probe still attempts push (presumed offline).
	tokens.AssertExpectations(t)
}

func TestMessageSentTruncatesPushBody(t *testing.T) {
	broadcaster := new(mocks.BroadcasterMock)
	presence := new(mocks.PresenceMock)
	tokens := new(mocks.TokenRepositoryMock)
	gateway := new(mocks.GatewayMock)
	engine := newEngine(broadcaster, presence, tokens, gateway)

	broadcaster.On("BroadcastToChat", 5, mock.Anything).Once()
	presence.On("IsOnline", mock.Anything, 2).Return(false, nil).Once()
	tokens.On("ActiveTokens", mock.Anything, 2).
		Return([]models.NotificationToken{{Token: "ExponentPushToken[a]"}}, nil).Once()
	gateway.On("Dispatch", mock.Anything, mock.Anything, mock.MatchedBy(func(p push.Payload) bool {
		return len([]rune(p.Body)) == PushContentLimit
	})).Return(push.Result{SuccessCount: 1, SentTokens: []string{"ExponentPushToken[a]"}}, nil).Once()
	tokens.On("DeactivateTokens", mock.Anything, ([]string)(nil)).Return(nil).Once()
	tokens.On("TouchTokens", mock.Anything, []string{"ExponentPushToken[a]"}).Return(nil).Once()

	long := strings.Repeat("y", 300)
	engine.MessageSent(activeChat(), models.Message{ID: 7, ChatID: 5, SenderID: 1, Content: long}, models.UserSummary{ID: 1})
	engine.Close()

	gateway.AssertExpectations(t)
}

func TestNotifyUserAlwaysPushes(t *testing.T) {
	broadcaster := new(mocks.BroadcasterMock)
	presence := new(mocks.PresenceMock)
	tokens := new(mocks.TokenRepositoryMock)
	gateway := new(mocks.GatewayMock)
	engine := newEngine(broadcaster, presence, tokens, gateway)

	event := models.ChatEvent{Type: models.EventChatRequest, ChatID: 5}
	broadcaster.On("SendToUser", 2, event).Once()
	tokens.On("ActiveTokens", mock.Anything, 2).
		Return([]models.NotificationToken{{Token: "ExponentPushToken[a]"}}, nil).Once()
	gateway.On("Dispatch", mock.Anything, []string{"ExponentPushToken[a]"}, mock.Anything).
		Return(push.Result{SuccessCount: 1, SentTokens: []string{"ExponentPushToken[a]"}}, nil).Once()
	tokens.On("DeactivateTokens", mock.Anything, ([]string)(nil)).Return(nil).Once()
	tokens.On("TouchTokens", mock.Anything, []string{"ExponentPushToken[a]"}).Return(nil).Once()

	engine.NotifyUser(2, event, push.Payload{Title: "alice", Body: "sent you a chat request", ChatID: 5})
	engine.Close()

	// No presence probe on the request flow.
	presence.AssertNotCalled(t, "IsOnline", mock.Anything, mock.Anything)
	broadcaster.AssertExpectations(t)
	gateway.AssertExpectations(t)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	// Rune-safe: multibyte characters are never split.
	assert.Equal(t, "héllo", Truncate("héllo", 5))
	assert.Equal(t, "hé", Truncate("héllo", 2))
}

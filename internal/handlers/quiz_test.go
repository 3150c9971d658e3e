package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"convo-service/internal/mocks"
	"convo-service/internal/models"
	"convo-service/internal/repositories"
)

type quizTestEnv struct {
	chatRepo    *mocks.ChatRepositoryMock
	users       *mocks.UserDirectoryMock
	broadcaster *mocks.BroadcasterMock
	router      *gin.Engine
}

func newQuizTestEnv() *quizTestEnv {
	gin.SetMode(gin.TestMode)
	env := &quizTestEnv{
		chatRepo:    new(mocks.ChatRepositoryMock),
		users:       new(mocks.UserDirectoryMock),
		broadcaster: new(mocks.BroadcasterMock),
	}
	handler := NewQuizHandler(env.chatRepo, env.users, env.broadcaster, nil)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/chats/:chat_id/quiz", handler.GetQuizConsent)
	r.POST("/chats/:chat_id/quiz/consent", handler.SetQuizConsent)
	r.POST("/chats/:chat_id/quiz/submit", handler.SubmitQuiz)
	env.router = r
	return env
}

func (env *quizTestEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func quizChat(id int) models.Chat {
	return models.Chat{
		ID:            id,
		User1ID:       1,
		User2ID:       2,
		IsActive:      true,
		RequestedBy:   1,
		RequestStatus: models.RequestAccepted,
	}
}

func TestGetQuizConsent(t *testing.T) {
	env := newQuizTestEnv()

	chat := quizChat(5)
	chat.QuizConsent = models.BoolMap{"1": true}
	env.chatRepo.On("GetChat", mock.Anything, 5).Return(chat, nil).Once()

	rec := env.do(http.MethodGet, "/chats/5/quiz", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"both_consented":false`)
}

func TestSetQuizConsentFirstVote(t *testing.T) {
	env := newQuizTestEnv()

	env.chatRepo.On("GetChat", mock.Anything, 5).Return(quizChat(5), nil).Once()
	updated := quizChat(5)
	updated.QuizConsent = models.BoolMap{"1": true}
	env.chatRepo.On("SetQuizConsent", mock.Anything, 5, 1, true).Return(updated, nil).Once()
	env.broadcaster.On("SendToUser", 2, mock.MatchedBy(func(ev models.ChatEvent) bool {
		return ev.Type == models.EventQuizConsentUpdate
	})).Once()

	rec := env.do(http.MethodPost, "/chats/5/quiz/consent", `{"consent":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	env.broadcaster.AssertNotCalled(t, "BroadcastToChat", mock.Anything, mock.Anything)
	env.broadcaster.AssertExpectations(t)
}

func TestSetQuizConsentSecondVoteStartsQuiz(t *testing.T) {
	env := newQuizTestEnv()

	env.chatRepo.On("GetChat", mock.Anything, 5).Return(quizChat(5), nil).Once()
	updated := quizChat(5)
	updated.QuizConsent = models.BoolMap{"1": true, "2": true}
	env.chatRepo.On("SetQuizConsent", mock.Anything, 5, 1, true).Return(updated, nil).Once()
	env.broadcaster.On("SendToUser", 2, mock.Anything).Once()
	env.broadcaster.On("BroadcastToChat", 5, mock.MatchedBy(func(ev models.ChatEvent) bool {
		return ev.Type == models.EventQuizStart
	})).Once()

	rec := env.do(http.MethodPost, "/chats/5/quiz/consent", `{"consent":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	env.broadcaster.AssertExpectations(t)
}

func TestSetQuizConsentDeclineNeverStartsQuiz(t *testing.T) {
	env := newQuizTestEnv()

	env.chatRepo.On("GetChat", mock.Anything, 5).Return(quizChat(5), nil).Once()
	updated := quizChat(5)
	updated.QuizConsent = models.BoolMap{"1": false, "2": true}
	env.chatRepo.On("SetQuizConsent", mock.Anything, 5, 1, false).Return(updated, nil).Once()
	env.broadcaster.On("SendToUser", 2, mock.Anything).Once()

	rec := env.do(http.MethodPost, "/chats/5/quiz/consent", `{"consent":false}`)

	require.Equal(t, http.StatusOK, rec.Code)
	env.broadcaster.AssertNotCalled(t, "BroadcastToChat", mock.Anything, mock.Anything)
}

func TestSetQuizConsentTwice(t *testing.T) {
	env := newQuizTestEnv()

	env.chatRepo.On("GetChat", mock.Anything, 5).Return(quizChat(5), nil).Once()
	env.chatRepo.On("SetQuizConsent", mock.Anything, 5, 1, true).
		Return(models.Chat{}, repositories.ErrSlotAlreadySet).Once()

	rec := env.do(http.MethodPost, "/chats/5/quiz/consent", `{"consent":true}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSetQuizConsentMissingField(t *testing.T) {
	env := newQuizTestEnv()

	env.chatRepo.On("GetChat", mock.Anything, 5).Return(quizChat(5), nil).Once()

	rec := env.do(http.MethodPost, "/chats/5/quiz/consent", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitQuizBeforeStart(t *testing.T) {
	env := newQuizTestEnv()

	env.chatRepo.On("GetChat", mock.Anything, 5).Return(quizChat(5), nil).Once()

	rec := env.do(http.MethodPost, "/chats/5/quiz/submit", `{"score":80,"answers":{"q1":"a"}}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitQuizScoreOutOfRange(t *testing.T) {
	env := newQuizTestEnv()

	chat := quizChat(5)
	chat.QuizConsent = models.BoolMap{"1": true, "2": true}
	env.chatRepo.On("GetChat", mock.Anything, 5).Return(chat, nil).Once()

	rec := env.do(http.MethodPost, "/chats/5/quiz/submit", `{"score":101,"answers":{"q1":"a"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitQuizFirstSubmission(t *testing.T) {
	env := newQuizTestEnv()

	chat := quizChat(5)
	chat.QuizConsent = models.BoolMap{"1": true, "2": true}
	env.chatRepo.On("GetChat", mock.Anything, 5).Return(chat, nil).Once()

	updated := chat
	updated.QuizScores = models.IntMap{"1": 80}
	env.chatRepo.On("SubmitQuiz", mock.Anything, 5, 1, mock.Anything, 80).Return(updated, nil).Once()
	env.broadcaster.On("BroadcastToChat", 5, mock.MatchedBy(func(ev models.ChatEvent) bool {
		return ev.Type == models.EventQuizScore
	})).Once()

	rec := env.do(http.MethodPost, "/chats/5/quiz/submit", `{"score":80,"answers":{"q1":"a"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	env.chatRepo.AssertNotCalled(t, "SetCompatibilityScore", mock.Anything, mock.Anything, mock.Anything)
	env.broadcaster.AssertExpectations(t)
}

func TestSubmitQuizSecondSubmissionExchangesAnswers(t *testing.T) {
	env := newQuizTestEnv()

	chat := quizChat(5)
	chat.QuizConsent = models.BoolMap{"1": true, "2": true}
	env.chatRepo.On("GetChat", mock.Anything, 5).Return(chat, nil).Once()

	updated := chat
	updated.QuizScores = models.IntMap{"1": 81, "2": 60}
	updated.QuizAnswers = models.RawMap{
		"1": []byte(`{"q1":"a"}`),
		"2": []byte(`{"q1":"b"}`),
	}
	env.chatRepo.On("SubmitQuiz", mock.Anything, 5, 1, mock.Anything, 81).Return(updated, nil).Once()
	env.broadcaster.On("BroadcastToChat", 5, mock.MatchedBy(func(ev models.ChatEvent) bool {
		return ev.Type == models.EventQuizScore
	})).Once()

	// round((81+60)/2) = 71
	env.chatRepo.On("SetCompatibilityScore", mock.Anything, 5, 71).Return(true, nil).Once()
	env.chatRepo.On("TryMarkAnswersExchanged", mock.Anything, 5, 1, 2).Return(true, nil).Once()
	env.users.On("BulkUserSummaries", mock.Anything, []int{1, 2}).
		Return(map[int]models.UserSummary{1: {ID: 1, Name: "alice"}, 2: {ID: 2, Name: "bob"}}, nil).Once()
	env.broadcaster.On("BroadcastToChat", 5, mock.MatchedBy(func(ev models.ChatEvent) bool {
		return ev.Type == models.EventQuizAnswers &&
			ev.Quiz != nil &&
			ev.Quiz.CompatibilityScore != nil && *ev.Quiz.CompatibilityScore == 71 &&
			len(ev.Quiz.Answers) == 2
	})).Once()

	rec := env.do(http.MethodPost, "/chats/5/quiz/submit", `{"score":81,"answers":{"q1":"a"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	env.chatRepo.AssertExpectations(t)
	env.broadcaster.AssertExpectations(t)
}

func TestSubmitQuizLosesExchangeRace(t *testing.T) {
	env := newQuizTestEnv()

	chat := quizChat(5)
	chat.QuizConsent = models.BoolMap{"1": true, "2": true}
	env.chatRepo.On("GetChat", mock.Anything, 5).Return(chat, nil).Once()

	updated := chat
	updated.QuizScores = models.IntMap{"1": 80, "2": 60}
	updated.QuizAnswers = models.RawMap{"1": []byte(`{}`), "2": []byte(`{}`)}
	env.chatRepo.On("SubmitQuiz", mock.Anything, 5, 1, mock.Anything, 80).Return(updated, nil).Once()
	env.broadcaster.On("BroadcastToChat", 5, mock.MatchedBy(func(ev models.ChatEvent) bool {
		return ev.Type == models.EventQuizScore
	})).Once()
	env.chatRepo.On("SetCompatibilityScore", mock.Anything, 5, 70).Return(false, nil).Once()
	env.chatRepo.On("TryMarkAnswersExchanged", mock.Anything, 5, 1, 2).Return(false, nil).Once()

	rec := env.do(http.MethodPost, "/chats/5/quiz/submit", `{"score":80,"answers":{}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	env.broadcaster.AssertNotCalled(t, "BroadcastToChat", 5, mock.MatchedBy(func(ev models.ChatEvent) bool {
		return ev.Type == models.EventQuizAnswers
	}))
	env.chatRepo.AssertExpectations(t)
}

func TestQuizNonParticipant(t *testing.T) {
	env := newQuizTestEnv()

	chat := models.Chat{ID: 5, User1ID: 3, User2ID: 4, IsActive: true}
	env.chatRepo.On("GetChat", mock.Anything, 5).Return(chat, nil).Times(3)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/chats/5/quiz", ""},
		{http.MethodPost, "/chats/5/quiz/consent", `{"consent":true}`},
		{http.MethodPost, "/chats/5/quiz/submit", `{"score":10,"answers":{}}`},
	} {
		rec := env.do(tc.method, tc.path, tc.body)
		require.Equal(t, http.StatusForbidden, rec.Code)
	}
}

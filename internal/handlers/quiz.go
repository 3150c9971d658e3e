package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"convo-service/internal/delivery"
	grpcclient "convo-service/internal/grpc"
	"convo-service/internal/models"
	"convo-service/internal/repositories"
	"convo-service/internal/telemetry"
)

// QuizHandler drives the compatibility quiz lifecycle inside a chat:
// consent collection, score submission and the final answer exchange.
type QuizHandler struct {
	chatRepo    repositories.ChatRepository
	users       grpcclient.UserDirectory
	broadcaster delivery.Broadcaster
	audit       *telemetry.AuditEmitter
}

// NewQuizHandler builds a QuizHandler.
func NewQuizHandler(chatRepo repositories.ChatRepository, users grpcclient.UserDirectory, broadcaster delivery.Broadcaster, audit *telemetry.AuditEmitter) *QuizHandler {
	return &QuizHandler{
		chatRepo:    chatRepo,
		users:       users,
		broadcaster: broadcaster,
		audit:       audit,
	}
}

// GetQuizConsent returns the chat's quiz state for the caller.
func (h *QuizHandler) GetQuizConsent(c *gin.Context) {
	chat, ok := h.loadChatForParticipant(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"asked_at":            chat.QuizAskedAt,
		"consent":             chat.QuizConsent,
		"both_consented":      chat.BothConsented(),
		"compatibility_score": chat.CompatibilityScore,
	})
}

// SetQuizConsent records the caller's consent. Consent is write-once per
// participant; the second participant's agreement starts the quiz.
func (h *QuizHandler) SetQuizConsent(c *gin.Context) {
	chat, ok := h.loadChatForParticipant(c)
	if !ok {
		return
	}

	var req struct {
		Consent *bool `json:"consent" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "consent is required"})
		return
	}

	userID := c.GetInt("userID")
	updated, err := h.chatRepo.SetQuizConsent(c.Request.Context(), chat.ID, userID, *req.Consent)
	if err != nil {
		h.writeSlotError(c, err, "consent already recorded")
		return
	}

	h.broadcaster.SendToUser(updated.OtherParticipant(userID), models.ChatEvent{
		Type:   models.EventQuizConsentUpdate,
		ChatID: updated.ID,
		Quiz:   &models.QuizEvent{Consent: updated.QuizConsent},
	})

	// The write that completes the pair is the single quiz_start emitter.
	if *req.Consent && updated.BothConsented() {
		h.broadcaster.BroadcastToChat(updated.ID, models.ChatEvent{
			Type:   models.EventQuizStart,
			ChatID: updated.ID,
			Quiz:   &models.QuizEvent{Consent: updated.QuizConsent},
		})
		h.emitAuditQuiz(c, "INFO", "Quiz started")
	}

	c.JSON(http.StatusOK, gin.H{"consent": updated.QuizConsent})
}

// SubmitQuiz records the caller's answers and score. When the second
// submission lands, the shared compatibility score is derived and both sets
// of answers are exchanged, each exactly once.
func (h *QuizHandler) SubmitQuiz(c *gin.Context) {
	chat, ok := h.loadChatForParticipant(c)
	if !ok {
		return
	}

	var req struct {
		Score   *int            `json:"score" binding:"required"`
		Answers json.RawMessage `json:"answers" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "score and answers are required"})
		return
	}
	if *req.Score < 0 || *req.Score > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "score must be between 0 and 100"})
		return
	}
	if !chat.BothConsented() {
		c.JSON(http.StatusConflict, gin.H{"error": "quiz has not started"})
		return
	}

	userID := c.GetInt("userID")
	updated, err := h.chatRepo.SubmitQuiz(c.Request.Context(), chat.ID, userID, req.Answers, *req.Score)
	if err != nil {
		h.writeSlotError(c, err, "quiz already submitted")
		return
	}

	h.broadcaster.BroadcastToChat(updated.ID, models.ChatEvent{
		Type:   models.EventQuizScore,
		ChatID: updated.ID,
		Quiz:   &models.QuizEvent{Scores: updated.QuizScores},
	})

	if updated.BothScored() {
		h.finishQuiz(c, updated)
	}

	c.JSON(http.StatusOK, gin.H{"scores": updated.QuizScores})
}

// finishQuiz derives the compatibility score and exchanges answers. Both
// steps are one-shot at the storage layer, so concurrent second submissions
// cannot double-emit.
func (h *QuizHandler) finishQuiz(c *gin.Context, chat models.Chat) {
	s1, ok1 := chat.QuizScores[models.UserKey(chat.User1ID)]
	s2, ok2 := chat.QuizScores[models.UserKey(chat.User2ID)]
	if !ok1 || !ok2 {
		return
	}

	compat := int(math.Round(float64(s1+s2) / 2))
	if _, err := h.chatRepo.SetCompatibilityScore(c.Request.Context(), chat.ID, compat); err != nil {
		log.Errorf("compatibility score write failed for chat %d: %v", chat.ID, err)
		return
	}

	won, err := h.chatRepo.TryMarkAnswersExchanged(c.Request.Context(), chat.ID, chat.User1ID, chat.User2ID)
	if err != nil {
		log.Errorf("answer exchange stamp failed for chat %d: %v", chat.ID, err)
		return
	}
	if !won {
		return
	}

	users, err := h.users.BulkUserSummaries(c.Request.Context(), []int{chat.User1ID, chat.User2ID})
	if err != nil {
		log.Warnf("profile lookup failed for quiz exchange in chat %d: %v", chat.ID, err)
	}
	participants := []models.UserSummary{users[chat.User1ID], users[chat.User2ID]}

	h.broadcaster.BroadcastToChat(chat.ID, models.ChatEvent{
		Type:   models.EventQuizAnswers,
		ChatID: chat.ID,
		Quiz: &models.QuizEvent{
			Scores:             chat.QuizScores,
			Answers:            chat.QuizAnswers,
			CompatibilityScore: &compat,
			Users:              participants,
		},
	})
	h.emitAuditQuiz(c, "INFO", "Quiz answers exchanged")
}

func (h *QuizHandler) writeSlotError(c *gin.Context, err error, slotMsg string) {
	switch {
	case errors.Is(err, repositories.ErrChatNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
	case errors.Is(err, repositories.ErrChatInactive):
		c.JSON(http.StatusConflict, gin.H{"error": "chat is no longer active"})
	case errors.Is(err, repositories.ErrSlotAlreadySet):
		c.JSON(http.StatusConflict, gin.H{"error": slotMsg})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "quiz update failed"})
	}
}

func (h *QuizHandler) loadChatForParticipant(c *gin.Context) (models.Chat, bool) {
	chatID, err := chatIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return models.Chat{}, false
	}

	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return models.Chat{}, false
	}

	if !chat.HasParticipant(c.GetInt("userID")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
		return models.Chat{}, false
	}
	return chat, true
}

func (h *QuizHandler) emitAuditQuiz(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

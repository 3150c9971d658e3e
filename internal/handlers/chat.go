package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"convo-service/internal/delivery"
	grpcclient "convo-service/internal/grpc"
	"convo-service/internal/models"
	"convo-service/internal/push"
	"convo-service/internal/repositories"
	"convo-service/internal/telemetry"
)

// Quiz consent is offered once the conversation has warmed up: after each
// send, if the total message count falls inside this window and nobody has
// been asked yet, a one-shot consent request goes out.
const (
	quizWindowLow  = 15
	quizWindowHigh = 20
)

// ChatHandler manages the conversation endpoints: chat requests, messages,
// read state and soft deletion.
type ChatHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	reader      repositories.MessageReader
	users       grpcclient.UserDirectory
	confessions grpcclient.ConfessionDirectory
	fanout      *delivery.Engine
	broadcaster delivery.Broadcaster
	audit       *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(
	chatRepo repositories.ChatRepository,
	messageRepo repositories.MessageRepository,
	reader repositories.MessageReader,
	users grpcclient.UserDirectory,
	confessions grpcclient.ConfessionDirectory,
	fanout *delivery.Engine,
	broadcaster delivery.Broadcaster,
	audit *telemetry.AuditEmitter,
) *ChatHandler {
	return &ChatHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		reader:      reader,
		users:       users,
		confessions: confessions,
		fanout:      fanout,
		broadcaster: broadcaster,
		audit:       audit,
	}
}

// StartChat creates or returns the active chat between the caller and the
// requested user. A newly created chat carries a pending request by the
// caller and notifies the other user.
func (h *ChatHandler) StartChat(c *gin.Context) {
	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	chat, created, err := h.chatRepo.CreateOrGetChat(c.Request.Context(), userID, req.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrSelfChat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a chat with yourself"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	if created {
		sender := h.userSummary(c, userID)
		h.fanout.NotifyUser(req.UserID, models.ChatEvent{
			Type:   models.EventChatRequest,
			ChatID: chat.ID,
			Sender: &sender,
		}, push.Payload{
			Title:  sender.Name,
			Body:   "sent you a chat request",
			ChatID: chat.ID,
		})
		h.emitAudit(c, "INFO", "Chat request created")
	}

	c.JSON(http.StatusOK, chat)
}

// ListChats returns the chats visible to the caller, enriched with the other
// participant's profile.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt("userID")
	page, limit := pageParams(c, 20)

	chats, err := h.chatRepo.ListChats(c.Request.Context(), userID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	friendIDs := make([]int, 0, len(chats))
	for _, chat := range chats {
		friendIDs = append(friendIDs, chat.OtherParticipant(userID))
	}

	profiles, err := h.users.BulkUserSummaries(c.Request.Context(), friendIDs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load user info"})
		return
	}

	summaries := make([]models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		friendID := chat.OtherParticipant(userID)
		profile := profiles[friendID]
		summaries = append(summaries, models.ChatSummary{
			ChatID:             chat.ID,
			FriendID:           friendID,
			FriendName:         profile.Name,
			FriendAvatarURL:    profile.AvatarURL,
			RequestStatus:      chat.RequestStatus,
			RequestedBy:        chat.RequestedBy,
			LastMessage:        chat.LastMessage,
			LastMessageAt:      chat.LastMessageAt,
			CompatibilityScore: chat.CompatibilityScore,
			CreatedAt:          chat.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"chats": summaries})
}

// GetChatMessages returns one page of messages, newest first. Old chats that
// predate the dedicated store are served from their embedded legacy array.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	chat, ok := h.loadChatForParticipant(c)
	if !ok {
		return
	}
	page, limit := pageParams(c, 20)

	var cursor *time.Time
	if raw := c.Query("cursor"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
		cursor = &parsed
	}

	msgs, info, err := h.reader.ReadPage(c.Request.Context(), chat, page, limit, cursor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs, "pagination": info})
}

// PostChatMessage runs the send path: admission gate, persist, summary
// update, fan-out, quiz auto-trigger. Only persistence is load-bearing.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}

	if err := admitSend(chat, userID); err != nil {
		switch {
		case errors.Is(err, repositories.ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
		case errors.Is(err, repositories.ErrRequestRejected):
			c.JSON(http.StatusConflict, gin.H{"error": "chat request was rejected"})
		default:
			c.JSON(http.StatusConflict, gin.H{"error": "wait for the other user to accept your chat request"})
		}
		return
	}

	var req struct {
		Content      string `json:"content"`
		Type         string `json:"type"`
		ImageURL     string `json:"image_url"`
		ConfessionID int    `json:"confession_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Type == "" {
		req.Type = models.MessageText
	}

	params, err := h.buildMessageParams(c, chat, userID, req.Content, req.Type, req.ImageURL, req.ConfessionID)
	if err != nil {
		return // response already written
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	// Summary update and everything after it is best effort; the message is
	// already persisted.
	if err := h.chatRepo.UpdateLastMessage(c.Request.Context(), chat.ID, msg.Preview(), msg.CreatedAt); err != nil {
		log.Errorf("chat summary update failed for chat %d: %v", chat.ID, err)
	}

	// A new message resurfaces the chat for both sides.
	h.chatRepo.UnhideChatForUser(c.Request.Context(), chat.ID, chat.User1ID)
	h.chatRepo.UnhideChatForUser(c.Request.Context(), chat.ID, chat.User2ID)

	sender := h.userSummary(c, userID)
	h.fanout.MessageSent(chat, msg, sender)
	h.maybeAskQuiz(c, chat)

	c.JSON(http.StatusCreated, msg)
}

func (h *ChatHandler) buildMessageParams(c *gin.Context, chat models.Chat, userID int, content, msgType, imageURL string, confessionID int) (repositories.CreateMessageParams, error) {
	params := repositories.CreateMessageParams{
		ChatID:      chat.ID,
		SenderID:    userID,
		Content:     content,
		MessageType: msgType,
	}

	if !models.ValidMessageType(msgType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown message type"})
		return params, errors.New("invalid type")
	}
	if len(content) > models.MaxMessageLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message too long"})
		return params, errors.New("too long")
	}

	switch msgType {
	case models.MessageText, models.MessageEmoji:
		if content == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
			return params, errors.New("empty content")
		}
	case models.MessageImage:
		if imageURL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image_url is required"})
			return params, errors.New("missing image url")
		}
		params.ImageURL = &imageURL
	case models.MessageConfessionShare:
		if confessionID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "confession_id is required"})
			return params, errors.New("missing confession id")
		}
		if _, err := h.confessions.GetConfessionSummary(c.Request.Context(), confessionID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "confession not found"})
			return params, err
		}
		params.ConfessionID = &confessionID
	}
	return params, nil
}

// maybeAskQuiz fires the one-shot quiz consent request when the message
// count enters the window. The conditional stamp in the repository makes the
// trigger idempotent under concurrent sends.
func (h *ChatHandler) maybeAskQuiz(c *gin.Context, chat models.Chat) {
	if chat.QuizAskedAt != nil || len(chat.QuizConsent) > 0 {
		return
	}

	count, err := h.messageRepo.CountForChat(c.Request.Context(), chat.ID)
	if err != nil {
		log.Errorf("message count failed for chat %d: %v", chat.ID, err)
		return
	}
	if count < quizWindowLow || count > quizWindowHigh {
		return
	}

	asked, err := h.chatRepo.TryMarkQuizAsked(c.Request.Context(), chat.ID)
	if err != nil {
		log.Errorf("quiz ask stamp failed for chat %d: %v", chat.ID, err)
		return
	}
	if !asked {
		return
	}

	now := time.Now()
	h.broadcaster.BroadcastToChat(chat.ID, models.ChatEvent{
		Type:   models.EventQuizConsentRequest,
		ChatID: chat.ID,
		Quiz:   &models.QuizEvent{AskedAt: &now},
	})
	h.emitAudit(c, "INFO", "Quiz consent requested")
}

// AcceptRequest lets the non-requester accept a pending chat request.
func (h *ChatHandler) AcceptRequest(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chatRepo.AcceptRequest(c.Request.Context(), chatID, userID)
	if err != nil {
		h.writeRequestError(c, err)
		return
	}

	accepter := h.userSummary(c, userID)
	h.fanout.NotifyUser(chat.RequestedBy, models.ChatEvent{
		Type:   models.EventRequestAccepted,
		ChatID: chat.ID,
		Sender: &accepter,
	}, push.Payload{
		Title:  accepter.Name,
		Body:   "accepted your chat request",
		ChatID: chat.ID,
	})
	h.emitAudit(c, "INFO", "Chat request accepted")

	c.JSON(http.StatusOK, chat)
}

// RejectRequest lets the non-requester reject a pending chat request. The
// chat is deactivated for good.
func (h *ChatHandler) RejectRequest(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chatRepo.RejectRequest(c.Request.Context(), chatID, userID)
	if err != nil {
		h.writeRequestError(c, err)
		return
	}

	rejecter := h.userSummary(c, userID)
	h.fanout.NotifyUser(chat.RequestedBy, models.ChatEvent{
		Type:   models.EventRequestRejected,
		ChatID: chat.ID,
		Sender: &rejecter,
	}, push.Payload{
		Title:  rejecter.Name,
		Body:   "declined your chat request",
		ChatID: chat.ID,
	})
	h.emitAudit(c, "INFO", "Chat request rejected")

	c.JSON(http.StatusOK, chat)
}

func (h *ChatHandler) writeRequestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repositories.ErrChatNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
	case errors.Is(err, repositories.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
	case errors.Is(err, repositories.ErrOwnRequest):
		c.JSON(http.StatusConflict, gin.H{"error": "cannot act on your own chat request"})
	case errors.Is(err, repositories.ErrNoPendingRequest):
		c.JSON(http.StatusConflict, gin.H{"error": "no pending chat request"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "request update failed"})
	}
}

// MarkRead stamps the caller's read position for the chat.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	chat, ok := h.loadChatForParticipant(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")
	if err := h.messageRepo.MarkRead(c.Request.Context(), chat.ID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark read"})
		return
	}
	c.Status(http.StatusNoContent)
}

// UnreadCount returns the caller's total unread message count.
func (h *ChatHandler) UnreadCount(c *gin.Context) {
	userID := c.GetInt("userID")
	count, err := h.messageRepo.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not count unread messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// DeleteChatForMe hides the chat for the caller. Messages stay in the store.
func (h *ChatHandler) DeleteChatForMe(c *gin.Context) {
	chat, ok := h.loadChatForParticipant(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")
	if err := h.chatRepo.HideChatForUser(c.Request.Context(), chat.ID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not hide chat"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) loadChatForParticipant(c *gin.Context) (models.Chat, bool) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
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

	userID := c.GetInt("userID")
	if !chat.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
		return models.Chat{}, false
	}
	return chat, true
}

func (h *ChatHandler) userSummary(c *gin.Context, userID int) models.UserSummary {
	summary, err := h.users.GetUserSummary(c.Request.Context(), userID)
	if err != nil {
		log.Warnf("profile lookup failed for user %d: %v", userID, err)
		return models.UserSummary{ID: userID}
	}
	return summary
}

// admitSend applies the admission gate. While the request is pending only
// the requester may send; a rejected chat blocks both sides.
func admitSend(chat models.Chat, userID int) error {
	if !chat.HasParticipant(userID) {
		return repositories.ErrNotParticipant
	}
	if chat.RequestStatus == models.RequestRejected || !chat.IsActive {
		return repositories.ErrRequestRejected
	}
	if chat.RequestStatus == models.RequestPending && chat.RequestedBy != userID {
		return repositories.ErrAwaitingAcceptance
	}
	return nil
}

func pageParams(c *gin.Context, defaultLimit int) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 1 || limit > 100 {
		limit = defaultLimit
	}
	return page, limit
}

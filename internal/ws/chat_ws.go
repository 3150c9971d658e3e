package ws

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	grpcclient "convo-service/internal/grpc"
	"convo-service/internal/observability"
	"convo-service/internal/repositories"
)

// ChatWebSocketHandler handles chat-room websocket connections.
type ChatWebSocketHandler struct {
	hub        *Hub
	chatRepo   repositories.ChatRepository
	authClient *grpcclient.AuthClient
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(hub *Hub, chatRepo repositories.ChatRepository, authClient *grpcclient.AuthClient) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{hub: hub, chatRepo: chatRepo, authClient: authClient}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and subscribes the caller to a chat room.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	ctx, span := otel.Tracer("convo-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.authenticate(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	member, err := h.chatRepo.IsParticipant(c.Request.Context(), chatID, userID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for chat"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := connInfoFromRequest(c, userID, span.SpanContext().TraceID().String())
	h.hub.AddChatClient(chatID, conn, info)

	observability.IncWSActive("chat")
	emitWSEvent(ctx, "chat", chatID, info, "ws_connect", "")

	go readLoop(ctx, conn, "chat", chatID, info, func() {
		h.hub.RemoveChatClient(chatID, conn)
		observability.DecWSActive("chat")
	})
}

func (h *ChatWebSocketHandler) authenticate(c *gin.Context) (int, error) {
	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}
	parts := strings.Split(token, " ")
	if len(parts) == 2 {
		return h.authClient.ValidateToken(c.Request.Context(), parts[1])
	}
	return 0, fmt.Errorf("invalid token")
}

func connInfoFromRequest(c *gin.Context, userID int, traceID string) ConnInfo {
	meta := observability.MetaFromRequest(c.Request)
	return ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}

// readLoop keeps the connection alive and cleans up on close. The server
// never reads application data from clients; the loop only watches for
// disconnects.
func readLoop(ctx context.Context, conn *websocket.Conn, kind string, resourceID int, info ConnInfo, onClose func()) {
	var closeReason string
	defer func() {
		onClose()
		emitWSEvent(ctx, kind, resourceID, info, "ws_disconnect", closeReason)
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				emitWSEvent(ctx, kind, resourceID, info, "ws_error", closeReason)
			}
			return
		}
	}
}

func emitWSEvent(ctx context.Context, kind string, resourceID int, info ConnInfo, event, reason string) {
	observability.IncWSEvent(kind, event)
	_ = observability.PublishEvent(ctx, wsRoutingKey(kind), observability.NewEnvelope("ws_events", event,
		map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        kind,
				"resource_id": resourceID,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	), observability.BuildHeaders(info.RequestID, info.TraceID))
}

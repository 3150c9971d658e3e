package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	grpcclient "convo-service/internal/grpc"
	"convo-service/internal/observability"
)

// PresenceWebSocketHandler handles personal-room websocket connections. A
// live subscription here is what the delivery fan-out treats as "online".
type PresenceWebSocketHandler struct {
	hub        *Hub
	authClient *grpcclient.AuthClient
}

// NewPresenceWebSocketHandler constructs a PresenceWebSocketHandler.
func NewPresenceWebSocketHandler(hub *Hub, authClient *grpcclient.AuthClient) *PresenceWebSocketHandler {
	return &PresenceWebSocketHandler{hub: hub, authClient: authClient}
}

// Handle upgrades the connection and subscribes the caller to their own room.
func (h *PresenceWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("convo-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	chatWS := ChatWebSocketHandler{hub: h.hub, authClient: h.authClient}
	userID, err := chatWS.authenticate(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := connInfoFromRequest(c, userID, span.SpanContext().TraceID().String())
	h.hub.AddUserClient(userID, conn, info)

	observability.IncWSActive("user")
	emitWSEvent(ctx, "user", userID, info, "ws_connect", "")

	go readLoop(ctx, conn, "user", userID, info, func() {
		h.hub.RemoveUserClient(userID, conn)
		observability.DecWSActive("user")
	})
}

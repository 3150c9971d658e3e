package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	grpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"convo-service/internal/config"
	"convo-service/internal/db"
	"convo-service/internal/delivery"
	grpcclient "convo-service/internal/grpc"
	"convo-service/internal/handlers"
	"convo-service/internal/middleware"
	"convo-service/internal/observability"
	"convo-service/internal/push"
	"convo-service/internal/rabbitmq"
	"convo-service/internal/repositories"
	"convo-service/internal/telemetry"
	"convo-service/internal/ws"
)

const serviceName = "convo-service"

func main() {
	cfg := config.Load()
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer shutdownTracing(ctx)

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	auditEmitter := telemetry.NewAuditEmitter(publisher, "audit.convo", serviceName, cfg.Environment)

	if cfg.AMQPURL != "" {
		eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Printf("event publisher disabled: %v", err)
		} else {
			observability.SetPublisher(eventPublisher)
			defer eventPublisher.Close()
		}
	}

	dial := func(addr string) *grpc.ClientConn {
		conn, err := grpc.Dial(addr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		)
		if err != nil {
			log.Fatalf("failed to connect to grpc %s: %v", addr, err)
		}
		return conn
	}

	authConn := dial(cfg.AuthGRPCAddr)
	defer authConn.Close()
	userConn := dial(cfg.UserGRPCAddr)
	defer userConn.Close()
	confessionConn := dial(cfg.ConfessionGRPCAddr)
	defer confessionConn.Close()

	authClient := grpcclient.NewAuthClient(authConn)
	userClient := grpcclient.NewUserClient(userConn)
	confessionClient := grpcclient.NewConfessionClient(confessionConn)

	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	tokenRepo := repositories.NewTokenRepo(database)
	reader := repositories.NewDualReader(messageRepo)

	hub := ws.NewHub()

	gateway := push.NewExpoGateway(cfg.ExpoAccessToken)
	fanout := delivery.NewEngine(hub, hub, tokenRepo, gateway, cfg.PushWorkers, cfg.PushQueueSize)
	defer fanout.Close()

	chatHandler := handlers.NewChatHandler(chatRepo, messageRepo, reader, userClient, confessionClient, fanout, hub, auditEmitter)
	quizHandler := handlers.NewQuizHandler(chatRepo, userClient, hub, auditEmitter)
	deviceHandler := handlers.NewDeviceHandler(tokenRepo)

	chatWS := ws.NewChatWebSocketHandler(hub, chatRepo, authClient)
	presenceWS := ws.NewPresenceWebSocketHandler(hub, authClient)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(otelgin.Middleware(serviceName))

	authMiddleware := middleware.AuthMiddleware(authClient)

	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.POST("/chats/start", authMiddleware, chatHandler.StartChat)
	router.GET("/chats/:chat_id/messages", authMiddleware, chatHandler.GetChatMessages)
	router.POST("/chats/:chat_id/messages", authMiddleware, chatHandler.PostChatMessage)
	router.POST("/chats/:chat_id/accept", authMiddleware, chatHandler.AcceptRequest)
	router.POST("/chats/:chat_id/reject", authMiddleware, chatHandler.RejectRequest)
	router.POST("/chats/:chat_id/read", authMiddleware, chatHandler.MarkRead)
	router.GET("/chats/unread", authMiddleware, chatHandler.UnreadCount)
	router.DELETE("/chats/:chat_id/me", authMiddleware, chatHandler.DeleteChatForMe)

	router.GET("/chats/:chat_id/quiz", authMiddleware, quizHandler.GetQuizConsent)
	router.POST("/chats/:chat_id/quiz/consent", authMiddleware, quizHandler.SetQuizConsent)
	router.POST("/chats/:chat_id/quiz/submit", authMiddleware, quizHandler.SubmitQuiz)

	router.POST("/devices/tokens", authMiddleware, deviceHandler.RegisterToken)
	router.DELETE("/devices/tokens", authMiddleware, deviceHandler.RemoveToken)

	router.GET("/ws/chats/:chat_id", chatWS.Handle)
	router.GET("/ws/me", presenceWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	handlers.RegisterDebugRoutes(router, auditEmitter, publisher, cfg.Environment != "production")

	log.Printf("starting %s on port %s (env=%s, amqp=%s)", serviceName, cfg.Port, cfg.Environment, rabbitmq.PublisherMode(publisher))
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/chadmichel/chadchat/internal/db"
	"github.com/chadmichel/chadchat/internal/handlers"
	"github.com/chadmichel/chadchat/internal/middleware"
	"github.com/chadmichel/chadchat/internal/observability"
	"github.com/chadmichel/chadchat/internal/rabbitmq"
	"github.com/chadmichel/chadchat/internal/repositories"
	"github.com/chadmichel/chadchat/internal/telemetry"
	"github.com/chadmichel/chadchat/internal/ws"
)

func main() {
	port := getEnv("PORT", "8080")
	code := getEnv("API_CODE", "")
	amqpURL := getEnv("AMQP_URL", "")
	publicURL := getEnv("PUBLIC_URL", "http://localhost:"+port)
	environment := getEnv("ENVIRONMENT", "development")
	otlpEndpoint := getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	sessionTTL := 24 * time.Hour
	if raw := os.Getenv("SESSION_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("invalid SESSION_TTL %q: %v", raw, err)
		}
		sessionTTL = parsed
	}

	ctx := context.Background()
	shutdownTracing, err := telemetry.InitTracing(ctx, "chatserver", otlpEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("tracing shutdown error: %v", err)
		}
	}()

	var (
		users         repositories.UserRepository
		sessions      repositories.SessionRepository
		conversations repositories.ConversationRepository
		messages      repositories.MessageRepository
	)
	if os.Getenv("DB_DSN") != "" {
		database, err := db.Connect()
		if err != nil {
			log.Fatalf("failed to connect to db: %v", err)
		}
		users = repositories.NewUserRepo(database)
		sessions = repositories.NewSessionRepo(database)
		conversations = repositories.NewConversationRepo(database)
		messages = repositories.NewMessageRepo(database)
	} else {
		log.Printf("DB_DSN not set, using in-memory store")
		mem := repositories.NewMemoryStore()
		users = mem.Users()
		sessions = mem.Sessions()
		conversations = mem.Conversations()
		messages = mem.Messages()
	}

	publisher := rabbitmq.NewPublisher(amqpURL, "chadchat.events")
	defer publisher.Close()
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", "chatserver", environment)

	hub := ws.NewHub()

	chatHandler := handlers.NewChatHandler(users, sessions, conversations, hub, audit, publicURL, sessionTTL)
	threadHandler := handlers.NewThreadHandler(users, sessions, conversations, messages, hub)
	realtime := ws.NewRealtimeHandler(hub, sessions)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chatserver"))
	router.Use(observability.HTTPMetricsMiddleware())

	api := router.Group("/api", middleware.APIKeyMiddleware(code))
	api.POST("/Init", chatHandler.Init)

	authed := api.Group("", middleware.AuthMiddleware(sessions))
	authed.GET("/GetConversations", chatHandler.GetConversations)
	authed.POST("/CreateConversation", chatHandler.CreateConversation)
	authed.POST("/LogMessage", chatHandler.LogMessage)

	router.GET("/threads/:thread_id/messages", threadHandler.ListMessages)
	router.POST("/threads/:thread_id/messages", threadHandler.PostMessage)
	router.GET("/realtime", realtime.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, getEnv("DEBUG_ROUTES", "") == "1")

	log.Printf("chatserver listening on :%s (public url %s)", port, publicURL)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

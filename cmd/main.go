package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/onyxchat/relay-backend/internal/config"
	"github.com/onyxchat/relay-backend/internal/db"
	"github.com/onyxchat/relay-backend/internal/handlers"
	"github.com/onyxchat/relay-backend/internal/logger"
	"github.com/onyxchat/relay-backend/internal/middleware"
	"github.com/onyxchat/relay-backend/internal/repos"
	"github.com/onyxchat/relay-backend/internal/server"
	"github.com/onyxchat/relay-backend/internal/services"
	"github.com/onyxchat/relay-backend/internal/state"
	"github.com/onyxchat/relay-backend/internal/transport"
	"github.com/onyxchat/relay-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	tokenTTLSeconds := utils.GetEnvAsInt("AGENT_TOKEN_TTL", 86400, log)
	rosterPath := utils.GetEnv("AGENT_ROSTER_PATH", "agents.yaml", log)
	listenAddr := utils.GetEnv("LISTEN_ADDR", ":8080", log)

	// Agent roster
	roster, err := config.LoadRoster(rosterPath, log)
	if err != nil {
		log.Fatal("Failed to load agent roster", "error", err)
	}

	// Store
	storeService, err := db.NewStoreService(log)
	if err != nil {
		log.Fatal("Store init failed", "error", err)
	}
	if err = storeService.AutoMigrateAll(); err != nil {
		log.Fatal("Store auto migration failed", "error", err)
	}
	gdb := storeService.DB()

	// Agent state store: Redis when configured, in-process otherwise.
	var states state.Store
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		states, err = state.NewRedisStore(log)
		if err != nil {
			log.Fatal("Redis state store init failed", "error", err)
		}
		log.Info("Using Redis agent state store")
	} else {
		states = state.NewMemoryStore()
		log.Info("Using in-memory agent state store")
	}

	// Transport
	tp := transport.NewLogTransport(log)

	// Repos
	userRepo := repos.NewUserRepo(gdb, log)
	sessionRepo := repos.NewSessionRepo(gdb, log)
	messageRepo := repos.NewMessageRepo(gdb, log)

	// Services
	userService := services.NewUserService(userRepo, sessionRepo, log)
	sessionService := services.NewSessionService(gdb, sessionRepo, userRepo, log)
	messageService := services.NewMessageService(messageRepo, log)
	notificationService := services.NewNotificationService(tp, roster, log)
	panelService := services.NewPanelService(sessionService, messageService, states, tp, log)
	inboundService := services.NewInboundService(userService, sessionService, messageService, notificationService, panelService, log)
	authService := services.NewAuthService(roster, jwtSecretKey, time.Duration(tokenTTLSeconds)*time.Second, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	webhookHandler := handlers.NewWebhookHandler(inboundService, log)
	sessionHandler := handlers.NewSessionHandler(sessionService, messageService, notificationService, panelService, states, log)
	attachmentHandler := handlers.NewAttachmentHandler(messageService, tp, log)
	panelHandler := handlers.NewPanelHandler(states, log)
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:       authHandler,
		AuthMiddleware:    authMiddleware,
		WebhookHandler:    webhookHandler,
		SessionHandler:    sessionHandler,
		AttachmentHandler: attachmentHandler,
		PanelHandler:      panelHandler,
	})

	log.Info("Relay listening", "addr", listenAddr)
	if err := router.Run(listenAddr); err != nil {
		log.Fatal("HTTP server exited", "error", err)
	}
}

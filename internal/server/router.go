package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/onyxchat/relay-backend/internal/handlers"
	"github.com/onyxchat/relay-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler       *handlers.AuthHandler
	AuthMiddleware    *middleware.AuthMiddleware
	WebhookHandler    *handlers.WebhookHandler
	SessionHandler    *handlers.SessionHandler
	AttachmentHandler *handlers.AttachmentHandler
	PanelHandler      *handlers.PanelHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(middleware.RequestID())

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Panel-Chat", "X-Panel-Message"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/webhook/message", cfg.WebhookHandler.Message)
	router.POST("/api/login", cfg.AuthHandler.Login)

	// Agent API
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAgent())
	{
		api.GET("/sessions", cfg.SessionHandler.List)
		api.GET("/sessions/closed", cfg.SessionHandler.ListClosed)
		api.GET("/sessions/:id", cfg.SessionHandler.Get)
		api.POST("/sessions/:id/claim", cfg.SessionHandler.Claim)
		api.POST("/sessions/:id/close", cfg.SessionHandler.Close)
		api.POST("/sessions/:id/reply", cfg.SessionHandler.Reply)
		api.GET("/attachments/:message_id", cfg.AttachmentHandler.Get)
		api.POST("/panel/clear", cfg.PanelHandler.Clear)
	}

	return router
}

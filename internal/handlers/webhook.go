package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/onyxchat/relay-backend/internal/logger"
	"github.com/onyxchat/relay-backend/internal/services"
)

// WebhookHandler receives user-originated events from the chat platform
// bridge. The bridge translates platform updates into this neutral shape;
// the relay neither knows nor cares about the platform's own wire format.
type WebhookHandler struct {
	inbound services.InboundService
	log     *logger.Logger
}

func NewWebhookHandler(inbound services.InboundService, baseLog *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		inbound: inbound,
		log:     baseLog.With("handler", "WebhookHandler"),
	}
}

type inboundMessageRequest struct {
	UserID        int64   `json:"user_id" binding:"required"`
	Username      *string `json:"username"`
	Text          *string `json:"text"`
	AttachmentRef *string `json:"attachment_ref"`
}

func (wh *WebhookHandler) Message(c *gin.Context) {
	var req inboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", "user_id is required")
		return
	}

	ctx := c.Request.Context()
	if req.Text != nil && strings.TrimSpace(*req.Text) == "/start" {
		if err := wh.inbound.HandleStart(ctx, req.UserID, req.Username); err != nil {
			wh.log.Error("start handling failed", "user_id", req.UserID, "error", err)
			RespondStoreError(c)
			return
		}
		RespondOK(c, gin.H{"status": "ok"})
		return
	}

	if err := wh.inbound.HandleUserMessage(ctx, req.UserID, req.Username, req.Text, req.AttachmentRef); err != nil {
		wh.log.Error("inbound message handling failed", "user_id", req.UserID, "error", err)
		RespondStoreError(c)
		return
	}
	RespondOK(c, gin.H{"status": "ok"})
}

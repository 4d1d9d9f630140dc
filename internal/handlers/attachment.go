package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/onyxchat/relay-backend/internal/logger"
	"github.com/onyxchat/relay-backend/internal/middleware"
	"github.com/onyxchat/relay-backend/internal/services"
	"github.com/onyxchat/relay-backend/internal/transport"
)

type AttachmentHandler struct {
	messages services.MessageService
	tp       transport.Transport
	log      *logger.Logger
}

func NewAttachmentHandler(messages services.MessageService, tp transport.Transport, baseLog *logger.Logger) *AttachmentHandler {
	return &AttachmentHandler{
		messages: messages,
		tp:       tp,
		log:      baseLog.With("handler", "AttachmentHandler"),
	}
}

// Get releases an attachment to the requesting agent. The session_id query
// parameter must match the session the message belongs to; a mismatch is
// reported as not-found so the endpoint cannot be used to probe other
// sessions' attachments.
func (ah *AttachmentHandler) Get(c *gin.Context) {
	agentID := middleware.AgentID(c)

	messageID, err := strconv.ParseUint(c.Param("message_id"), 10, 64)
	if err != nil || messageID == 0 {
		RespondError(c, http.StatusBadRequest, "bad_request", "invalid message id")
		return
	}
	sessionID, err := strconv.ParseUint(c.Query("session_id"), 10, 64)
	if err != nil || sessionID == 0 {
		RespondError(c, http.StatusBadRequest, "bad_request", "session_id is required")
		return
	}

	ctx := c.Request.Context()
	ref, ok, err := ah.messages.AttachmentForSession(ctx, messageID, sessionID)
	if err != nil {
		ah.log.Error("attachment lookup failed", "message_id", messageID, "error", err)
		RespondStoreError(c)
		return
	}
	if !ok {
		RespondError(c, http.StatusNotFound, "not_found", "attachment not found")
		return
	}

	// Push the binary to the agent's chat; the reference in the response is
	// for clients that fetch from the platform themselves.
	if err := ah.tp.SendAttachment(ctx, agentID, ref, nil); err != nil {
		ah.log.Warn("attachment delivery failed",
			"agent_id", agentID,
			"message_id", messageID,
			"class", transport.FailureClass(err),
			"error", err)
	}
	RespondOK(c, gin.H{"attachment_ref": ref})
}

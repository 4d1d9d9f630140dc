package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/onyxchat/relay-backend/internal/logger"
	"github.com/onyxchat/relay-backend/internal/middleware"
	"github.com/onyxchat/relay-backend/internal/render"
	"github.com/onyxchat/relay-backend/internal/services"
	"github.com/onyxchat/relay-backend/internal/state"
	"github.com/onyxchat/relay-backend/internal/transport"
	"github.com/onyxchat/relay-backend/internal/types"
)

type SessionHandler struct {
	sessions      services.SessionService
	messages      services.MessageService
	notifications services.NotificationService
	panels        services.PanelService
	states        state.Store
	log           *logger.Logger
}

func NewSessionHandler(
	sessions services.SessionService,
	messages services.MessageService,
	notifications services.NotificationService,
	panels services.PanelService,
	states state.Store,
	baseLog *logger.Logger,
) *SessionHandler {
	return &SessionHandler{
		sessions:      sessions,
		messages:      messages,
		notifications: notifications,
		panels:        panels,
		states:        states,
		log:           baseLog.With("handler", "SessionHandler"),
	}
}

func parseKind(raw string) (types.SessionKind, bool) {
	switch raw {
	case "unclaimed":
		return types.KindUnclaimed, true
	case "mine":
		return types.KindMine, true
	case "others":
		return types.KindOthers, true
	default:
		return 0, false
	}
}

func sessionIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		RespondError(c, http.StatusBadRequest, "bad_request", "invalid session id")
		return 0, false
	}
	return id, true
}

// List serves the three open-session views: unclaimed, mine, others.
func (sh *SessionHandler) List(c *gin.Context) {
	agentID := middleware.AgentID(c)
	kind, ok := parseKind(c.DefaultQuery("kind", "unclaimed"))
	if !ok {
		RespondError(c, http.StatusBadRequest, "bad_request", "kind must be unclaimed, mine or others")
		return
	}

	ctx := c.Request.Context()
	items, err := sh.sessions.List(ctx, kind, agentID)
	if err != nil {
		sh.log.Error("session listing failed", "kind", kind.String(), "agent_id", agentID, "error", err)
		RespondStoreError(c)
		return
	}
	count, err := sh.sessions.Count(ctx, kind, agentID)
	if err != nil {
		sh.log.Error("session count failed", "kind", kind.String(), "agent_id", agentID, "error", err)
		RespondStoreError(c)
		return
	}
	RespondOK(c, gin.H{"kind": kind.String(), "count": count, "items": items})
}

func (sh *SessionHandler) ListClosed(c *gin.Context) {
	agentID := middleware.AgentID(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	onlyMine := c.Query("mine") == "1"

	result, err := sh.sessions.ClosedPage(c.Request.Context(), page, onlyMine, agentID)
	if err != nil {
		sh.log.Error("closed listing failed", "agent_id", agentID, "error", err)
		RespondStoreError(c)
		return
	}
	RespondOK(c, result)
}

// Get returns the session view with its rendered transcript. With ?open=1
// the agent enters active-chat mode on the session; the optional
// X-Panel-Chat / X-Panel-Message headers record the live panel message the
// transcript was written into, so later refreshes can edit it in place.
func (sh *SessionHandler) Get(c *gin.Context) {
	agentID := middleware.AgentID(c)
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	info, err := sh.sessions.Info(ctx, sessionID)
	if err != nil {
		sh.log.Error("session info failed", "session_id", sessionID, "error", err)
		RespondStoreError(c)
		return
	}
	if info == nil {
		RespondError(c, http.StatusNotFound, "not_found", "session not found")
		return
	}

	msgs, err := sh.messages.SessionMessages(ctx, info.UserID, sessionID)
	if err != nil {
		sh.log.Error("session messages failed", "session_id", sessionID, "error", err)
		RespondStoreError(c)
		return
	}
	text, attachments := render.SessionText(info.Username, info.AssignedAgent, msgs)

	if c.Query("open") == "1" {
		st := state.AgentState{}.EnterActive(sessionID)
		if ref, ok := panelRefHeaders(c); ok {
			st = st.WithPanel(ref)
		}
		if err := sh.states.Set(ctx, agentID, st); err != nil {
			// Losing the panel ref only costs live refreshes.
			sh.log.Warn("saving agent state failed", "agent_id", agentID, "error", err)
		}
	}

	RespondOK(c, gin.H{
		"session":     info,
		"transcript":  text,
		"attachments": attachments,
		"actions":     services.PanelActions(sessionID, info.AssignedAgent != nil, attachments),
	})
}

// Claim tries to take the session for the calling agent. Exactly one of N
// racing agents wins; the rest get a 409 and the name of nobody.
func (sh *SessionHandler) Claim(c *gin.Context) {
	agentID := middleware.AgentID(c)
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	ok, err := sh.sessions.Assign(ctx, sessionID, agentID)
	if err != nil {
		sh.log.Error("claim failed", "session_id", sessionID, "agent_id", agentID, "error", err)
		RespondStoreError(c)
		return
	}
	if !ok {
		RespondError(c, http.StatusConflict, "already_taken", "session already taken")
		return
	}

	st := state.AgentState{}.EnterActive(sessionID)
	if ref, hasPanel := panelRefHeaders(c); hasPanel {
		st = st.WithPanel(ref)
	}
	if err := sh.states.Set(ctx, agentID, st); err != nil {
		sh.log.Warn("saving agent state failed", "agent_id", agentID, "error", err)
	}

	info, err := sh.sessions.Info(ctx, sessionID)
	if err != nil || info == nil {
		// Claimed but the view vanished; report the claim anyway.
		sh.log.Warn("session view missing after claim", "session_id", sessionID, "error", err)
		RespondOK(c, gin.H{"claimed": true})
		return
	}
	RespondOK(c, gin.H{"claimed": true, "session": info})
}

// Close closes the session and drops the agent's active-chat state. A
// session that is already closed reports a conflict, not success.
func (sh *SessionHandler) Close(c *gin.Context) {
	agentID := middleware.AgentID(c)
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	ok, err := sh.sessions.Close(ctx, sessionID, agentID)
	if err != nil {
		sh.log.Error("close failed", "session_id", sessionID, "agent_id", agentID, "error", err)
		RespondStoreError(c)
		return
	}
	if !ok {
		RespondError(c, http.StatusConflict, "not_open", "session is not open")
		return
	}

	if err := sh.states.Clear(ctx, agentID); err != nil {
		sh.log.Warn("clearing agent state failed", "agent_id", agentID, "error", err)
	}
	RespondOK(c, gin.H{"closed": true})
}

type replyRequest struct {
	Text          *string `json:"text"`
	AttachmentRef *string `json:"attachment_ref"`
}

// Reply delivers an agent message to the session's user, logs it, and
// refreshes the agent's own panel. The agent must be in active-chat mode on
// this session, which is how the original reply flow was gated too.
func (sh *SessionHandler) Reply(c *gin.Context) {
	agentID := middleware.AgentID(c)
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", "invalid reply payload")
		return
	}
	hasText := req.Text != nil && *req.Text != ""
	hasAttachment := req.AttachmentRef != nil && *req.AttachmentRef != ""
	if !hasText && !hasAttachment {
		RespondError(c, http.StatusBadRequest, "bad_request", "reply needs text or an attachment")
		return
	}

	ctx := c.Request.Context()
	st, err := sh.states.Get(ctx, agentID)
	if err != nil {
		sh.log.Error("agent state unavailable", "agent_id", agentID, "error", err)
		RespondStoreError(c)
		return
	}
	if !st.Active || st.SessionID != sessionID {
		RespondError(c, http.StatusConflict, "no_active_chat", "open the session before replying")
		return
	}

	info, err := sh.sessions.Info(ctx, sessionID)
	if err != nil {
		sh.log.Error("session info failed", "session_id", sessionID, "error", err)
		RespondStoreError(c)
		return
	}
	if info == nil {
		RespondError(c, http.StatusNotFound, "not_found", "session not found")
		return
	}

	// Deliver first: a reply the user never saw must not enter the record.
	if hasText {
		if err := sh.notifications.SendMessageToUser(ctx, info.UserID, *req.Text); err != nil {
			RespondError(c, http.StatusBadGateway, "delivery_failed", "could not reach the user")
			return
		}
	}
	if hasAttachment {
		if err := sh.notifications.SendAttachmentToUser(ctx, info.UserID, *req.AttachmentRef, req.Text); err != nil {
			RespondError(c, http.StatusBadGateway, "delivery_failed", "could not reach the user")
			return
		}
	}

	if err := sh.messages.LogAgentMessage(ctx, info.UserID, sessionID, req.Text, req.AttachmentRef); err != nil {
		sh.log.Error("logging agent message failed", "session_id", sessionID, "error", err)
		RespondStoreError(c)
		return
	}

	sh.panels.Refresh(ctx, agentID)
	RespondOK(c, gin.H{"delivered": true})
}

func panelRefHeaders(c *gin.Context) (transport.MessageRef, bool) {
	chatID, err1 := strconv.ParseInt(c.GetHeader("X-Panel-Chat"), 10, 64)
	messageID, err2 := strconv.Atoi(c.GetHeader("X-Panel-Message"))
	if err1 != nil || err2 != nil {
		return transport.MessageRef{}, false
	}
	return transport.MessageRef{ChatID: chatID, MessageID: messageID}, true
}

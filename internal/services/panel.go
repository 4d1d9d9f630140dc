package services

import (
	"context"
	"fmt"

	"github.com/onyxchat/relay-backend/internal/logger"
	"github.com/onyxchat/relay-backend/internal/render"
	"github.com/onyxchat/relay-backend/internal/state"
	"github.com/onyxchat/relay-backend/internal/transport"
)

// PanelService keeps an agent's live transcript message in step with newly
// logged messages. It is strictly best-effort: every failure on this path is
// logged and swallowed, because the message itself is already durable and a
// stale panel is an acceptable degradation.
type PanelService interface {
	Refresh(ctx context.Context, agentID int64)
}

type panelService struct {
	sessions SessionService
	messages MessageService
	states   state.Store
	tp       transport.Transport
	log      *logger.Logger
}

func NewPanelService(sessions SessionService, messages MessageService, states state.Store, tp transport.Transport, baseLog *logger.Logger) PanelService {
	return &panelService{
		sessions: sessions,
		messages: messages,
		states:   states,
		tp:       tp,
		log:      baseLog.With("service", "PanelService"),
	}
}

// Refresh re-renders the agent's panel in place. A no-op when the agent is
// not in active-chat mode or has no panel: navigating home discarded their
// view and it must not be resurrected.
func (ps *panelService) Refresh(ctx context.Context, agentID int64) {
	st, err := ps.states.Get(ctx, agentID)
	if err != nil {
		ps.log.Warn("panel refresh: agent state unavailable", "agent_id", agentID, "error", err)
		return
	}
	if !st.Active || st.Panel == nil || st.SessionID == 0 {
		ps.log.Debug("panel refresh skipped, agent not viewing a session", "agent_id", agentID)
		return
	}

	info, err := ps.sessions.Info(ctx, st.SessionID)
	if err != nil {
		ps.log.Warn("panel refresh: session info failed", "agent_id", agentID, "session_id", st.SessionID, "error", err)
		return
	}
	if info == nil {
		ps.log.Warn("panel refresh: session vanished", "agent_id", agentID, "session_id", st.SessionID)
		return
	}

	msgs, err := ps.messages.SessionMessages(ctx, info.UserID, st.SessionID)
	if err != nil {
		ps.log.Warn("panel refresh: message fetch failed", "agent_id", agentID, "session_id", st.SessionID, "error", err)
		return
	}

	text, attachments := render.SessionText(info.Username, info.AssignedAgent, msgs)
	out := transport.Outbound{
		Text:    text,
		Actions: PanelActions(st.SessionID, info.AssignedAgent != nil, attachments),
	}
	if err := ps.tp.EditMessage(ctx, *st.Panel, out); err != nil {
		// The panel message may have been deleted by the agent; that is fine.
		ps.log.Warn("panel refresh: edit failed",
			"agent_id", agentID,
			"session_id", st.SessionID,
			"class", transport.FailureClass(err),
			"error", err)
		return
	}
	ps.log.Debug("panel refreshed", "agent_id", agentID, "session_id", st.SessionID, "messages", len(msgs))
}

// PanelActions is the action row attached to a session panel: one action per
// attachment, claim while unclaimed, and close.
func PanelActions(sessionID uint64, taken bool, attachments []render.AttachmentIndexEntry) []transport.Action {
	actions := make([]transport.Action, 0, len(attachments)+2)
	for _, a := range attachments {
		actions = append(actions, transport.Action{
			Label: fmt.Sprintf("Attachment %d", a.Number),
			Data:  fmt.Sprintf("att:%d:%d", sessionID, a.MessageID),
		})
	}
	if !taken {
		actions = append(actions, transport.Action{Label: "Claim", Data: fmt.Sprintf("take:%d", sessionID)})
	}
	actions = append(actions, transport.Action{Label: "Close", Data: fmt.Sprintf("close:%d", sessionID)})
	return actions
}

package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/onyxchat/relay-backend/internal/logger"
	"github.com/onyxchat/relay-backend/internal/middleware"
	"github.com/onyxchat/relay-backend/internal/state"
)

type PanelHandler struct {
	states state.Store
	log    *logger.Logger
}

func NewPanelHandler(states state.Store, baseLog *logger.Logger) *PanelHandler {
	return &PanelHandler{
		states: states,
		log:    baseLog.With("handler", "PanelHandler"),
	}
}

// Clear is the navigate-home action: the agent leaves active-chat mode and
// their panel stops being refreshed.
func (ph *PanelHandler) Clear(c *gin.Context) {
	agentID := middleware.AgentID(c)
	if err := ph.states.Clear(c.Request.Context(), agentID); err != nil {
		ph.log.Error("clearing agent state failed", "agent_id", agentID, "error", err)
		RespondStoreError(c)
		return
	}
	RespondOK(c, gin.H{"cleared": true})
}

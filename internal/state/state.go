// Package state holds the per-agent ephemeral working state: whether the
// agent is in active-chat mode, which session that refers to, and the panel
// message mirroring it. The state is private to one agent and is never read
// by another agent's request.
package state

import (
	"context"

	"github.com/onyxchat/relay-backend/internal/transport"
)

// AgentState is the typed replacement for what the original bot kept as an
// untyped FSM blob. Zero value means "not in a chat, no panel".
type AgentState struct {
	Active    bool                  `json:"active"`
	SessionID uint64                `json:"session_id,omitempty"`
	Panel     *transport.MessageRef `json:"panel,omitempty"`
}

// EnterActive puts the agent into active-chat mode on the given session.
// Any previous panel reference is dropped; it belonged to the old session.
func (s AgentState) EnterActive(sessionID uint64) AgentState {
	return AgentState{Active: true, SessionID: sessionID}
}

// WithPanel records the panel message mirroring the session. Valid only in
// active mode; setting a panel while inactive is ignored.
func (s AgentState) WithPanel(ref transport.MessageRef) AgentState {
	if !s.Active {
		return s
	}
	s.Panel = &ref
	return s
}

type Store interface {
	Get(ctx context.Context, agentID int64) (AgentState, error)
	Set(ctx context.Context, agentID int64, st AgentState) error
	Clear(ctx context.Context, agentID int64) error
}

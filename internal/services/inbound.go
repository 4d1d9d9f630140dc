package services

import (
	"context"
	"fmt"

	"github.com/onyxchat/relay-backend/internal/logger"
)

const (
	welcomeText     = "Hi! Describe your issue and an operator will reply here."
	beforeStartText = "Send /start first to open a support session."
)

// InboundService is the pipeline behind every user-originated event: upsert
// the user, resolve their session, persist the message, and fan out the
// side effects (new-session alerts, panel refresh for the assignee).
type InboundService interface {
	HandleStart(ctx context.Context, userID int64, username *string) error
	HandleUserMessage(ctx context.Context, userID int64, username *string, text, attachmentRef *string) error
}

type inboundService struct {
	users         UserService
	sessions      SessionService
	messages      MessageService
	notifications NotificationService
	panels        PanelService
	log           *logger.Logger
}

func NewInboundService(
	users UserService,
	sessions SessionService,
	messages MessageService,
	notifications NotificationService,
	panels PanelService,
	baseLog *logger.Logger,
) InboundService {
	return &inboundService{
		users:         users,
		sessions:      sessions,
		messages:      messages,
		notifications: notifications,
		panels:        panels,
		log:           baseLog.With("service", "InboundService"),
	}
}

// prepare upserts the user and rejects blocked ones. Returns false when the
// event should be dropped.
func (is *inboundService) prepare(ctx context.Context, userID int64, username *string) (bool, error) {
	if err := is.users.Upsert(ctx, userID, username); err != nil {
		return false, err
	}
	user, err := is.users.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if user != nil && user.IsBlocked {
		is.log.Info("dropping message from blocked user", "user_id", userID)
		return false, nil
	}
	return true, nil
}

func (is *inboundService) HandleStart(ctx context.Context, userID int64, username *string) error {
	proceed, err := is.prepare(ctx, userID, username)
	if err != nil || !proceed {
		return err
	}

	existing, err := is.users.OpenSessionID(ctx, userID)
	if err != nil {
		return err
	}
	if existing == nil {
		sessionID, created, err := is.sessions.EnsureOpen(ctx, userID)
		if err != nil {
			return err
		}
		if created {
			is.notifications.NotifyNewSession(ctx, userID, username, sessionID)
		}
	}

	// Welcome delivery is best-effort; the session is already open.
	_ = is.notifications.SendMessageToUser(ctx, userID, welcomeText)
	return nil
}

func (is *inboundService) HandleUserMessage(ctx context.Context, userID int64, username *string, text, attachmentRef *string) error {
	proceed, err := is.prepare(ctx, userID, username)
	if err != nil || !proceed {
		return err
	}

	sessionIDPtr, err := is.users.OpenSessionID(ctx, userID)
	if err != nil {
		return err
	}
	if sessionIDPtr == nil {
		// No open session: point the user at /start instead of silently
		// swallowing their message.
		_ = is.notifications.SendMessageToUser(ctx, userID, beforeStartText)
		return nil
	}
	sessionID := *sessionIDPtr

	if err := is.messages.LogUserMessage(ctx, userID, sessionID, text, attachmentRef); err != nil {
		return fmt.Errorf("handle user message: %w", err)
	}

	view, err := is.sessions.Info(ctx, sessionID)
	if err != nil {
		// The message is committed; a failed view lookup only costs the
		// panel refresh.
		is.log.Warn("session info after logging failed", "session_id", sessionID, "error", err)
		return nil
	}
	if view != nil && view.AssignedAgent != nil {
		is.panels.Refresh(ctx, *view.AssignedAgent)
	}
	return nil
}

package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/onyxchat/relay-backend/internal/config"
	"github.com/onyxchat/relay-backend/internal/logger"
	"github.com/onyxchat/relay-backend/internal/transport"
)

type NotificationService interface {
	// NotifyNewSession alerts every roster agent that a session just opened.
	// Deliveries run concurrently; a failure toward one agent never blocks
	// or fails the others, which is why nothing is returned.
	NotifyNewSession(ctx context.Context, userID int64, username *string, sessionID uint64)
	SendMessageToUser(ctx context.Context, userID int64, text string) error
	SendAttachmentToUser(ctx context.Context, userID int64, attachmentRef string, caption *string) error
}

type notificationService struct {
	tp     transport.Transport
	roster *config.Roster
	log    *logger.Logger
}

func NewNotificationService(tp transport.Transport, roster *config.Roster, baseLog *logger.Logger) NotificationService {
	return &notificationService{
		tp:     tp,
		roster: roster,
		log:    baseLog.With("service", "NotificationService"),
	}
}

func (ns *notificationService) NotifyNewSession(ctx context.Context, userID int64, username *string, sessionID uint64) {
	uline := "(no username)"
	if username != nil && *username != "" {
		uline = "@" + *username
	}
	out := transport.Outbound{
		Text: fmt.Sprintf("New session\nClient: #%d %s", userID, uline),
		Actions: []transport.Action{
			{Label: "Open", Data: fmt.Sprintf("session:%d", sessionID)},
			{Label: "Claim", Data: fmt.Sprintf("take:%d", sessionID)},
		},
	}

	// One alert id per fan-out so the per-agent log lines correlate.
	alertID := uuid.NewString()
	agents := ns.roster.AgentIDs()
	ns.log.Info("notifying agents of new session", "session_id", sessionID, "agents", len(agents), "alert_id", alertID)

	var g errgroup.Group
	for _, agentID := range agents {
		g.Go(func() error {
			if _, err := ns.tp.SendMessage(ctx, agentID, out); err != nil {
				ns.log.Warn("new-session alert delivery failed",
					"alert_id", alertID,
					"agent_id", agentID,
					"session_id", sessionID,
					"class", transport.FailureClass(err),
					"error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (ns *notificationService) SendMessageToUser(ctx context.Context, userID int64, text string) error {
	if _, err := ns.tp.SendMessage(ctx, userID, transport.Outbound{Text: text}); err != nil {
		ns.log.Warn("message delivery to user failed",
			"user_id", userID,
			"class", transport.FailureClass(err),
			"error", err)
		return fmt.Errorf("send message to user %d: %w", userID, err)
	}
	return nil
}

func (ns *notificationService) SendAttachmentToUser(ctx context.Context, userID int64, attachmentRef string, caption *string) error {
	if err := ns.tp.SendAttachment(ctx, userID, attachmentRef, caption); err != nil {
		ns.log.Warn("attachment delivery to user failed",
			"user_id", userID,
			"class", transport.FailureClass(err),
			"error", err)
		return fmt.Errorf("send attachment to user %d: %w", userID, err)
	}
	return nil
}

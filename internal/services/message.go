package services

import (
	"context"
	"fmt"

	"github.com/onyxchat/relay-backend/internal/logger"
	"github.com/onyxchat/relay-backend/internal/repos"
	"github.com/onyxchat/relay-backend/internal/types"
)

type MessageService interface {
	LogUserMessage(ctx context.Context, userID int64, sessionID uint64, text, attachmentRef *string) error
	LogAgentMessage(ctx context.Context, userID int64, sessionID uint64, text, attachmentRef *string) error
	SessionMessages(ctx context.Context, userID int64, sessionID uint64) ([]types.Message, error)
	// AttachmentForSession releases the attachment reference of messageID
	// only when the message belongs to sessionID. ok=false covers missing
	// message, missing attachment and session mismatch alike; the caller
	// gets no distinction to leak.
	AttachmentForSession(ctx context.Context, messageID, sessionID uint64) (ref string, ok bool, err error)
}

type messageService struct {
	messages repos.MessageRepo
	log      *logger.Logger
}

func NewMessageService(messages repos.MessageRepo, baseLog *logger.Logger) MessageService {
	return &messageService{
		messages: messages,
		log:      baseLog.With("service", "MessageService"),
	}
}

func (ms *messageService) logMessage(ctx context.Context, userID int64, sessionID uint64, direction types.MessageDirection, text, attachmentRef *string) error {
	msg := &types.Message{
		UserID:        userID,
		SessionID:     &sessionID,
		Direction:     direction,
		Text:          text,
		AttachmentRef: attachmentRef,
	}
	if _, err := ms.messages.Append(ctx, nil, msg); err != nil {
		ms.log.Error("log message failed", "user_id", userID, "session_id", sessionID, "direction", direction, "error", err)
		return fmt.Errorf("log message: %w", err)
	}
	ms.log.Debug("message logged", "user_id", userID, "session_id", sessionID, "direction", direction)
	return nil
}

func (ms *messageService) LogUserMessage(ctx context.Context, userID int64, sessionID uint64, text, attachmentRef *string) error {
	return ms.logMessage(ctx, userID, sessionID, types.FromUser, text, attachmentRef)
}

func (ms *messageService) LogAgentMessage(ctx context.Context, userID int64, sessionID uint64, text, attachmentRef *string) error {
	return ms.logMessage(ctx, userID, sessionID, types.FromAgent, text, attachmentRef)
}

func (ms *messageService) SessionMessages(ctx context.Context, userID int64, sessionID uint64) ([]types.Message, error) {
	msgs, err := ms.messages.ListBySession(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch session messages: %w", err)
	}
	return msgs, nil
}

func (ms *messageService) AttachmentForSession(ctx context.Context, messageID, sessionID uint64) (string, bool, error) {
	ref, msgSessionID, err := ms.messages.GetAttachment(ctx, messageID)
	if err != nil {
		return "", false, fmt.Errorf("fetch attachment: %w", err)
	}
	if ref == nil || *ref == "" || msgSessionID == nil || *msgSessionID != sessionID {
		ms.log.Warn("attachment request refused", "message_id", messageID, "session_id", sessionID)
		return "", false, nil
	}
	return *ref, true, nil
}

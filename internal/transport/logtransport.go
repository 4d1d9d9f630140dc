package transport

import (
	"context"
	"sync/atomic"

	"github.com/onyxchat/relay-backend/internal/logger"
)

// LogTransport is the development transport: it records every delivery in
// the log and succeeds. It keeps the relay runnable (and the panel protocol
// observable) without a platform connection; the production binary swaps in
// a real client behind the same interface.
type LogTransport struct {
	log    *logger.Logger
	nextID int64
}

func NewLogTransport(log *logger.Logger) *LogTransport {
	return &LogTransport{log: log.With("service", "LogTransport")}
}

func (t *LogTransport) SendMessage(ctx context.Context, chatID int64, out Outbound) (MessageRef, error) {
	id := int(atomic.AddInt64(&t.nextID, 1))
	t.log.Info("send message", "chat_id", chatID, "message_id", id, "text", out.Text, "actions", len(out.Actions))
	return MessageRef{ChatID: chatID, MessageID: id}, nil
}

func (t *LogTransport) EditMessage(ctx context.Context, ref MessageRef, out Outbound) error {
	t.log.Info("edit message", "chat_id", ref.ChatID, "message_id", ref.MessageID, "text", out.Text)
	return nil
}

func (t *LogTransport) DeleteMessage(ctx context.Context, ref MessageRef) error {
	t.log.Info("delete message", "chat_id", ref.ChatID, "message_id", ref.MessageID)
	return nil
}

func (t *LogTransport) SendAttachment(ctx context.Context, chatID int64, attachmentRef string, caption *string) error {
	t.log.Info("send attachment", "chat_id", chatID, "attachment_ref", attachmentRef)
	return nil
}

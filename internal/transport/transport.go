// Package transport abstracts the chat platform the relay speaks through.
// The core only needs to send, edit and delete messages and to deliver a
// binary attachment by opaque reference; the concrete wire protocol lives
// behind this interface.
package transport

import (
	"context"
	"errors"
	"strings"
)

// MessageRef identifies one delivered message so it can later be edited or
// deleted in place. The agent panel is such a message.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// Action is one tappable action attached to an outbound message, e.g. the
// open/claim pair on a new-session alert. Data is the opaque callback
// payload the platform echoes back.
type Action struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Outbound is the payload of one message to deliver.
type Outbound struct {
	Text    string   `json:"text"`
	Actions []Action `json:"actions,omitempty"`
}

// Delivery failure classes. Implementations should wrap their platform
// errors into these where recognizable; everything else stays generic. The
// classes exist for log diagnostics only, every failure is handled the same
// way (logged, isolated, never fatal to a batch).
var (
	ErrBlocked      = errors.New("recipient blocked the bot")
	ErrChatNotFound = errors.New("chat not found")
	ErrForbidden    = errors.New("forbidden")
	ErrTooLong      = errors.New("message too long")
)

type Transport interface {
	SendMessage(ctx context.Context, chatID int64, out Outbound) (MessageRef, error)
	EditMessage(ctx context.Context, ref MessageRef, out Outbound) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	SendAttachment(ctx context.Context, chatID int64, attachmentRef string, caption *string) error
}

// FailureClass names the delivery failure for a log line.
func FailureClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrChatNotFound):
		return "chat_not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrTooLong):
		return "too_long"
	}
	// Fallback for implementations that surface raw platform errors.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "blocked"):
		return "blocked"
	case strings.Contains(msg, "chat not found"):
		return "chat_not_found"
	case strings.Contains(msg, "forbidden"):
		return "forbidden"
	case strings.Contains(msg, "too long"):
		return "too_long"
	default:
		return "other"
	}
}

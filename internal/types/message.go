package types

import (
	"time"
)

type MessageDirection string

const (
	FromUser  MessageDirection = "fromUser"
	FromAgent MessageDirection = "fromAgent"
)

// Message is one inbound or outbound chat event, bound to a user and (in
// practice always) a session. Rows are append-only; nothing in the core ever
// updates or deletes one.
//
// Ordering within a session is created_at ascending with the auto-increment
// id as the tie-break, so two messages logged inside the same clock tick
// still have a deterministic order.
type Message struct {
	ID            uint64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64            `gorm:"column:user_id;not null;index" json:"user_id"`
	SessionID     *uint64          `gorm:"column:session_id;index" json:"session_id,omitempty"`
	Direction     MessageDirection `gorm:"column:direction;size:16;not null" json:"direction"`
	Text          *string          `gorm:"column:text;type:text" json:"text,omitempty"`
	AttachmentRef *string          `gorm:"column:attachment_ref;size:255" json:"attachment_ref,omitempty"`
	CreatedAt     time.Time        `gorm:"not null;index" json:"created_at"`
}

func (Message) TableName() string { return "messages" }

package types

import (
	"time"
)

type UserPriority string

const (
	PriorityLow    UserPriority = "low"
	PriorityNormal UserPriority = "normal"
	PriorityHigh   UserPriority = "high"
)

// User is one end user of the support bot, keyed by the chat platform's
// numeric user id. Rows are upserted on first contact and refreshed on every
// inbound message; they are never deleted.
type User struct {
	PlatformID       int64        `gorm:"primaryKey;column:platform_id;autoIncrement:false" json:"platform_id"`
	Username         *string      `gorm:"column:username;size:32;index" json:"username,omitempty"`
	CurrentSessionID *uint64      `gorm:"column:current_session_id;index" json:"current_session_id,omitempty"`
	Priority         UserPriority `gorm:"column:priority;size:16;not null;default:normal" json:"priority"`
	Notes            *string      `gorm:"column:notes;type:text" json:"notes,omitempty"`
	IsBlocked        bool         `gorm:"column:is_blocked;not null;default:false" json:"is_blocked"`
	LastMessageAt    *time.Time   `gorm:"column:last_message_at;index" json:"last_message_at,omitempty"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

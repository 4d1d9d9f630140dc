package types

import (
	"time"
)

type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

// SessionKind selects one of the three mutually exclusive views over open
// sessions. It is a closed enum so the query builder in repos can switch
// exhaustively instead of comparing strings.
type SessionKind int

const (
	KindUnclaimed SessionKind = iota // open, no assigned agent
	KindMine                         // open, assigned to the requesting agent
	KindOthers                       // open, assigned to somebody else
)

func (k SessionKind) String() string {
	switch k {
	case KindUnclaimed:
		return "unclaimed"
	case KindMine:
		return "mine"
	case KindOthers:
		return "others"
	default:
		return "unknown"
	}
}

// Session is one continuous support interaction for a user. A user has at
// most one open session at a time; the partial unique index on (user_id)
// WHERE status='open' backs that invariant across processes.
type Session struct {
	ID            uint64        `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64         `gorm:"column:user_id;not null;index" json:"user_id"`
	Status        SessionStatus `gorm:"column:status;size:16;not null;default:open;index" json:"status"`
	AssignedAgent *int64        `gorm:"column:assigned_agent;index" json:"assigned_agent,omitempty"`
	OpenedAt      time.Time     `gorm:"column:opened_at;not null;index" json:"opened_at"`
	ClosedAt      *time.Time    `gorm:"column:closed_at;index" json:"closed_at,omitempty"`
}

func (Session) TableName() string { return "sessions" }

// SessionView is the session joined with its owning user, the shape every
// agent-facing surface works with.
type SessionView struct {
	SessionID     uint64  `json:"session_id"`
	UserID        int64   `json:"user_id"`
	Username      *string `json:"username,omitempty"`
	AssignedAgent *int64  `json:"assigned_agent,omitempty"`
}

// SessionListItem is one row of the open-session listings, ordered by the
// owning user's most recent activity.
type SessionListItem struct {
	SessionID uint64  `json:"session_id"`
	UserID    int64   `json:"user_id"`
	Username  *string `json:"username,omitempty"`
}

// ClosedSessionItem is one row of the paginated closed-session listing.
type ClosedSessionItem struct {
	SessionID uint64    `json:"session_id"`
	UserID    int64     `json:"user_id"`
	Username  *string   `json:"username,omitempty"`
	ClosedAt  time.Time `json:"closed_at"`
}

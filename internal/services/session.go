package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/onyxchat/relay-backend/internal/db"
	"github.com/onyxchat/relay-backend/internal/logger"
	"github.com/onyxchat/relay-backend/internal/repos"
	"github.com/onyxchat/relay-backend/internal/types"
)

// ClosedPerPage is the fixed page size of the closed-session listing.
const ClosedPerPage = 10

// ClosedPage is one page of closed sessions. Page is the clamped page number
// actually served, which may differ from the one requested.
type ClosedPage struct {
	Items      []types.ClosedSessionItem `json:"items"`
	Page       int                       `json:"page"`
	TotalPages int                       `json:"total_pages"`
	Total      int64                     `json:"total"`
}

type SessionService interface {
	// EnsureOpen returns the user's open session, creating one when none
	// exists. created tells the caller whether a new session was opened (and
	// the agent pool should be alerted).
	EnsureOpen(ctx context.Context, userID int64) (sessionID uint64, created bool, err error)
	Assign(ctx context.Context, sessionID uint64, agentID int64) (bool, error)
	Close(ctx context.Context, sessionID uint64, agentID int64) (bool, error)
	Info(ctx context.Context, sessionID uint64) (*types.SessionView, error)
	Count(ctx context.Context, kind types.SessionKind, agentID int64) (int64, error)
	List(ctx context.Context, kind types.SessionKind, agentID int64) ([]types.SessionListItem, error)
	ClosedPage(ctx context.Context, page int, onlyMine bool, agentID int64) (*ClosedPage, error)
}

type sessionService struct {
	gdb      *gorm.DB
	sessions repos.SessionRepo
	users    repos.UserRepo
	log      *logger.Logger
	perUser  *keyedMutex
}

func NewSessionService(gdb *gorm.DB, sessions repos.SessionRepo, users repos.UserRepo, baseLog *logger.Logger) SessionService {
	return &sessionService{
		gdb:      gdb,
		sessions: sessions,
		users:    users,
		log:      baseLog.With("service", "SessionService"),
		perUser:  newKeyedMutex(),
	}
}

// EnsureOpen is find-or-create under a per-user lock, with the store's
// partial unique index as the backstop against other process instances. In
// either outcome the session is bound as the user's current one.
func (ss *sessionService) EnsureOpen(ctx context.Context, userID int64) (uint64, bool, error) {
	ss.perUser.Lock(userID)
	defer ss.perUser.Unlock(userID)

	var (
		sessionID uint64
		created   bool
	)
	err := ss.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := ss.sessions.FindOpenByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			sessionID = existing.ID
		} else {
			session, err := ss.sessions.Create(ctx, tx, userID)
			if err != nil {
				return err
			}
			sessionID = session.ID
			created = true
		}
		return ss.users.BindSession(ctx, tx, userID, sessionID)
	})
	if err != nil && db.IsDuplicateKey(err) {
		// Another relay instance opened the session between our find and
		// create. Theirs wins; pick it up and bind it.
		ss.log.Debug("lost open-session race to another instance", "user_id", userID)
		existing, ferr := ss.sessions.FindOpenByUser(ctx, nil, userID)
		if ferr != nil {
			return 0, false, ferr
		}
		if existing == nil {
			return 0, false, fmt.Errorf("ensure open session for user %d: %w", userID, err)
		}
		if berr := ss.users.BindSession(ctx, nil, userID, existing.ID); berr != nil {
			return 0, false, berr
		}
		return existing.ID, false, nil
	}
	if err != nil {
		ss.log.Error("ensure open session failed", "user_id", userID, "error", err, "class", db.Classify(err))
		return 0, false, fmt.Errorf("ensure open session for user %d: %w", userID, err)
	}

	if created {
		ss.log.Info("opened new session", "user_id", userID, "session_id", sessionID)
	}
	return sessionID, created, nil
}

func (ss *sessionService) Assign(ctx context.Context, sessionID uint64, agentID int64) (bool, error) {
	ok, err := ss.sessions.Assign(ctx, sessionID, agentID)
	if err != nil {
		ss.log.Error("assign session failed", "session_id", sessionID, "agent_id", agentID, "error", err)
		return false, fmt.Errorf("assign session %d: %w", sessionID, err)
	}
	if ok {
		ss.log.Info("session assigned", "session_id", sessionID, "agent_id", agentID)
	} else {
		ss.log.Info("session assignment refused", "session_id", sessionID, "agent_id", agentID)
	}
	return ok, nil
}

// Close closes any open session regardless of who holds it. The claim flow
// means in practice only the assignee ever reaches this, but an unassigned
// or foreign session being closed by an agent is deliberately allowed (an
// agent cleaning up an abandoned chat, for instance).
func (ss *sessionService) Close(ctx context.Context, sessionID uint64, agentID int64) (bool, error) {
	ok, err := ss.sessions.Close(ctx, sessionID)
	if err != nil {
		ss.log.Error("close session failed", "session_id", sessionID, "agent_id", agentID, "error", err)
		return false, fmt.Errorf("close session %d: %w", sessionID, err)
	}
	if ok {
		ss.log.Info("session closed", "session_id", sessionID, "agent_id", agentID)
	} else {
		ss.log.Warn("session close refused", "session_id", sessionID, "agent_id", agentID)
	}
	return ok, nil
}

func (ss *sessionService) Info(ctx context.Context, sessionID uint64) (*types.SessionView, error) {
	view, err := ss.sessions.GetView(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session info %d: %w", sessionID, err)
	}
	return view, nil
}

func (ss *sessionService) Count(ctx context.Context, kind types.SessionKind, agentID int64) (int64, error) {
	return ss.sessions.CountByKind(ctx, kind, agentID)
}

func (ss *sessionService) List(ctx context.Context, kind types.SessionKind, agentID int64) ([]types.SessionListItem, error) {
	return ss.sessions.ListByKind(ctx, kind, agentID)
}

// ClosedPage serves one page of the closed-session listing. The requested
// page is clamped to [1, totalPages] with totalPages at least 1, so page 0
// and pages past the end both land on something valid.
func (ss *sessionService) ClosedPage(ctx context.Context, page int, onlyMine bool, agentID int64) (*ClosedPage, error) {
	total, err := ss.sessions.CountClosed(ctx, onlyMine, agentID)
	if err != nil {
		return nil, fmt.Errorf("count closed sessions: %w", err)
	}

	totalPages := int((total + ClosedPerPage - 1) / ClosedPerPage)
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	items, err := ss.sessions.ListClosed(ctx, ClosedPerPage, (page-1)*ClosedPerPage, onlyMine, agentID)
	if err != nil {
		return nil, fmt.Errorf("list closed sessions: %w", err)
	}

	return &ClosedPage{
		Items:      items,
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
	}, nil
}

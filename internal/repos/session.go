package repos

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/onyxchat/relay-backend/internal/logger"
	"github.com/onyxchat/relay-backend/internal/types"
)

type SessionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, userID int64) (*types.Session, error)
	FindOpenByUser(ctx context.Context, tx *gorm.DB, userID int64) (*types.Session, error)
	Assign(ctx context.Context, sessionID uint64, agentID int64) (bool, error)
	Close(ctx context.Context, sessionID uint64) (bool, error)
	GetView(ctx context.Context, sessionID uint64) (*types.SessionView, error)
	CountByKind(ctx context.Context, kind types.SessionKind, agentID int64) (int64, error)
	ListByKind(ctx context.Context, kind types.SessionKind, agentID int64) ([]types.SessionListItem, error)
	CountClosed(ctx context.Context, onlyMine bool, agentID int64) (int64, error)
	ListClosed(ctx context.Context, limit, offset int, onlyMine bool, agentID int64) ([]types.ClosedSessionItem, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "SessionRepo")}
}

func (sr *sessionRepo) Create(ctx context.Context, tx *gorm.DB, userID int64) (*types.Session, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	session := types.Session{
		UserID:   userID,
		Status:   types.SessionOpen,
		OpenedAt: time.Now().UTC(),
	}
	if err := transaction.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (sr *sessionRepo) FindOpenByUser(ctx context.Context, tx *gorm.DB, userID int64) (*types.Session, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	var session types.Session
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, types.SessionOpen).
		Order("opened_at ASC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Assign claims the session for agentID with a single conditional update.
// The WHERE clause is the whole conflict-resolution protocol: the update
// matches only while the session is open and either unclaimed or already
// held by this same agent, so of N racing agents exactly one sees a changed
// row. Re-claiming your own session also reports success.
func (sr *sessionRepo) Assign(ctx context.Context, sessionID uint64, agentID int64) (bool, error) {
	res := sr.db.WithContext(ctx).
		Model(&types.Session{}).
		Where("id = ? AND status = ? AND (assigned_agent IS NULL OR assigned_agent = ?)",
			sessionID, types.SessionOpen, agentID).
		Update("assigned_agent", agentID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Close transitions open -> closed. Closing an already-closed or missing
// session matches no rows and reports false rather than an error.
func (sr *sessionRepo) Close(ctx context.Context, sessionID uint64) (bool, error) {
	now := time.Now().UTC()
	res := sr.db.WithContext(ctx).
		Model(&types.Session{}).
		Where("id = ? AND status = ?", sessionID, types.SessionOpen).
		Updates(map[string]interface{}{
			"status":    types.SessionClosed,
			"closed_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (sr *sessionRepo) GetView(ctx context.Context, sessionID uint64) (*types.SessionView, error) {
	var view types.SessionView
	err := sr.db.WithContext(ctx).
		Table("sessions AS s").
		Select("s.id AS session_id, s.user_id AS user_id, u.username AS username, s.assigned_agent AS assigned_agent").
		Joins("INNER JOIN users u ON u.platform_id = s.user_id").
		Where("s.id = ?", sessionID).
		Take(&view).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// kindClause returns the WHERE fragment and arguments for one of the three
// open-session views. Every view is anchored on status='open'; the kinds are
// mutually exclusive by construction.
func kindClause(kind types.SessionKind, agentID int64) (string, []interface{}) {
	switch kind {
	case types.KindUnclaimed:
		return "s.status = ? AND s.assigned_agent IS NULL", []interface{}{types.SessionOpen}
	case types.KindMine:
		return "s.status = ? AND s.assigned_agent = ?", []interface{}{types.SessionOpen, agentID}
	case types.KindOthers:
		return "s.status = ? AND s.assigned_agent IS NOT NULL AND s.assigned_agent != ?", []interface{}{types.SessionOpen, agentID}
	default:
		return "1 = 0", nil
	}
}

func (sr *sessionRepo) CountByKind(ctx context.Context, kind types.SessionKind, agentID int64) (int64, error) {
	where, args := kindClause(kind, agentID)

	var count int64
	err := sr.db.WithContext(ctx).
		Table("sessions AS s").
		Where(where, args...).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (sr *sessionRepo) ListByKind(ctx context.Context, kind types.SessionKind, agentID int64) ([]types.SessionListItem, error) {
	where, args := kindClause(kind, agentID)

	var items []types.SessionListItem
	err := sr.db.WithContext(ctx).
		Table("sessions AS s").
		Select("s.id AS session_id, s.user_id AS user_id, u.username AS username").
		Joins("INNER JOIN users u ON u.platform_id = s.user_id").
		Where(where, args...).
		Order("COALESCE(u.last_message_at, s.opened_at) DESC, s.id DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (sr *sessionRepo) CountClosed(ctx context.Context, onlyMine bool, agentID int64) (int64, error) {
	query := sr.db.WithContext(ctx).
		Model(&types.Session{}).
		Where("status = ?", types.SessionClosed)
	if onlyMine {
		query = query.Where("assigned_agent = ?", agentID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (sr *sessionRepo) ListClosed(ctx context.Context, limit, offset int, onlyMine bool, agentID int64) ([]types.ClosedSessionItem, error) {
	query := sr.db.WithContext(ctx).
		Table("sessions AS s").
		Select("s.id AS session_id, s.user_id AS user_id, u.username AS username, s.closed_at AS closed_at").
		Joins("INNER JOIN users u ON u.platform_id = s.user_id").
		Where("s.status = ?", types.SessionClosed)
	if onlyMine {
		query = query.Where("s.assigned_agent = ?", agentID)
	}

	var items []types.ClosedSessionItem
	err := query.
		Order("s.closed_at DESC, s.id DESC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

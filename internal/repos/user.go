package repos

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/onyxchat/relay-backend/internal/logger"
	"github.com/onyxchat/relay-backend/internal/types"
)

type UserRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, platformID int64, username *string) error
	GetByID(ctx context.Context, tx *gorm.DB, platformID int64) (*types.User, error)
	BindSession(ctx context.Context, tx *gorm.DB, platformID int64, sessionID uint64) error
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return &userRepo{db: db, log: baseLog.With("repo", "UserRepo")}
}

// Upsert inserts the user on first contact and refreshes username and
// last_message_at on every later call. The username is taken over because
// platform handles change and the stored one would otherwise go stale.
func (ur *userRepo) Upsert(ctx context.Context, tx *gorm.DB, platformID int64, username *string) error {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}

	now := time.Now().UTC()
	user := types.User{
		PlatformID:    platformID,
		Username:      username,
		Priority:      types.PriorityNormal,
		LastMessageAt: &now,
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "platform_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "last_message_at", "updated_at"}),
		}).
		Create(&user).Error
}

func (ur *userRepo) GetByID(ctx context.Context, tx *gorm.DB, platformID int64) (*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}

	var user types.User
	err := transaction.WithContext(ctx).
		Where("platform_id = ?", platformID).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (ur *userRepo) BindSession(ctx context.Context, tx *gorm.DB, platformID int64, sessionID uint64) error {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}

	return transaction.WithContext(ctx).
		Model(&types.User{}).
		Where("platform_id = ?", platformID).
		Update("current_session_id", sessionID).Error
}

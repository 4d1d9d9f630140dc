package repos

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/onyxchat/relay-backend/internal/logger"
	"github.com/onyxchat/relay-backend/internal/types"
)

type MessageRepo interface {
	Append(ctx context.Context, tx *gorm.DB, msg *types.Message) (*types.Message, error)
	ListBySession(ctx context.Context, userID int64, sessionID uint64) ([]types.Message, error)
	GetAttachment(ctx context.Context, messageID uint64) (*string, *uint64, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: baseLog.With("repo", "MessageRepo")}
}

func (mr *messageRepo) Append(ctx context.Context, tx *gorm.DB, msg *types.Message) (*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if err := transaction.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

// ListBySession returns the session's history ascending by creation time,
// with the auto-increment id breaking sub-tick ties so the order is
// deterministic no matter how fast messages arrive.
func (mr *messageRepo) ListBySession(ctx context.Context, userID int64, sessionID uint64) ([]types.Message, error) {
	var msgs []types.Message
	err := mr.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetAttachment resolves a message id to its attachment reference and owning
// session. Callers must check the session id against the session they are
// viewing before releasing the reference; that check is what keeps an agent
// from pulling attachments out of a session they are not looking at.
func (mr *messageRepo) GetAttachment(ctx context.Context, messageID uint64) (*string, *uint64, error) {
	var msg types.Message
	err := mr.db.WithContext(ctx).
		Select("attachment_ref", "session_id").
		Where("id = ?", messageID).
		Take(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return msg.AttachmentRef, msg.SessionID, nil
}

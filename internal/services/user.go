package services

import (
	"context"
	"fmt"

	"github.com/onyxchat/relay-backend/internal/logger"
	"github.com/onyxchat/relay-backend/internal/repos"
	"github.com/onyxchat/relay-backend/internal/types"
)

type UserService interface {
	Upsert(ctx context.Context, userID int64, username *string) error
	Get(ctx context.Context, userID int64) (*types.User, error)
	// OpenSessionID returns the id of the user's open session, or nil.
	OpenSessionID(ctx context.Context, userID int64) (*uint64, error)
}

type userService struct {
	users    repos.UserRepo
	sessions repos.SessionRepo
	log      *logger.Logger
}

func NewUserService(users repos.UserRepo, sessions repos.SessionRepo, baseLog *logger.Logger) UserService {
	return &userService{
		users:    users,
		sessions: sessions,
		log:      baseLog.With("service", "UserService"),
	}
}

func (us *userService) Upsert(ctx context.Context, userID int64, username *string) error {
	if err := us.users.Upsert(ctx, nil, userID, username); err != nil {
		us.log.Error("user upsert failed", "user_id", userID, "error", err)
		return fmt.Errorf("upsert user %d: %w", userID, err)
	}
	return nil
}

func (us *userService) Get(ctx context.Context, userID int64) (*types.User, error) {
	user, err := us.users.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	return user, nil
}

func (us *userService) OpenSessionID(ctx context.Context, userID int64) (*uint64, error) {
	session, err := us.sessions.FindOpenByUser(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("find open session for user %d: %w", userID, err)
	}
	if session == nil {
		return nil, nil
	}
	return &session.ID, nil
}

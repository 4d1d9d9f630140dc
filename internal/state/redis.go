package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/onyxchat/relay-backend/internal/logger"
)

const keyPrefix = "agent_state:"

type redisStore struct {
	log *logger.Logger
	rdb *goredis.Client
}

// NewRedisStore connects to Redis at REDIS_ADDR. Agent state survives relay
// restarts there, so an agent mid-conversation keeps their panel across a
// deploy.
func NewRedisStore(log *logger.Logger) (Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisStore{
		log: log.With("service", "RedisStateStore"),
		rdb: rdb,
	}, nil
}

func stateKey(agentID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, agentID)
}

func (s *redisStore) Get(ctx context.Context, agentID int64) (AgentState, error) {
	raw, err := s.rdb.Get(ctx, stateKey(agentID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return AgentState{}, nil
	}
	if err != nil {
		return AgentState{}, fmt.Errorf("get agent state: %w", err)
	}

	var st AgentState
	if err := json.Unmarshal(raw, &st); err != nil {
		// A corrupt blob is treated as no state rather than wedging the agent.
		s.log.Warn("corrupt agent state, resetting", "agent_id", agentID, "error", err)
		return AgentState{}, nil
	}
	return st, nil
}

func (s *redisStore) Set(ctx context.Context, agentID int64, st AgentState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, stateKey(agentID), raw, 0).Err(); err != nil {
		return fmt.Errorf("set agent state: %w", err)
	}
	return nil
}

func (s *redisStore) Clear(ctx context.Context, agentID int64) error {
	if err := s.rdb.Del(ctx, stateKey(agentID)).Err(); err != nil {
		return fmt.Errorf("clear agent state: %w", err)
	}
	return nil
}

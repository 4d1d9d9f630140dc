package state

import (
	"context"
	"sync"
)

// memoryStore keeps agent state in-process. Used when REDIS_ADDR is unset
// (single-instance deployments, local development) and by the test suite.
type memoryStore struct {
	mu     sync.RWMutex
	states map[int64]AgentState
}

func NewMemoryStore() Store {
	return &memoryStore{states: make(map[int64]AgentState)}
}

func (s *memoryStore) Get(ctx context.Context, agentID int64) (AgentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[agentID], nil
}

func (s *memoryStore) Set(ctx context.Context, agentID int64, st AgentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[agentID] = st
	return nil
}

func (s *memoryStore) Clear(ctx context.Context, agentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, agentID)
	return nil
}

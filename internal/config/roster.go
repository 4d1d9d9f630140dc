// Package config loads the static agent roster. The agent pool is fixed
// configuration, not data: who may claim sessions is decided at deploy time.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/onyxchat/relay-backend/internal/logger"
)

// Agent is one human operator allowed to claim and answer sessions. ChatID
// doubles as the destination for new-session alerts. Secret is the shared
// credential the agent exchanges for an API token.
type Agent struct {
	ID     int64  `yaml:"id"`
	Name   string `yaml:"name"`
	Secret string `yaml:"secret"`
}

type Roster struct {
	Agents []Agent `yaml:"agents"`
}

func LoadRoster(path string, log *logger.Logger) (*Roster, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}

	var roster Roster
	if err := yaml.Unmarshal(raw, &roster); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	if len(roster.Agents) == 0 {
		return nil, fmt.Errorf("roster %s has no agents", path)
	}

	seen := make(map[int64]bool, len(roster.Agents))
	for _, a := range roster.Agents {
		if a.ID == 0 {
			return nil, fmt.Errorf("roster %s: agent with missing id", path)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("roster %s: duplicate agent id %d", path, a.ID)
		}
		seen[a.ID] = true
	}

	log.Info("Agent roster loaded", "path", path, "agents", len(roster.Agents))
	return &roster, nil
}

func (r *Roster) IsAgent(id int64) bool {
	for _, a := range r.Agents {
		if a.ID == id {
			return true
		}
	}
	return false
}

func (r *Roster) AgentIDs() []int64 {
	ids := make([]int64, 0, len(r.Agents))
	for _, a := range r.Agents {
		ids = append(ids, a.ID)
	}
	return ids
}

// FindByCredentials resolves a login attempt. Returns nil when either the id
// is unknown or the secret does not match; callers get no hint which.
func (r *Roster) FindByCredentials(id int64, secret string) *Agent {
	for i := range r.Agents {
		a := &r.Agents[i]
		if a.ID == id && a.Secret != "" && a.Secret == secret {
			return a
		}
	}
	return nil
}

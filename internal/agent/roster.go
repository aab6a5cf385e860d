// Package agent describes the roles that take turns in a collaboration.
package agent

import (
	"fmt"

	"github.com/comigor/roundtable/internal/apperr"
	"github.com/comigor/roundtable/internal/config"
	"github.com/comigor/roundtable/internal/conversation"
)

// Agent is one roster entry: a role and the persona text handed to the generator.
type Agent struct {
	Role    conversation.Role
	Persona string
}

// Roster is the fixed, cyclic turn order plus the designated reviewer.
type Roster struct {
	agents   []Agent
	reviewer conversation.Role
}

// NewRoster builds a roster from the configured agents.
func NewRoster(agents []config.AgentConfig, reviewer string) (*Roster, error) {
	if len(agents) == 0 {
		return nil, apperr.Configuration("agent.NewRoster", fmt.Errorf("roster is empty"))
	}
	r := &Roster{
		agents:   make([]Agent, 0, len(agents)),
		reviewer: conversation.Role(reviewer),
	}
	for _, a := range agents {
		r.agents = append(r.agents, Agent{Role: conversation.Role(a.Role), Persona: a.Persona})
	}
	if _, ok := r.Lookup(r.reviewer); !ok {
		return nil, apperr.Configuration("agent.NewRoster", fmt.Errorf("reviewer %q is not in the roster", reviewer))
	}
	return r, nil
}

// FromConfig is NewRoster over cfg.Agents and cfg.ReviewerRole.
func FromConfig(cfg *config.Config) (*Roster, error) {
	return NewRoster(cfg.Agents, cfg.ReviewerRole)
}

func (r *Roster) Len() int { return len(r.agents) }

// At returns the agent in slot i, wrapping around the roster.
func (r *Roster) At(i int) Agent {
	return r.agents[i%len(r.agents)]
}

func (r *Roster) Reviewer() conversation.Role { return r.reviewer }

func (r *Roster) Lookup(role conversation.Role) (Agent, bool) {
	for _, a := range r.agents {
		if a.Role == role {
			return a, true
		}
	}
	return Agent{}, false
}

// Roles returns the turn order.
func (r *Roster) Roles() []conversation.Role {
	roles := make([]conversation.Role, len(r.agents))
	for i, a := range r.agents {
		roles[i] = a.Role
	}
	return roles
}

// Others returns every role except the reviewer, in turn order.
func (r *Roster) Others() []conversation.Role {
	var roles []conversation.Role
	for _, a := range r.agents {
		if a.Role != r.reviewer {
			roles = append(roles, a.Role)
		}
	}
	return roles
}

// Knows reports whether role may appear as a sender: a roster role or the human.
func (r *Roster) Knows(role conversation.Role) bool {
	if role == conversation.Human {
		return true
	}
	_, ok := r.Lookup(role)
	return ok
}

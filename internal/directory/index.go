// Package directory is the read side of the registry: filtered, paginated
// agent listings ordered by agent name.
package directory

import (
	"context"
	"iter"
	"strings"

	"github.com/xiaot623/agentdir/internal/domain"
	"github.com/xiaot623/agentdir/internal/repository"
)

// Filter selects agents. Every supplied field must match; nil or empty
// fields are unconstrained.
type Filter struct {
	Skill        string // case-insensitive exact-or-prefix
	Protocol     string // case-insensitive exact
	Task         string // case-insensitive exact
	A2ACompliant *bool
	Verified     *bool
	Active       *bool
	// After resumes the listing after this agent name.
	After string
}

func (f Filter) storeFilter() store.AgentFilter {
	return store.AgentFilter{
		Skill:        f.Skill,
		Protocol:     f.Protocol,
		Task:         f.Task,
		A2ACompliant: f.A2ACompliant,
		Verified:     f.Verified,
		Active:       f.Active,
	}
}

// Matches reports whether agent satisfies every supplied filter field.
func (f Filter) Matches(agent *domain.AgentRecord) bool {
	if f.After != "" && agent.AgentName <= f.After {
		return false
	}
	if f.Active != nil && agent.Active != *f.Active {
		return false
	}
	if f.Verified != nil && agent.Verified != *f.Verified {
		return false
	}
	if f.A2ACompliant != nil && agent.Descriptor.A2ACompliant != *f.A2ACompliant {
		return false
	}
	if f.Skill != "" && !hasPrefixFold(agent.Descriptor.Skills, f.Skill) {
		return false
	}
	if f.Protocol != "" && !containsFold(agent.Descriptor.Protocols, f.Protocol) {
		return false
	}
	if f.Task != "" && !agent.Descriptor.SupportsTask(f.Task) {
		return false
	}
	return true
}

// Index is a directory query surface. Search yields matching agents in
// ascending name order; the sequence is lazy, finite and restartable, and
// stops at the first error.
type Index interface {
	Search(ctx context.Context, f Filter) iter.Seq2[domain.AgentRecord, error]
}

// Page collects up to limit agents and returns the cursor for the next page,
// or "" when the listing is exhausted.
func Page(ctx context.Context, idx Index, f Filter, limit int) ([]domain.AgentRecord, string, error) {
	agents := make([]domain.AgentRecord, 0, limit)
	more := false
	for agent, err := range idx.Search(ctx, f) {
		if err != nil {
			return nil, "", err
		}
		if len(agents) == limit {
			more = true
			break
		}
		agents = append(agents, agent)
	}
	if !more || len(agents) == 0 {
		return agents, "", nil
	}
	return agents, agents[len(agents)-1].AgentName, nil
}

func hasPrefixFold(values []string, prefix string) bool {
	prefix = strings.ToLower(prefix)
	for _, v := range values {
		if strings.HasPrefix(strings.ToLower(v), prefix) {
			return true
		}
	}
	return false
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

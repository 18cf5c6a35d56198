package service

import (
	"context"

	"github.com/xiaot623/agentdir/internal/directory"
	"github.com/xiaot623/agentdir/internal/domain"
)

// Directory paging bounds.
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

func (s *Service) RegisterAgent(ctx context.Context, name, fingerprint string, descriptor domain.Descriptor) (*domain.AgentRecord, error) {
	agent, err := s.registry.Register(ctx, name, fingerprint, descriptor)
	if err != nil {
		return nil, s.fail(ctx, "register_agent", err)
	}
	return agent, nil
}

func (s *Service) RenewAgent(ctx context.Context, name, fingerprint string, expectedVersion *int64) (*domain.AgentRecord, error) {
	agent, err := s.registry.Renew(ctx, name, fingerprint, expectedVersion)
	if err != nil {
		return nil, s.fail(ctx, "renew_agent", err)
	}
	return agent, nil
}

func (s *Service) DeactivateAgent(ctx context.Context, name string, expectedVersion *int64) (*domain.AgentRecord, error) {
	agent, err := s.registry.Deactivate(ctx, name, expectedVersion)
	if err != nil {
		return nil, s.fail(ctx, "deactivate_agent", err)
	}
	return agent, nil
}

// SetAgentVerified records the outcome of an external identity check.
func (s *Service) SetAgentVerified(ctx context.Context, name string, verified bool, expectedVersion *int64) (*domain.AgentRecord, error) {
	agent, err := s.registry.SetVerified(ctx, name, verified, expectedVersion)
	if err != nil {
		return nil, s.fail(ctx, "set_agent_verified", err)
	}
	return agent, nil
}

func (s *Service) GetAgent(ctx context.Context, name string) (*domain.AgentRecord, error) {
	agent, err := s.registry.Get(ctx, name)
	if err != nil {
		return nil, s.fail(ctx, "get_agent", err)
	}
	return agent, nil
}

// GetAgentDescriptor returns the negotiation parameters of an active agent.
func (s *Service) GetAgentDescriptor(ctx context.Context, name string) (*domain.A2ADescriptor, error) {
	agent, err := s.registry.Get(ctx, name)
	if err != nil {
		return nil, s.fail(ctx, "get_agent_descriptor", err)
	}
	if !agent.Active {
		return nil, s.fail(ctx, "get_agent_descriptor",
			domain.NewError(domain.CodeInactiveAgent, "agent %q is inactive", name))
	}
	d := agent.A2A()
	return &d, nil
}

// SearchAgents returns one page of the directory and the cursor of the next.
func (s *Service) SearchAgents(ctx context.Context, f directory.Filter, limit int) ([]domain.AgentRecord, string, error) {
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit < 0 || limit > MaxPageSize {
		return nil, "", s.fail(ctx, "search_agents",
			domain.FieldError("limit", "must be between 1 and %d", MaxPageSize))
	}
	agents, next, err := directory.Page(ctx, s.index, f, limit)
	if err != nil {
		return nil, "", s.fail(ctx, "search_agents", err)
	}
	return agents, next, nil
}

// ListAgents pages through every agent, optionally only the active ones.
func (s *Service) ListAgents(ctx context.Context, activeOnly bool, limit int, after string) ([]domain.AgentRecord, string, error) {
	f := directory.Filter{After: after}
	if activeOnly {
		active := true
		f.Active = &active
	}
	return s.SearchAgents(ctx, f, limit)
}

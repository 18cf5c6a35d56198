package service

import (
	"context"

	"github.com/xiaot623/agentdir/internal/domain"
)

// Negotiate ranks the candidates for a handoff. No state changes.
func (s *Service) Negotiate(ctx context.Context, req domain.NegotiationRequest) ([]domain.CandidateScore, error) {
	candidates, err := s.engine.Negotiate(ctx, req)
	if err != nil {
		return nil, s.fail(ctx, "negotiate", err)
	}
	return candidates, nil
}

package service

import (
	"context"

	"github.com/xiaot623/agentdir/internal/domain"
	"github.com/xiaot623/agentdir/internal/session"
)

func (s *Service) InitiateSession(ctx context.Context, req session.InitiateRequest) (*domain.Session, error) {
	sess, err := s.broker.Initiate(ctx, req)
	if err != nil {
		return nil, s.fail(ctx, "initiate_session", err)
	}
	return sess, nil
}

func (s *Service) GetSessionStatus(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.broker.GetStatus(ctx, sessionID)
	if err != nil {
		return nil, s.fail(ctx, "get_session_status", err)
	}
	return sess, nil
}

func (s *Service) UpdateSession(ctx context.Context, sessionID string, req session.UpdateRequest) (*domain.Session, error) {
	sess, err := s.broker.Update(ctx, sessionID, req)
	if err != nil {
		return nil, s.fail(ctx, "update_session", err)
	}
	return sess, nil
}

func (s *Service) TerminateSession(ctx context.Context, sessionID string, expectedVersion *int64) (*domain.Session, error) {
	sess, err := s.broker.Terminate(ctx, sessionID, expectedVersion)
	if err != nil {
		return nil, s.fail(ctx, "terminate_session", err)
	}
	return sess, nil
}

func (s *Service) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	sessions, err := s.broker.List(ctx, filter)
	if err != nil {
		return nil, s.fail(ctx, "list_sessions", err)
	}
	return sessions, nil
}

// VerifySessionToken checks a bearer token against its session.
func (s *Service) VerifySessionToken(ctx context.Context, token string) (*domain.Session, error) {
	sess, err := s.broker.VerifyToken(ctx, token)
	if err != nil {
		return nil, s.fail(ctx, "verify_session_token", err)
	}
	return sess, nil
}

// SweepExpiredSessions fails every expired session now instead of on next read.
func (s *Service) SweepExpiredSessions(ctx context.Context) (int, error) {
	n, err := s.broker.SweepExpired(ctx)
	if err != nil {
		return n, s.fail(ctx, "sweep_expired_sessions", err)
	}
	return n, nil
}

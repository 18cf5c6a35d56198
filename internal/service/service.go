// Package service composes the registry, directory index, negotiation engine
// and session broker behind the operations the transports expose. Every
// failure is logged once here with the request's correlation id.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/xiaot623/agentdir/internal/directory"
	"github.com/xiaot623/agentdir/internal/domain"
	"github.com/xiaot623/agentdir/internal/negotiation"
	"github.com/xiaot623/agentdir/internal/registry"
	"github.com/xiaot623/agentdir/internal/session"
	"github.com/xiaot623/agentdir/internal/telemetry"
)

type Service struct {
	registry *registry.Registry
	index    directory.Index
	engine   *negotiation.Engine
	broker   *session.Broker
	logger   *slog.Logger
}

func New(reg *registry.Registry, index directory.Index, engine *negotiation.Engine, broker *session.Broker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry: reg,
		index:    index,
		engine:   engine,
		broker:   broker,
		logger:   logger,
	}
}

// fail classifies err, logs it against the request and returns the classified error.
func (s *Service) fail(ctx context.Context, op string, err error) error {
	e := domain.AsError(err)
	logger := telemetry.FromContext(ctx, s.logger).With("op", op, "code", string(e.Code))
	if e.Code == domain.CodeInternal {
		attrs := []any{"error", e.Message}
		if cause := errors.Unwrap(e); cause != nil {
			attrs = append(attrs, "cause", cause.Error())
		}
		logger.ErrorContext(ctx, "operation failed", attrs...)
		return e
	}
	logger.InfoContext(ctx, "operation rejected", "error", e.Error())
	return e
}

package session

import (
	"context"

	"github.com/xiaot623/agentdir/internal/domain"
	"github.com/xiaot623/agentdir/internal/telemetry"
)

const (
	maxSweepAttempts = 5
	sweepBatchSize   = 100
)

// expire fails s if it is non-terminal and past its expiry. It reports
// whether this call performed the transition; a session already made
// terminal by someone else is returned as stored.
func (b *Broker) expire(ctx context.Context, s *domain.Session) (*domain.Session, bool, error) {
	for attempt := 0; attempt < maxSweepAttempts; attempt++ {
		now := b.now()
		if !s.Expired(now) {
			return s, false, nil
		}

		next := *s
		next.Status = domain.SessionStatusFailed
		next.Reason = domain.FailureReasonExpired
		next.UpdatedAt = now.UTC()
		ok, err := b.store.UpdateSession(ctx, &next, s.Version)
		if err != nil {
			return nil, false, domain.Internal("failed to expire session", err)
		}
		if ok {
			b.metrics.RecordExpired(ctx)
			b.metrics.RecordTransition(ctx, string(s.Status), string(next.Status))
			b.logger.InfoContext(ctx, "session expired",
				"correlation_id", telemetry.CorrelationID(ctx),
				"session_id", s.SessionID,
				"from", s.Status,
			)
			return &next, true, nil
		}

		b.metrics.RecordCASConflict(ctx, "session")
		if s, err = b.load(ctx, s.SessionID); err != nil {
			return nil, false, err
		}
	}
	return nil, false, domain.NewError(domain.CodeConflict,
		"session %q kept changing during the expiration sweep", s.SessionID)
}

// SweepExpired fails every expired non-terminal session and returns how many
// it transitioned.
func (b *Broker) SweepExpired(ctx context.Context) (int, error) {
	swept := 0
	for {
		batch, err := b.store.ListExpiredSessions(ctx, b.now(), sweepBatchSize)
		if err != nil {
			return swept, domain.Internal("failed to list expired sessions", err)
		}
		progressed := false
		for i := range batch {
			_, did, err := b.expire(ctx, &batch[i])
			if err != nil {
				b.logger.WarnContext(ctx, "failed to expire session",
					"session_id", batch[i].SessionID,
					"error", err,
				)
				continue
			}
			if did {
				swept++
			}
			progressed = true
		}
		if len(batch) < sweepBatchSize || !progressed {
			return swept, nil
		}
	}
}

// Package session is the A2A session broker: it opens sessions between two
// agents, drives them through the session state machine and fails them once
// their TTL has passed.
//
// Every write is a compare-and-swap on the session version. A caller that
// presents a version that is no longer current gets domain.ErrStaleState and
// must re-read; the broker never merges concurrent writes.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/agentdir/internal/domain"
	"github.com/xiaot623/agentdir/internal/repository"
	"github.com/xiaot623/agentdir/internal/retry"
	"github.com/xiaot623/agentdir/internal/telemetry"
	"github.com/xiaot623/agentdir/internal/token"
	"github.com/xiaot623/agentdir/internal/validation"
	"github.com/xiaot623/agentdir/policy"
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = time.Hour

// Listing bounds.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

const (
	maxIdempotencyKeyLength = 255
	maxReasonLength         = 500
)

// AgentSource resolves agents by name.
type AgentSource interface {
	Get(ctx context.Context, name string) (*domain.AgentRecord, error)
}

// Admitter decides whether a target may take a session for a task.
type Admitter interface {
	Admit(ctx context.Context, in policy.AdmissionInput) error
}

// Options configures a Broker.
type Options struct {
	TTL     time.Duration
	Now     func() time.Time
	Retry   retry.Policy
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// Broker owns session state.
type Broker struct {
	store     store.Store
	agents    AgentSource
	admission Admitter
	issuer    *token.Issuer
	ttl       time.Duration
	now       func() time.Time
	retry     retry.Policy
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

// NewBroker creates a Broker.
func NewBroker(s store.Store, agents AgentSource, admission Admitter, issuer *token.Issuer, opts Options) *Broker {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Broker{
		store:     s,
		agents:    agents,
		admission: admission,
		issuer:    issuer,
		ttl:       opts.TTL,
		now:       opts.Now,
		retry:     opts.Retry,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
}

// InitiateRequest opens a session.
type InitiateRequest struct {
	InitiatingAgent string
	TargetAgent     string
	Task            string
	Context         domain.SessionContext
	// IdempotencyKey makes retries return the session created first.
	IdempotencyKey string
}

// Initiate validates both agents, admits the target, signs a token and
// persists the session as initiated at version 0. The returned session is the
// only place the token is handed out.
func (b *Broker) Initiate(ctx context.Context, req InitiateRequest) (*domain.Session, error) {
	req.Task = strings.TrimSpace(req.Task)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if err := validation.AgentName("initiatingAgent", req.InitiatingAgent); err != nil {
		return nil, err
	}
	if err := validation.AgentName("targetAgent", req.TargetAgent); err != nil {
		return nil, err
	}
	if err := validation.Task("task", req.Task); err != nil {
		return nil, err
	}
	if err := validation.Context("context", req.Context); err != nil {
		return nil, err
	}
	if len(req.IdempotencyKey) > maxIdempotencyKeyLength {
		return nil, domain.FieldError("idempotencyKey", "must be at most %d characters", maxIdempotencyKeyLength)
	}

	if req.IdempotencyKey != "" {
		existing, err := b.store.GetSessionByIdempotencyKey(ctx, req.InitiatingAgent, req.IdempotencyKey)
		if err != nil {
			return nil, domain.Internal("failed to look up idempotency key", err)
		}
		if existing != nil {
			return replay(existing, req)
		}
	}

	if _, err := b.activeAgent(ctx, req.InitiatingAgent); err != nil {
		return nil, err
	}
	target, err := b.activeAgent(ctx, req.TargetAgent)
	if err != nil {
		return nil, err
	}
	if err := b.admission.Admit(ctx, policy.AdmissionInput{Task: req.Task, Target: target}); err != nil {
		return nil, err
	}

	now := b.now().UTC()
	s := &domain.Session{
		SessionID:       uuid.NewString(),
		InitiatingAgent: req.InitiatingAgent,
		TargetAgent:     req.TargetAgent,
		Task:            req.Task,
		Context:         req.Context,
		Status:          domain.SessionStatusInitiated,
		IdempotencyKey:  req.IdempotencyKey,
		Version:         0,
		ExpiresAt:       time.UnixMilli(now.Add(b.ttl).UnixMilli()).UTC(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if s.Context == nil {
		s.Context = domain.SessionContext{}
	}
	s.SessionToken, err = b.issuer.Sign(token.Claims{
		SessionID:       s.SessionID,
		InitiatingAgent: s.InitiatingAgent,
		TargetAgent:     s.TargetAgent,
		Task:            s.Task,
		ExpiresAt:       s.ExpiresAt,
	})
	if err != nil {
		return nil, domain.Internal("failed to sign session token", err)
	}

	if err := b.store.CreateSession(ctx, s); err != nil {
		if errors.Is(err, store.ErrIdempotencyKeyExists) {
			existing, getErr := b.store.GetSessionByIdempotencyKey(ctx, req.InitiatingAgent, req.IdempotencyKey)
			if getErr != nil || existing == nil {
				return nil, domain.Internal("failed to load session for idempotency key", getErr)
			}
			return replay(existing, req)
		}
		return nil, domain.Internal("failed to create session", err)
	}

	b.metrics.RecordTransition(ctx, "none", string(s.Status))
	b.logger.InfoContext(ctx, "session initiated",
		"correlation_id", telemetry.CorrelationID(ctx),
		"session_id", s.SessionID,
		"initiating_agent", s.InitiatingAgent,
		"target_agent", s.TargetAgent,
		"task", s.Task,
	)
	return s, nil
}

// replay returns the session stored under a reused idempotency key, provided
// the request asks for the same handoff.
func replay(existing *domain.Session, req InitiateRequest) (*domain.Session, error) {
	if existing.TargetAgent != req.TargetAgent || existing.Task != req.Task {
		return nil, domain.NewError(domain.CodeConflict,
			"idempotency key was already used for a different session")
	}
	return existing, nil
}

func (b *Broker) activeAgent(ctx context.Context, name string) (*domain.AgentRecord, error) {
	agent, err := b.agents.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if !agent.Active {
		return nil, domain.NewError(domain.CodeInactiveAgent, "agent %q is inactive", name)
	}
	return agent, nil
}

func (b *Broker) load(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := b.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, domain.Internal("failed to get session", err)
	}
	if s == nil {
		return nil, domain.NewError(domain.CodeUnknownSession, "session %q not found", sessionID)
	}
	return s, nil
}

// GetStatus returns the session after applying the expiration sweep.
func (b *Broker) GetStatus(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := b.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s, _, err = b.expire(ctx, s)
	return s, err
}

// UpdateRequest moves a session to Status. Context, when non-nil, replaces
// the session context as part of the same write.
type UpdateRequest struct {
	Status          domain.SessionStatus
	ExpectedVersion int64
	Context         domain.SessionContext
	Reason          string
}

// Update applies one state-machine transition. An expired session is failed
// by the sweep first and then rejects the transition.
func (b *Broker) Update(ctx context.Context, sessionID string, req UpdateRequest) (*domain.Session, error) {
	if !req.Status.Valid() {
		return nil, domain.FieldError("status", "unknown session status %q", req.Status)
	}
	if req.Context != nil {
		if err := validation.Context("context", req.Context); err != nil {
			return nil, err
		}
	}
	if len(req.Reason) > maxReasonLength {
		return nil, domain.FieldError("reason", "must be at most %d characters", maxReasonLength)
	}

	s, err := b.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s, swept, err := b.expire(ctx, s)
	if err != nil {
		return nil, err
	}
	if swept {
		return nil, domain.NewError(domain.CodeInvalidTransition,
			"session %q expired and was failed; cannot move to %s", sessionID, req.Status)
	}
	if s.Version != req.ExpectedVersion {
		return nil, domain.NewError(domain.CodeStaleState,
			"session %q is at version %d, not %d", sessionID, s.Version, req.ExpectedVersion)
	}
	if !s.Status.CanTransitionTo(req.Status) {
		return nil, domain.NewError(domain.CodeInvalidTransition,
			"session %q cannot move from %s to %s", sessionID, s.Status, req.Status)
	}

	next := *s
	next.Status = req.Status
	next.Reason = req.Reason
	if req.Context != nil {
		next.Context = req.Context
	}
	return b.write(ctx, s, &next)
}

// Terminate forces a non-terminal session to terminated. A terminal session
// is returned unchanged. With an expected version it makes one attempt and
// fails StaleState on mismatch; without one it retries lost races.
func (b *Broker) Terminate(ctx context.Context, sessionID string, expectedVersion *int64) (*domain.Session, error) {
	attempt := func(ctx context.Context) (*domain.Session, error) {
		s, err := b.load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if expectedVersion != nil && s.Version != *expectedVersion {
			return nil, domain.NewError(domain.CodeStaleState,
				"session %q is at version %d, not %d", sessionID, s.Version, *expectedVersion)
		}
		if s.Status.Terminal() {
			return s, nil
		}
		s, swept, err := b.expire(ctx, s)
		if err != nil || swept {
			return s, err
		}
		next := *s
		next.Status = domain.SessionStatusTerminated
		next.Reason = ""
		return b.write(ctx, s, &next)
	}

	if expectedVersion != nil {
		return attempt(ctx)
	}
	return retry.Do(ctx, b.retry, attempt)
}

// write persists next over current with a compare-and-swap on current's version.
func (b *Broker) write(ctx context.Context, current, next *domain.Session) (*domain.Session, error) {
	next.UpdatedAt = b.now().UTC()
	ok, err := b.store.UpdateSession(ctx, next, current.Version)
	if err != nil {
		return nil, domain.Internal("failed to update session", err)
	}
	if !ok {
		b.metrics.RecordCASConflict(ctx, "session")
		return nil, domain.NewError(domain.CodeStaleState, "session %q was modified concurrently", current.SessionID)
	}
	b.metrics.RecordTransition(ctx, string(current.Status), string(next.Status))
	b.logger.InfoContext(ctx, "session transition",
		"correlation_id", telemetry.CorrelationID(ctx),
		"session_id", next.SessionID,
		"from", current.Status,
		"to", next.Status,
		"version", next.Version,
	)
	return next, nil
}

// List returns sessions newest first, with the expiration sweep applied.
func (b *Broker) List(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.FieldError("status", "unknown session status %q", filter.Status)
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		return nil, domain.FieldError("limit", "must be at most %d", MaxListLimit)
	}
	if filter.Offset < 0 {
		return nil, domain.FieldError("offset", "must not be negative")
	}

	sessions, err := b.store.ListSessions(ctx, filter)
	if err != nil {
		return nil, domain.Internal("failed to list sessions", err)
	}
	out := make([]domain.Session, 0, len(sessions))
	for i := range sessions {
		s, _, err := b.expire(ctx, &sessions[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

// VerifyToken checks a session token and that it still describes its
// session. An expired token also triggers the session's expiration sweep so
// token and row agree.
func (b *Broker) VerifyToken(ctx context.Context, tok string) (*domain.Session, error) {
	claims, err := b.issuer.Verify(tok)
	if err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			if s, loadErr := b.load(ctx, claims.SessionID); loadErr == nil && claims.Matches(s) {
				if _, _, sweepErr := b.expire(ctx, s); sweepErr != nil {
					b.logger.WarnContext(ctx, "expiration sweep on token verification failed",
						"correlation_id", telemetry.CorrelationID(ctx),
						"session_id", s.SessionID,
						"error", sweepErr,
					)
				}
			}
		}
		return nil, err
	}

	s, err := b.load(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSession) {
			return nil, domain.NewError(domain.CodeInvalidSignature, "session token does not match any session")
		}
		return nil, err
	}
	if !claims.Matches(s) {
		return nil, domain.NewError(domain.CodeInvalidSignature, "session token does not match its session")
	}
	s, _, err = b.expire(ctx, s)
	return s, err
}

// Package store defines the storage interface and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/xiaot623/agentdir/internal/domain"
)

// ErrIdempotencyKeyExists is returned by CreateSession when the initiating agent
// already used the idempotency key.
var ErrIdempotencyKeyExists = errors.New("idempotency key already used")

// AgentFilter selects agents for directory listings. Nil/empty fields are unconstrained.
type AgentFilter struct {
	Skill        string // case-insensitive exact-or-prefix
	Protocol     string // case-insensitive exact
	Task         string // case-insensitive exact
	A2ACompliant *bool
	Verified     *bool
	Active       *bool
}

// Store defines the interface for data persistence.
// Get methods return (nil, nil) when the row does not exist.
// Update methods are compare-and-swap on version and report whether the row was written.
type Store interface {
	// Agent operations
	CreateAgent(ctx context.Context, agent *domain.AgentRecord) error
	GetAgent(ctx context.Context, agentName string) (*domain.AgentRecord, error)
	UpdateAgent(ctx context.Context, agent *domain.AgentRecord, expectedVersion int64) (bool, error)
	ListAgents(ctx context.Context, filter AgentFilter, afterName string, limit int) ([]domain.AgentRecord, error)

	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetSessionByIdempotencyKey(ctx context.Context, initiatingAgent, key string) (*domain.Session, error)
	UpdateSession(ctx context.Context, session *domain.Session, expectedVersion int64) (bool, error)
	ListSessions(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error)
	ListExpiredSessions(ctx context.Context, now time.Time, limit int) ([]domain.Session, error)

	// Lifecycle
	Close() error
}

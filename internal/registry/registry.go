// Package registry owns agent identity and capability state.
package registry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/xiaot623/agentdir/internal/domain"
	"github.com/xiaot623/agentdir/internal/repository"
	"github.com/xiaot623/agentdir/internal/retry"
	"github.com/xiaot623/agentdir/internal/telemetry"
	"github.com/xiaot623/agentdir/internal/validation"
)

// Observer is told about every persisted change to an agent.
type Observer func(ctx context.Context, agent domain.AgentRecord)

// Options configures a Registry.
type Options struct {
	Retry   retry.Policy
	Now     func() time.Time
	Metrics *telemetry.Metrics
}

// Registry registers, renews and deactivates agents. Every mutation is a
// compare-and-swap on the record version.
type Registry struct {
	store   store.Store
	retry   retry.Policy
	now     func() time.Time
	metrics *telemetry.Metrics

	mu        sync.RWMutex
	observers []Observer
}

// New creates a Registry over s.
func New(s store.Store, opts Options) *Registry {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	return &Registry{store: s, retry: opts.Retry, now: opts.Now, metrics: opts.Metrics}
}

// Subscribe registers o for change notifications.
func (r *Registry) Subscribe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

func (r *Registry) notify(ctx context.Context, agent *domain.AgentRecord) {
	r.mu.RLock()
	observers := append([]Observer(nil), r.observers...)
	r.mu.RUnlock()
	for _, o := range observers {
		o(ctx, *agent)
	}
}

// Register creates an agent, unverified and active at version 0.
func (r *Registry) Register(ctx context.Context, name, fingerprint string, descriptor domain.Descriptor) (*domain.AgentRecord, error) {
	name = strings.TrimSpace(name)
	if err := validation.AgentName("agentName", name); err != nil {
		return nil, err
	}
	if err := validation.Fingerprint("certificateFingerprint", fingerprint); err != nil {
		return nil, err
	}
	descriptor = descriptor.Normalize()
	if err := validation.Descriptor(descriptor); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	agent := &domain.AgentRecord{
		AgentName:              name,
		CertificateFingerprint: fingerprint,
		Descriptor:             descriptor,
		Verified:               false,
		Active:                 true,
		Version:                0,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := r.store.CreateAgent(ctx, agent); err != nil {
		if errors.Is(err, domain.ErrDuplicateAgent) {
			return nil, err
		}
		return nil, domain.Internal("failed to create agent", err)
	}
	r.notify(ctx, agent)
	return agent, nil
}

// Get returns the agent named name.
func (r *Registry) Get(ctx context.Context, name string) (*domain.AgentRecord, error) {
	agent, err := r.store.GetAgent(ctx, name)
	if err != nil {
		return nil, domain.Internal("failed to get agent", err)
	}
	if agent == nil {
		return nil, domain.NewError(domain.CodeUnknownAgent, "agent %q not found", name)
	}
	return agent, nil
}

// Renew rotates the certificate fingerprint. The new certificate is
// unverified until the verification collaborator confirms it.
func (r *Registry) Renew(ctx context.Context, name, fingerprint string, expectedVersion *int64) (*domain.AgentRecord, error) {
	if err := validation.Fingerprint("certificateFingerprint", fingerprint); err != nil {
		return nil, err
	}
	return r.mutate(ctx, name, expectedVersion, func(a *domain.AgentRecord) bool {
		a.CertificateFingerprint = fingerprint
		a.Verified = false
		return true
	})
}

// Deactivate sets active=false. Deactivating an inactive agent is a no-op.
func (r *Registry) Deactivate(ctx context.Context, name string, expectedVersion *int64) (*domain.AgentRecord, error) {
	return r.mutate(ctx, name, expectedVersion, func(a *domain.AgentRecord) bool {
		if !a.Active {
			return false
		}
		a.Active = false
		return true
	})
}

// SetVerified records the verification collaborator's verdict.
func (r *Registry) SetVerified(ctx context.Context, name string, verified bool, expectedVersion *int64) (*domain.AgentRecord, error) {
	return r.mutate(ctx, name, expectedVersion, func(a *domain.AgentRecord) bool {
		if a.Verified == verified {
			return false
		}
		a.Verified = verified
		return true
	})
}

// mutate applies change to the current record. With an expected version it
// makes a single attempt; without one it re-reads and retries lost races.
// A change that reports false leaves the record and its version untouched.
func (r *Registry) mutate(ctx context.Context, name string, expectedVersion *int64, change func(*domain.AgentRecord) bool) (*domain.AgentRecord, error) {
	attempt := func(ctx context.Context) (*domain.AgentRecord, error) {
		current, err := r.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		next := *current
		if !change(&next) {
			return current, nil
		}
		if expectedVersion != nil && current.Version != *expectedVersion {
			return nil, domain.NewError(domain.CodeStaleState,
				"agent %q is at version %d, not %d", name, current.Version, *expectedVersion)
		}
		next.UpdatedAt = r.now().UTC()
		ok, err := r.store.UpdateAgent(ctx, &next, current.Version)
		if err != nil {
			return nil, domain.Internal("failed to update agent", err)
		}
		if !ok {
			r.metrics.RecordCASConflict(ctx, "agent")
			return nil, domain.NewError(domain.CodeStaleState, "agent %q was modified concurrently", name)
		}
		r.notify(ctx, &next)
		return &next, nil
	}

	if expectedVersion != nil {
		return attempt(ctx)
	}
	return retry.Do(ctx, r.retry, attempt)
}

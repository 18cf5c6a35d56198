package negotiation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/agentdir/internal/directory"
	"github.com/xiaot623/agentdir/internal/domain"
	"github.com/xiaot623/agentdir/internal/registry"
	"github.com/xiaot623/agentdir/internal/retry"
	"github.com/xiaot623/agentdir/tests/helpers"
)

type fixture struct {
	reg    *registry.Registry
	engine *Engine
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	s := helpers.NewTestSQLiteStore(t)
	reg := registry.New(s, registry.Options{
		Retry: retry.Policy{Attempts: 3, BaseDelay: time.Millisecond},
	})
	return &fixture{reg: reg, engine: NewEngine(reg, directory.NewStoreIndex(s, 3), opts)}
}

func (f *fixture) register(t *testing.T, name string, d domain.Descriptor) {
	t.Helper()
	if d.Protocols == nil {
		d.Protocols = []string{"A2A"}
	}
	_, err := f.reg.Register(context.Background(), name, "SHA256:"+name, d)
	require.NoError(t, err)
}

func budget(v int64) *int64 { return &v }

func TestNegotiateExcludesInitiator(t *testing.T) {
	f := newFixture(t, Options{})
	f.register(t, "agent-a.example.com", domain.Descriptor{
		A2ACompliant: true, SupportedTasks: []string{"translate", "summarize"}, NegotiationCapable: true, TokenBudget: 5000,
	})
	f.register(t, "agent-b.example.com", domain.Descriptor{
		A2ACompliant: true, SupportedTasks: []string{"summarize"}, TokenBudget: 2000,
	})

	got, err := f.engine.Negotiate(context.Background(), domain.NegotiationRequest{
		InitiatingAgent: "agent-a.example.com",
		RequestedTask:   "summarize",
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "agent-b.example.com", got[0].AgentName)
	assert.Greater(t, got[0].MatchScore, 0.0)
	assert.Equal(t, []string{"summarize"}, got[0].SupportedTasks)
}

func TestNegotiateKeepsAgentsDifferingOnlyInCase(t *testing.T) {
	f := newFixture(t, Options{})
	f.register(t, "agent-a.example.com", domain.Descriptor{
		A2ACompliant: true, SupportedTasks: []string{"summarize"}, TokenBudget: 1000,
	})
	f.register(t, "Agent-A.example.com", domain.Descriptor{
		A2ACompliant: true, SupportedTasks: []string{"summarize"}, TokenBudget: 1000,
	})

	got, err := f.engine.Negotiate(context.Background(), domain.NegotiationRequest{
		InitiatingAgent: "agent-a.example.com",
		RequestedTask:   "summarize",
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Agent-A.example.com", got[0].AgentName)
}

func TestNegotiateHardGates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.register(t, "initiator.example.com", domain.Descriptor{A2ACompliant: true, SupportedTasks: []string{"plan"}})
	f.register(t, "match.example.com", domain.Descriptor{A2ACompliant: true, SupportedTasks: []string{"Summarize"}})
	f.register(t, "other-task.example.com", domain.Descriptor{A2ACompliant: true, SupportedTasks: []string{"summarize-long"}})
	f.register(t, "not-compliant.example.com", domain.Descriptor{SupportedTasks: []string{"summarize"}})
	f.register(t, "inactive.example.com", domain.Descriptor{A2ACompliant: true, SupportedTasks: []string{"summarize"}})
	_, err := f.reg.Deactivate(ctx, "inactive.example.com", nil)
	require.NoError(t, err)

	got, err := f.engine.Negotiate(ctx, domain.NegotiationRequest{
		InitiatingAgent: "initiator.example.com",
		RequestedTask:   "summarize",
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "match.example.com", got[0].AgentName)

	none, err := f.engine.Negotiate(ctx, domain.NegotiationRequest{
		InitiatingAgent: "initiator.example.com",
		RequestedTask:   "cook",
	})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestNegotiateInitiatorErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	_, err := f.engine.Negotiate(ctx, domain.NegotiationRequest{InitiatingAgent: "ghost.example.com", RequestedTask: "summarize"})
	assert.True(t, errors.Is(err, domain.ErrUnknownAgent))

	f.register(t, "sleepy.example.com", domain.Descriptor{A2ACompliant: true, SupportedTasks: []string{"plan"}})
	_, err = f.reg.Deactivate(ctx, "sleepy.example.com", nil)
	require.NoError(t, err)
	_, err = f.engine.Negotiate(ctx, domain.NegotiationRequest{InitiatingAgent: "sleepy.example.com", RequestedTask: "summarize"})
	assert.True(t, errors.Is(err, domain.ErrInactiveAgent))

	_, err = f.engine.Negotiate(ctx, domain.NegotiationRequest{InitiatingAgent: "sleepy.example.com"})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestNegotiateRankingIsTotalAndDeterministic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.register(t, "initiator.example.com", domain.Descriptor{A2ACompliant: true, SupportedTasks: []string{"plan"}})
	// Same score (budget fit saturates at 1), different budgets.
	f.register(t, "big.example.com", domain.Descriptor{A2ACompliant: true, SupportedTasks: []string{"summarize"}, TokenBudget: 9000})
	f.register(t, "small.example.com", domain.Descriptor{A2ACompliant: true, SupportedTasks: []string{"summarize"}, TokenBudget: 1000})
	// Same score and budget, broken by name.
	f.register(t, "zulu.example.com", domain.Descriptor{A2ACompliant: true, SupportedTasks: []string{"summarize"}, NegotiationCapable: true, TokenBudget: 500})
	f.register(t, "yankee.example.com", domain.Descriptor{A2ACompliant: true, SupportedTasks: []string{"summarize"}, NegotiationCapable: true, TokenBudget: 500})
	// Skill overlap lifts this one.
	f.register(t, "skilled.example.com", domain.Descriptor{
		A2ACompliant: true, SupportedTasks: []string{"summarize"}, NegotiationCapable: true, TokenBudget: 1000,
		Skills: []string{"Legal", "finance"},
	})

	req := domain.NegotiationRequest{
		InitiatingAgent:       "initiator.example.com",
		RequestedTask:         "summarize",
		PreferredCapabilities: domain.PreferredCapabilities{TokenBudget: budget(1000), Skills: []string{"legal", "medical"}},
	}

	first, err := f.engine.Negotiate(ctx, req)
	require.NoError(t, err)

	var order []string
	for _, c := range first {
		order = append(order, c.AgentName)
	}
	assert.Equal(t, []string{
		"skilled.example.com", // 0.5 + 0.2 + 0.2 + 0.05
		"yankee.example.com",  // 0.5 + 0.2 + 0.1
		"zulu.example.com",
		"big.example.com", // 0.5 + 0.2
		"small.example.com",
	}, order)
	assert.InDelta(t, 0.95, first[0].MatchScore, 1e-9)
	assert.InDelta(t, 0.8, first[1].MatchScore, 1e-9)
	assert.InDelta(t, 0.7, first[3].MatchScore, 1e-9)

	for i := 0; i < 5; i++ {
		again, err := f.engine.Negotiate(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNegotiateCapsCandidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{MaxCandidates: 4})
	f.register(t, "initiator.example.com", domain.Descriptor{A2ACompliant: true, SupportedTasks: []string{"plan"}})
	for i := 0; i < 7; i++ {
		f.register(t, fmt.Sprintf("worker-%d.example.com", i), domain.Descriptor{
			A2ACompliant: true, SupportedTasks: []string{"summarize"}, TokenBudget: int64(100 * i),
		})
	}

	got, err := f.engine.Negotiate(ctx, domain.NegotiationRequest{InitiatingAgent: "initiator.example.com", RequestedTask: "summarize"})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "worker-6.example.com", got[0].AgentName)
}

func TestScore(t *testing.T) {
	w := DefaultWeights()
	agent := &domain.AgentRecord{Descriptor: domain.Descriptor{TokenBudget: 0}}
	assert.InDelta(t, 0.5, Score(w, agent, domain.PreferredCapabilities{}), 1e-9, "zero budget contributes nothing")

	agent.Descriptor.TokenBudget = 250
	assert.InDelta(t, 0.55, Score(w, agent, domain.PreferredCapabilities{TokenBudget: budget(1000)}), 1e-9)

	heavy := Weights{Task: 1, Negotiation: 1, Budget: 1, Skill: 1}
	agent.Descriptor.NegotiationCapable = true
	assert.Equal(t, 1.0, Score(heavy, agent, domain.PreferredCapabilities{}), "clamped to 1")
}

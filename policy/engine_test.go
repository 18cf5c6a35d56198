package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/agentdir/internal/domain"
)

func target(capable bool, tasks ...string) *domain.AgentRecord {
	return &domain.AgentRecord{
		AgentName: "agent-b.example.com",
		Active:    true,
		Descriptor: domain.Descriptor{
			NegotiationCapable: capable,
			SupportedTasks:     tasks,
		},
	}
}

func TestDefaultPolicyDecisions(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		name   string
		in     AdmissionInput
		expect string
	}{
		{"negotiation capable", AdmissionInput{Task: "translate", Target: target(true)}, DecisionAllow},
		{"supports task", AdmissionInput{Task: "summarize", Target: target(false, "summarize")}, DecisionAllow},
		{"supports task ignoring case", AdmissionInput{Task: "Summarize", Target: target(false, "summarize")}, DecisionAllow},
		{"neither", AdmissionInput{Task: "translate", Target: target(false, "summarize")}, DecisionNoCapableTarget},
		{"no tasks", AdmissionInput{Task: "translate", Target: target(false)}, DecisionNoCapableTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Evaluate(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestAdmit(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	assert.NoError(t, engine.Admit(ctx, AdmissionInput{Task: "summarize", Target: target(false, "summarize")}))

	err = engine.Admit(ctx, AdmissionInput{Task: "translate", Target: target(false, "summarize")})
	assert.True(t, errors.Is(err, domain.ErrNoCapableTarget))

	_, err = engine.Evaluate(ctx, AdmissionInput{Task: "translate"})
	assert.Error(t, err)
}

func TestNewEngineRejectsBrokenPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package session_admission\n decision = {")
	assert.Error(t, err)
}

package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/rego"

	"github.com/xiaot623/agentdir/internal/domain"
)

// Admission decisions.
const (
	DecisionAllow           = "allow"
	DecisionNoCapableTarget = "no_capable_target"
)

// Engine is the OPA policy engine deciding whether a session may be opened
// against a target agent.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.session_admission.decision"),
		rego.Module("session_admission.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// AdmissionInput is the document the policy sees.
type AdmissionInput struct {
	Task   string
	Target *domain.AgentRecord
}

func (in AdmissionInput) toMap() map[string]interface{} {
	tasks := make([]interface{}, 0, len(in.Target.Descriptor.SupportedTasks))
	for _, t := range in.Target.Descriptor.SupportedTasks {
		tasks = append(tasks, t)
	}
	return map[string]interface{}{
		"task": in.Task,
		"target": map[string]interface{}{
			"name":                in.Target.AgentName,
			"active":              in.Target.Active,
			"verified":            in.Target.Verified,
			"negotiation_capable": in.Target.Descriptor.NegotiationCapable,
			"supported_tasks":     tasks,
		},
	}
}

// Evaluate returns the admission decision for in.
func (e *Engine) Evaluate(ctx context.Context, in AdmissionInput) (string, error) {
	if in.Target == nil {
		return "", fmt.Errorf("admission input has no target")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(in.toMap()))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy defines a default, so an empty result means a broken policy.
		return DecisionNoCapableTarget, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("policy returned %T, want string", results[0].Expressions[0].Value)
}

// Admit evaluates in and turns a refusal into domain.ErrNoCapableTarget.
func (e *Engine) Admit(ctx context.Context, in AdmissionInput) error {
	decision, err := e.Evaluate(ctx, in)
	if err != nil {
		return domain.Internal("admission policy failed", err)
	}
	if strings.EqualFold(decision, DecisionAllow) {
		return nil
	}
	return domain.NewError(domain.CodeNoCapableTarget,
		"agent %q neither negotiates nor supports task %q", in.Target.AgentName, in.Task)
}

// DefaultPolicy admits a target that is negotiation-capable or lists the task.
const DefaultPolicy = `
package session_admission

default decision = "no_capable_target"

decision = "allow" {
	input.target.negotiation_capable
}

decision = "allow" {
	lower(input.target.supported_tasks[_]) == lower(input.task)
}
`

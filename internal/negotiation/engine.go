// Package negotiation ranks the agents able to take a requested task.
//
// Ranking is a pure read over the directory. Each candidate gets
//
//	score = wTask*1 + wNegotiation*[negotiationCapable] + wBudget*budgetFit + wSkill*skillOverlap
//
// clamped to [0,1], where budgetFit = min(1, tokenBudget/max(1, preferred budget))
// and skillOverlap is the share of preferred skills the candidate has. The list
// is ordered by score, then token budget (both descending), then agent name.
package negotiation

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/xiaot623/agentdir/internal/directory"
	"github.com/xiaot623/agentdir/internal/domain"
	"github.com/xiaot623/agentdir/internal/telemetry"
	"github.com/xiaot623/agentdir/internal/validation"
)

// Weights are the scoring weights.
type Weights struct {
	Task        float64
	Negotiation float64
	Budget      float64
	Skill       float64
}

// DefaultWeights returns 0.5/0.2/0.2/0.1.
func DefaultWeights() Weights {
	return Weights{Task: 0.5, Negotiation: 0.2, Budget: 0.2, Skill: 0.1}
}

// AgentSource resolves the initiating agent.
type AgentSource interface {
	Get(ctx context.Context, name string) (*domain.AgentRecord, error)
}

// Options configures an Engine.
type Options struct {
	Weights Weights
	// MaxCandidates caps the result; 0 returns every candidate.
	MaxCandidates int
	Metrics       *telemetry.Metrics
}

// Engine produces deterministic candidate rankings.
type Engine struct {
	agents        AgentSource
	index         directory.Index
	weights       Weights
	maxCandidates int
	metrics       *telemetry.Metrics
}

// NewEngine creates an Engine.
func NewEngine(agents AgentSource, index directory.Index, opts Options) *Engine {
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}
	return &Engine{
		agents:        agents,
		index:         index,
		weights:       opts.Weights,
		maxCandidates: opts.MaxCandidates,
		metrics:       opts.Metrics,
	}
}

// Negotiate ranks the active, A2A-compliant agents that support the requested
// task, excluding the initiating agent. An empty result is not an error.
func (e *Engine) Negotiate(ctx context.Context, req domain.NegotiationRequest) ([]domain.CandidateScore, error) {
	req.RequestedTask = strings.TrimSpace(req.RequestedTask)
	if err := validation.NegotiationRequest(req); err != nil {
		return nil, err
	}

	initiator, err := e.agents.Get(ctx, req.InitiatingAgent)
	if err != nil {
		return nil, err
	}
	if !initiator.Active {
		return nil, domain.NewError(domain.CodeInactiveAgent, "agent %q is inactive", initiator.AgentName)
	}

	active, compliant := true, true
	filter := directory.Filter{
		Task:         req.RequestedTask,
		Active:       &active,
		A2ACompliant: &compliant,
	}

	candidates := []domain.CandidateScore{}
	for agent, err := range e.index.Search(ctx, filter) {
		if err != nil {
			return nil, err
		}
		if agent.AgentName == initiator.AgentName {
			continue
		}
		if !agent.Active || !agent.Descriptor.A2ACompliant || !agent.Descriptor.SupportsTask(req.RequestedTask) {
			continue
		}
		candidates = append(candidates, domain.CandidateScore{
			AgentName:          agent.AgentName,
			MatchScore:         Score(e.weights, &agent, req.PreferredCapabilities),
			SupportedTasks:     agent.Descriptor.SupportedTasks,
			NegotiationCapable: agent.Descriptor.NegotiationCapable,
			TokenBudget:        agent.Descriptor.TokenBudget,
		})
	}

	Rank(candidates)
	if e.maxCandidates > 0 && len(candidates) > e.maxCandidates {
		candidates = candidates[:e.maxCandidates]
	}
	e.metrics.RecordNegotiation(ctx, len(candidates))
	return candidates, nil
}

// Score computes the match score of candidate. The task gate is assumed to
// have passed.
func Score(w Weights, candidate *domain.AgentRecord, pref domain.PreferredCapabilities) float64 {
	negotiation := 0.0
	if candidate.Descriptor.NegotiationCapable {
		negotiation = 1
	}

	preferredBudget := int64(1)
	if pref.TokenBudget != nil && *pref.TokenBudget > 1 {
		preferredBudget = *pref.TokenBudget
	}
	budgetFit := math.Min(1, float64(candidate.Descriptor.TokenBudget)/float64(preferredBudget))

	skillOverlap := 0.0
	if wanted := distinctFold(pref.Skills); len(wanted) > 0 {
		matched := 0
		for _, s := range wanted {
			if candidate.Descriptor.HasSkill(s) {
				matched++
			}
		}
		skillOverlap = float64(matched) / float64(len(wanted))
	}

	score := w.Task*1 + w.Negotiation*negotiation + w.Budget*budgetFit + w.Skill*skillOverlap
	score = math.Max(0, math.Min(1, score))
	// Six decimals keep the wire value stable and free of float noise.
	return math.Round(score*1e6) / 1e6
}

// Rank sorts candidates into their total order.
func Rank(candidates []domain.CandidateScore) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.MatchScore != b.MatchScore {
			return a.MatchScore > b.MatchScore
		}
		if a.TokenBudget != b.TokenBudget {
			return a.TokenBudget > b.TokenBudget
		}
		return a.AgentName < b.AgentName
	})
}

func distinctFold(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

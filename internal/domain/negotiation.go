package domain

// PreferredCapabilities is what the initiating agent would like from a candidate.
// Every field is optional.
type PreferredCapabilities struct {
	TokenBudget *int64   `json:"tokenBudget,omitempty"`
	Skills      []string `json:"skills,omitempty"`
}

// NegotiationRequest asks the directory for agents able to take a task.
type NegotiationRequest struct {
	InitiatingAgent       string                `json:"initiatingAgentName"`
	RequestedTask         string                `json:"requestedTask"`
	Context               SessionContext        `json:"context"`
	PreferredCapabilities PreferredCapabilities `json:"preferredCapabilities"`
}

// CandidateScore is one ranked negotiation result.
type CandidateScore struct {
	AgentName          string   `json:"agentName"`
	MatchScore         float64  `json:"matchScore"`
	SupportedTasks     []string `json:"supportedTasks"`
	NegotiationCapable bool     `json:"negotiationCapable"`
	TokenBudget        int64    `json:"tokenBudget"`
}

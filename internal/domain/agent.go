package domain

import (
	"sort"
	"strings"
	"time"
)

// Descriptor is the capability descriptor an agent registers with.
type Descriptor struct {
	Description        string   `json:"description,omitempty"`
	APIEndpoint        string   `json:"apiEndpoint,omitempty"`
	Skills             []string `json:"skills"`
	Protocols          []string `json:"protocols"`
	A2ACompliant       bool     `json:"a2aCompliant"`
	SupportedTasks     []string `json:"supportedTasks"`
	NegotiationCapable bool     `json:"negotiationCapable"`
	ContextRequired    []string `json:"contextRequired"`
	TokenBudget        int64    `json:"tokenBudget"`
}

// Normalize trims, de-duplicates and sorts the set-valued fields so that
// two descriptors with the same sets compare equal.
func (d Descriptor) Normalize() Descriptor {
	d.Description = strings.TrimSpace(d.Description)
	d.APIEndpoint = strings.TrimSpace(d.APIEndpoint)
	d.Skills = normalizeSet(d.Skills)
	d.Protocols = normalizeSet(d.Protocols)
	d.SupportedTasks = normalizeSet(d.SupportedTasks)
	d.ContextRequired = normalizeSet(d.ContextRequired)
	return d
}

// SupportsTask reports whether task is one of the supported tasks, ignoring case.
func (d Descriptor) SupportsTask(task string) bool {
	return containsFold(d.SupportedTasks, task)
}

// HasSkill reports whether skill is one of the agent's skills, ignoring case.
func (d Descriptor) HasSkill(skill string) bool {
	return containsFold(d.Skills, skill)
}

// AgentRecord is the identity unit of the registry.
type AgentRecord struct {
	AgentName              string     `json:"agentName"`
	CertificateFingerprint string     `json:"certificateFingerprint"`
	Descriptor             Descriptor `json:"descriptor"`
	Verified               bool       `json:"verified"`
	Active                 bool       `json:"active"`
	Version                int64      `json:"version"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

// AgentSummary is the search projection of an AgentRecord.
type AgentSummary struct {
	AgentName    string   `json:"agentName"`
	Description  string   `json:"description,omitempty"`
	APIEndpoint  string   `json:"apiEndpoint,omitempty"`
	Skills       []string `json:"skills"`
	Protocols    []string `json:"protocols"`
	A2ACompliant bool     `json:"a2aCompliant"`
	Verified     bool     `json:"verified"`
	Active       bool     `json:"active"`
}

// Summary projects the record for directory listings.
func (a *AgentRecord) Summary() AgentSummary {
	return AgentSummary{
		AgentName:    a.AgentName,
		Description:  a.Descriptor.Description,
		APIEndpoint:  a.Descriptor.APIEndpoint,
		Skills:       nonNil(a.Descriptor.Skills),
		Protocols:    nonNil(a.Descriptor.Protocols),
		A2ACompliant: a.Descriptor.A2ACompliant,
		Verified:     a.Verified,
		Active:       a.Active,
	}
}

// A2ADescriptor is the negotiation-facing part of a descriptor.
type A2ADescriptor struct {
	AgentName          string   `json:"agentName"`
	SupportedTasks     []string `json:"supportedTasks"`
	NegotiationCapable bool     `json:"negotiationCapable"`
	ContextRequired    []string `json:"contextRequired"`
	TokenBudget        int64    `json:"tokenBudget"`
}

// A2A projects the negotiation parameters of the record.
func (a *AgentRecord) A2A() A2ADescriptor {
	return A2ADescriptor{
		AgentName:          a.AgentName,
		SupportedTasks:     nonNil(a.Descriptor.SupportedTasks),
		NegotiationCapable: a.Descriptor.NegotiationCapable,
		ContextRequired:    nonNil(a.Descriptor.ContextRequired),
		TokenBudget:        a.Descriptor.TokenBudget,
	}
}

func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

package domain

import "time"

// SessionContext carries the task context handed between agents.
// Values are plain strings so the payload stays a closed, size-bounded structure.
type SessionContext map[string]string

// Session is an A2A handoff between an initiating and a target agent.
type Session struct {
	SessionID       string         `json:"sessionId"`
	InitiatingAgent string         `json:"initiatingAgent"`
	TargetAgent     string         `json:"targetAgent"`
	Task            string         `json:"task"`
	Context         SessionContext `json:"context"`
	SessionToken    string         `json:"-"`
	Status          SessionStatus  `json:"status"`
	Reason          string         `json:"reason,omitempty"`
	IdempotencyKey  string         `json:"idempotencyKey,omitempty"`
	Version         int64          `json:"version"`
	ExpiresAt       time.Time      `json:"expiresAt"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Expired reports whether a non-terminal session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.Status.Terminal() && now.After(s.ExpiresAt)
}

// SessionFilter narrows session listings. Empty fields are unconstrained.
type SessionFilter struct {
	InitiatingAgent string
	TargetAgent     string
	Status          SessionStatus
	Limit           int
	Offset          int
}

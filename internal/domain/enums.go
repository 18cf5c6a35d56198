// Package domain defines the core domain models for the agent directory.
package domain

// SessionStatus represents the status of an A2A session.
type SessionStatus string

const (
	SessionStatusInitiated   SessionStatus = "initiated"
	SessionStatusNegotiating SessionStatus = "negotiating"
	SessionStatusActive      SessionStatus = "active"
	SessionStatusCompleted   SessionStatus = "completed"
	SessionStatusFailed      SessionStatus = "failed"
	SessionStatusTerminated  SessionStatus = "terminated"
)

// allowedTransitions is the session state machine. Terminal states have no entry.
var allowedTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusInitiated:   {SessionStatusNegotiating, SessionStatusActive, SessionStatusFailed, SessionStatusTerminated},
	SessionStatusNegotiating: {SessionStatusActive, SessionStatusFailed, SessionStatusTerminated},
	SessionStatusActive:      {SessionStatusCompleted, SessionStatusFailed, SessionStatusTerminated},
}

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusInitiated, SessionStatusNegotiating, SessionStatusActive,
		SessionStatusCompleted, SessionStatusFailed, SessionStatusTerminated:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusTerminated:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllSessionStatuses lists every status in state-machine order.
func AllSessionStatuses() []SessionStatus {
	return []SessionStatus{
		SessionStatusInitiated,
		SessionStatusNegotiating,
		SessionStatusActive,
		SessionStatusCompleted,
		SessionStatusFailed,
		SessionStatusTerminated,
	}
}

// Protocol names accepted in capability descriptors.
const (
	ProtocolREST      = "REST"
	ProtocolGraphQL   = "GraphQL"
	ProtocolA2A       = "A2A"
	ProtocolWebSocket = "WebSocket"
	ProtocolGRPC      = "gRPC"
)

// FailureReasonExpired marks sessions failed by the expiration sweep.
const FailureReasonExpired = "expired"

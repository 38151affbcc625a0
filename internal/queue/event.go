// Package queue defines auth event payloads and moves them over RabbitMQ.
package queue

import "time"

// Event types published by the session service.
const (
	EventLoginSucceeded = "auth.login.succeeded"
	EventLoginFailed    = "auth.login.failed"
	EventRegistered     = "auth.registered"
	EventLogout         = "auth.logout"
	EventRefreshed      = "auth.refreshed"
)

// AuthQueueName is the durable queue every auth event is routed to.
const AuthQueueName = "auth.events"

// AuthEvent is published after a session lifecycle step.  It carries enough
// information for an audit trail without querying the primary database.
type AuthEvent struct {
	Type       string `json:"type"`
	Scheme     string `json:"scheme"` // "cookie" or "legacy"
	UserID     string `json:"user_id,omitempty"`
	BusinessID string `json:"business_id,omitempty"`
	Email      string `json:"email,omitempty"`
	Reason     string `json:"reason,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

// NewAuthEvent stamps an event with the current UTC time.
func NewAuthEvent(typ, scheme string) AuthEvent {
	return AuthEvent{Type: typ, Scheme: scheme, OccurredAt: time.Now().UTC().Format(time.RFC3339)}
}

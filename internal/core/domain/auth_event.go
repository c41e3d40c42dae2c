package domain

import "time"

// AuthEventType names a security-relevant outcome recorded in the audit trail.
type AuthEventType string

const (
	EventRegistered      AuthEventType = "registered"
	EventLoginSucceeded  AuthEventType = "login_succeeded"
	EventLoginFailed     AuthEventType = "login_failed"
	EventLoginThrottled  AuthEventType = "login_throttled"
	EventPasswordChanged AuthEventType = "password_changed"
)

// AuthEvent is a single audit record. IdentityID is empty when the attempt
// could not be tied to a registered identity.
type AuthEvent struct {
	Type       AuthEventType
	IdentityID string
	Email      string
	OccurredAt time.Time
}

// ShardKey returns the value used to keep events for one account ordered.
func (e AuthEvent) ShardKey() string {
	if e.IdentityID != "" {
		return e.IdentityID
	}
	return e.Email
}

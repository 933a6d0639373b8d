package domain

import "time"

// EventType identifies a security event emitted by the request monitor.
type EventType string

const (
	// EventTokenRequestMonitored is recorded for every monitored request.
	EventTokenRequestMonitored EventType = "TOKEN_REQUEST_MONITORED"
	// EventSuspiciousTokenFrequency fires when the short-window threshold
	// is crossed.
	EventSuspiciousTokenFrequency EventType = "SUSPICIOUS_TOKEN_FREQUENCY"
	// EventHighTokenFrequency fires when the long-window threshold is
	// crossed.
	EventHighTokenFrequency EventType = "HIGH_TOKEN_FREQUENCY"
	// EventIntrospectionRequest marks requests against the introspection
	// endpoints.
	EventIntrospectionRequest EventType = "INTROSPECTION_REQUEST"
	// EventClientIdentityUnresolved is recorded when a request carries no
	// client identifier and therefore cannot be tracked.
	EventClientIdentityUnresolved EventType = "CLIENT_IDENTITY_UNRESOLVED"
)

// SecurityEvent is the structured record handed to the log sink for a
// monitored request. Events are advisory; they never block the request.
type SecurityEvent struct {
	CorrelationID string
	Type          EventType
	ClientID      string
	RecentCount   int
	Timestamp     time.Time
	CallerIP      string
	Path          string
	Method        string
}

package domain

import "time"

// Snapshot is an immutable view of the gateway configuration as of a
// single load. Reload replaces whole snapshots; nothing mutates one in
// place after it has been published.
type Snapshot struct {
	// FieldPolicies maps lower-cased field names to the identity tokens
	// (role names and/or client identifiers) allowed to see the field.
	// Fields absent from the map are visible to everyone.
	FieldPolicies map[string][]string
	// ExcludedPaths lists request path prefixes that bypass response
	// filtering entirely.
	ExcludedPaths []string
	// IntrospectionPaths lists path prefixes that are flagged with an
	// INTROSPECTION_REQUEST event by the monitor.
	IntrospectionPaths []string
	Thresholds         Thresholds
	Admission          AdmissionConfig
}

// Thresholds holds the monitoring windows and trip points for the
// sliding-window rate tracker.
type Thresholds struct {
	// Suspicious is the event count within SuspiciousWindow that raises
	// a SUSPICIOUS_TOKEN_FREQUENCY signal.
	Suspicious       int
	SuspiciousWindow time.Duration
	// HighFrequency is the event count within HighFrequencyWindow that
	// raises a HIGH_TOKEN_FREQUENCY signal.
	HighFrequency       int
	HighFrequencyWindow time.Duration
	// Retention is the horizon beyond which recorded timestamps are
	// pruned. It must cover the longest evaluation window.
	Retention time.Duration
	// IdleEviction is how long a client may stay silent before its whole
	// window entry is dropped from the tracker.
	IdleEviction time.Duration
}

// AdmissionConfig controls the optional blocking admission layer. The
// monitor itself never rejects requests; admission control is a separate,
// opt-in concern.
type AdmissionConfig struct {
	Enabled           bool
	RequestsPerSecond int
	BurstSize         int
}

package domain

import "strings"

// Principal is the resolved identity of the caller for the current request.
// It is produced by the upstream authentication stage and treated as
// immutable by the filtering and monitoring layers.
type Principal struct {
	// Roles holds zero or more role claims.
	Roles []string
	// ClientID identifies the calling application. Empty when the
	// authenticator could not resolve one.
	ClientID string
}

// HasRole reports whether the principal carries the given role.
// Comparison is case-insensitive.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Anonymous reports whether the principal carries no identity at all.
func (p Principal) Anonymous() bool {
	return len(p.Roles) == 0 && p.ClientID == ""
}

package policy

import (
	"strings"

	"github.com/veilgate/veilgate/pkg/domain"
)

// Store holds the field visibility table. It is immutable after
// construction and safe for unsynchronized concurrent reads; reloads
// build a fresh Store and swap the reference.
type Store struct {
	fields map[string]map[string]struct{}
}

// NewStore builds a Store from a field -> allowed identity tokens table.
// Field names and tokens are lower-cased so all later comparisons are
// case-insensitive.
func NewStore(policies map[string][]string) *Store {
	fields := make(map[string]map[string]struct{}, len(policies))
	for field, allowed := range policies {
		set := make(map[string]struct{}, len(allowed))
		for _, token := range allowed {
			set[strings.ToLower(token)] = struct{}{}
		}
		fields[strings.ToLower(field)] = set
	}
	return &Store{fields: fields}
}

// FromSnapshot builds a Store from a configuration snapshot.
func FromSnapshot(snap domain.Snapshot) *Store {
	return NewStore(snap.FieldPolicies)
}

// Decide reports whether the principal may see the named field. Fields
// with no policy entry are visible to everyone. Fields with an entry are
// visible only when the principal has at least one allowed role, or its
// client identifier is itself in the allowed set.
func (s *Store) Decide(fieldName string, p domain.Principal) bool {
	allowed, restricted := s.fields[strings.ToLower(fieldName)]
	if !restricted {
		return true
	}
	for _, role := range p.Roles {
		if _, ok := allowed[strings.ToLower(role)]; ok {
			return true
		}
	}
	if p.ClientID != "" {
		if _, ok := allowed[strings.ToLower(p.ClientID)]; ok {
			return true
		}
	}
	return false
}

// Len returns the number of restricted fields. Used by reload logging.
func (s *Store) Len() int {
	return len(s.fields)
}

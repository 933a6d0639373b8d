package redact

import "github.com/veilgate/veilgate/pkg/domain"

// Decider answers whether a principal may see a named field. It is
// implemented by policy.Store.
type Decider interface {
	Decide(fieldName string, p domain.Principal) bool
}

// Engine applies the field visibility rules to structured values. It is
// stateless and safe for concurrent use.
type Engine struct {
	policies Decider
}

// NewEngine builds an Engine over the given decision table.
func NewEngine(policies Decider) *Engine {
	return &Engine{policies: policies}
}

// Filter returns a copy of v with every denied object key removed,
// recursively. The input is never mutated. Arrays are filtered
// element-wise with order and length preserved; only object keys are
// policy targets, so scalars and array containers pass through as-is.
// Filtering an already-filtered value is a no-op.
func (e *Engine) Filter(v Value, p domain.Principal) Value {
	switch v.kind {
	case KindObject:
		members := make([]Member, 0, len(v.obj))
		for _, m := range v.obj {
			if !e.policies.Decide(m.Key, p) {
				continue
			}
			members = append(members, Member{Key: m.Key, Value: e.Filter(m.Value, p)})
		}
		return Value{kind: KindObject, obj: members}
	case KindArray:
		elems := make([]Value, len(v.arr))
		for i, el := range v.arr {
			elems[i] = e.Filter(el, p)
		}
		return Value{kind: KindArray, arr: elems}
	default:
		return v
	}
}

// FilterBytes parses raw JSON, filters it for the principal, and
// re-serializes the result. It also reports how many object fields the
// pass removed. A parse error leaves the caller holding the original
// bytes; nothing is partially written.
func (e *Engine) FilterBytes(data []byte, p domain.Principal) (out []byte, removed int, err error) {
	v, err := Parse(data)
	if err != nil {
		return nil, 0, err
	}
	filtered := e.Filter(v, p)
	return filtered.Encode(), v.FieldCount() - filtered.FieldCount(), nil
}

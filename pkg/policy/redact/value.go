// Package redact filters structured JSON values through the field
// visibility table. Removal is structural: a denied key disappears from
// the output together with its entire subtree, it is not masked.
package redact

import "encoding/json"

// Kind discriminates the variants of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Member is a single key/value pair of an object. Members keep the order
// in which they were encountered during parsing.
type Member struct {
	Key   string
	Value Value
}

// Value is a generic, type-erased JSON value. Numbers are kept as their
// source literals (json.Number) so re-serialization never coerces or
// truncates them.
type Value struct {
	kind Kind
	str  string // string contents, or the number literal
	b    bool
	arr  []Value
	obj  []Member
}

// Null returns the JSON null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a JSON boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a JSON number value holding the given literal.
func Number(lit json.Number) Value { return Value{kind: KindNumber, str: string(lit)} }

// String returns a JSON string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Array returns a JSON array of the given elements.
func Array(elems ...Value) Value { return Value{kind: KindArray, arr: elems} }

// Object returns a JSON object with the given members, in order.
func Object(members ...Member) Value { return Value{kind: KindObject, obj: members} }

// Kind returns the variant of the value.
func (v Value) Kind() Kind { return v.kind }

// BoolVal returns the boolean contents. Valid only for KindBool.
func (v Value) BoolVal() bool { return v.b }

// StringVal returns the string contents. Valid only for KindString.
func (v Value) StringVal() string { return v.str }

// NumberVal returns the number literal. Valid only for KindNumber.
func (v Value) NumberVal() json.Number { return json.Number(v.str) }

// Elems returns the array elements. Valid only for KindArray.
func (v Value) Elems() []Value { return v.arr }

// Members returns the object members in encounter order. Valid only for
// KindObject.
func (v Value) Members() []Member { return v.obj }

// Lookup returns the value of the first member with the given key.
func (v Value) Lookup(key string) (Value, bool) {
	for _, m := range v.obj {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// FieldCount returns the total number of object members in the value,
// counted recursively. The gateway uses the delta between input and
// output to report how many fields a filter pass removed.
func (v Value) FieldCount() int {
	switch v.kind {
	case KindObject:
		n := len(v.obj)
		for _, m := range v.obj {
			n += m.Value.FieldCount()
		}
		return n
	case KindArray:
		n := 0
		for _, e := range v.arr {
			n += e.FieldCount()
		}
		return n
	default:
		return 0
	}
}

// Equal reports deep structural equality, including object member order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber, KindString:
		return v.str == o.str
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for i := range v.obj {
			if v.obj[i].Key != o.obj[i].Key || !v.obj[i].Value.Equal(o.obj[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

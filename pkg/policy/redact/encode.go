package redact

import "encoding/json"

// Encode serializes the value back to compact JSON. Member order,
// original key casing, and number literals survive the round trip.
func (v Value) Encode() []byte {
	return v.appendJSON(make([]byte, 0, 256))
}

func (v Value) appendJSON(dst []byte) []byte {
	switch v.kind {
	case KindNull:
		return append(dst, "null"...)
	case KindBool:
		if v.b {
			return append(dst, "true"...)
		}
		return append(dst, "false"...)
	case KindNumber:
		return append(dst, v.str...)
	case KindString:
		return appendString(dst, v.str)
	case KindArray:
		dst = append(dst, '[')
		for i, e := range v.arr {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = e.appendJSON(dst)
		}
		return append(dst, ']')
	case KindObject:
		dst = append(dst, '{')
		for i, m := range v.obj {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendString(dst, m.Key)
			dst = append(dst, ':')
			dst = m.Value.appendJSON(dst)
		}
		return append(dst, '}')
	default:
		return append(dst, "null"...)
	}
}

func appendString(dst []byte, s string) []byte {
	// encoding/json handles escaping and invalid UTF-8 replacement; a
	// string value on its own can never fail to marshal.
	b, _ := json.Marshal(s)
	return append(dst, b...)
}

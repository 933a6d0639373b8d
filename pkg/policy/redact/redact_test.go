package redact

import (
	"testing"

	"github.com/veilgate/veilgate/pkg/domain"
	"github.com/veilgate/veilgate/pkg/policy"
)

func weatherPolicies() *policy.Store {
	return policy.NewStore(map[string][]string{
		"temperaturec": {"service", "admin"},
		"temperaturef": {"service", "admin"},
		"humidity":     {"service", "admin"},
		"pressure":     {"service", "admin"},
		"internalid":   {"admin"},
		"date":         {"web_user", "mobile_user", "service", "admin"},
		"summary":      {"web_user", "mobile_user", "service", "admin"},
		"location":     {"web_user", "mobile_user", "service", "admin"},
	})
}

func webUser() domain.Principal {
	return domain.Principal{Roles: []string{"web_user"}}
}

func admin() domain.Principal {
	return domain.Principal{Roles: []string{"admin"}}
}

func TestFilterRemovesRestrictedFields(t *testing.T) {
	engine := NewEngine(weatherPolicies())
	input := []byte(`{"date":"2024-01-01","temperatureC":20,"summary":"Mild"}`)

	out, removed, err := engine.FilterBytes(input, webUser())
	if err != nil {
		t.Fatalf("FilterBytes() error = %v", err)
	}
	if want := `{"date":"2024-01-01","summary":"Mild"}`; string(out) != want {
		t.Fatalf("filtered body = %s, want %s", out, want)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
}

func TestFilterAdminSeesEverything(t *testing.T) {
	engine := NewEngine(weatherPolicies())
	input := []byte(`{"date":"2024-01-01","temperatureC":20,"summary":"Mild"}`)

	out, removed, err := engine.FilterBytes(input, admin())
	if err != nil {
		t.Fatalf("FilterBytes() error = %v", err)
	}
	if string(out) != string(input) {
		t.Fatalf("admin body = %s, want unchanged %s", out, input)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
}

func TestFilterArrayElementsIndependently(t *testing.T) {
	engine := NewEngine(weatherPolicies())
	input := []byte(`[` +
		`{"date":"2024-01-01","temperatureC":20,"summary":"Mild"},` +
		`{"date":"2024-01-02","temperatureC":-3,"summary":"Freezing"}]`)

	out, _, err := engine.FilterBytes(input, webUser())
	if err != nil {
		t.Fatalf("FilterBytes() error = %v", err)
	}
	want := `[{"date":"2024-01-01","summary":"Mild"},{"date":"2024-01-02","summary":"Freezing"}]`
	if string(out) != want {
		t.Fatalf("filtered array = %s, want %s", out, want)
	}
}

func TestFilterRemovesWholeSubtree(t *testing.T) {
	engine := NewEngine(weatherPolicies())
	input := []byte(`{"summary":"Mild","internalId":{"station":"042","calibration":[1,2,3]}}`)

	out, removed, err := engine.FilterBytes(input, webUser())
	if err != nil {
		t.Fatalf("FilterBytes() error = %v", err)
	}
	if want := `{"summary":"Mild"}`; string(out) != want {
		t.Fatalf("filtered body = %s, want %s", out, want)
	}
	// The denied key plus both members of its subtree count as removed.
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
}

func TestFilterPreservesOrderCasingAndNumbers(t *testing.T) {
	engine := NewEngine(weatherPolicies())
	input := []byte(`{"zeta":1e-9,"Alpha":9007199254740993,"pi":3.14159265358979,"ok":true,"none":null}`)

	out, _, err := engine.FilterBytes(input, domain.Principal{})
	if err != nil {
		t.Fatalf("FilterBytes() error = %v", err)
	}
	// Unrestricted fields survive byte-for-byte: no key re-casing, no
	// reordering, no float coercion of large integers.
	if string(out) != string(input) {
		t.Fatalf("round trip changed the payload:\n in: %s\nout: %s", input, out)
	}
}

func TestFilterIsIdempotent(t *testing.T) {
	engine := NewEngine(weatherPolicies())
	v, err := Parse([]byte(`{"date":"2024-01-01","temperatureC":20,"items":[{"internalId":"x","summary":"ok"}]}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	p := webUser()
	once := engine.Filter(v, p)
	twice := engine.Filter(once, p)
	if !once.Equal(twice) {
		t.Fatalf("re-filtering changed the value:\nonce:  %s\ntwice: %s", once.Encode(), twice.Encode())
	}
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	engine := NewEngine(weatherPolicies())
	v, err := Parse([]byte(`{"temperatureC":20,"summary":"Mild"}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	before := string(v.Encode())
	_ = engine.Filter(v, webUser())
	if after := string(v.Encode()); after != before {
		t.Fatalf("input mutated: before %s, after %s", before, after)
	}
}

func TestParseRejectsMalformedInput(t *testing.T) {
	cases := []string{
		`{not valid json`,
		``,
		`{"a":1}trailing`,
		`[1,2`,
		`{"a"}`,
	}
	for _, input := range cases {
		if _, err := Parse([]byte(input)); err == nil {
			t.Fatalf("Parse(%q) should fail", input)
		}
	}
}

func TestParseScalarRoots(t *testing.T) {
	cases := map[string]Kind{
		`"hello"`: KindString,
		`42`:      KindNumber,
		`true`:    KindBool,
		`null`:    KindNull,
		`[]`:      KindArray,
		`{}`:      KindObject,
	}
	for input, want := range cases {
		v, err := Parse([]byte(input))
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", input, err)
		}
		if v.Kind() != want {
			t.Fatalf("Parse(%q).Kind() = %d, want %d", input, v.Kind(), want)
		}
		if got := string(v.Encode()); got != input {
			t.Fatalf("Encode(Parse(%q)) = %q", input, got)
		}
	}
}

func TestEncodeEscapesStrings(t *testing.T) {
	v := Object(Member{Key: `quote"key`, Value: String("line\nbreak")})
	want := `{"quote\"key":"line\nbreak"}`
	if got := string(v.Encode()); got != want {
		t.Fatalf("Encode() = %s, want %s", got, want)
	}
}

package gateway

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/veilgate/veilgate/pkg/domain"
	"github.com/veilgate/veilgate/pkg/policy"
)

func testPolicies() *policy.Store {
	return policy.NewStore(map[string][]string{
		"temperaturec": {"service", "admin"},
		"internalid":   {"admin"},
		"date":         {"web_user", "mobile_user", "service", "admin"},
		"summary":      {"web_user", "mobile_user", "service", "admin"},
	})
}

func newTestFilter(t *testing.T) *ResponseFilter {
	t.Helper()
	return NewResponseFilter(FilterConfig{
		Policies:      testPolicies(),
		ExcludedPaths: []string{"/connect/", "/.well-known/", "/swagger"},
		Metrics:       NewMetrics(prometheus.NewRegistry()),
	})
}

func jsonHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	})
}

func authenticatedRequest(path string, p domain.Principal) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	return r.WithContext(WithPrincipal(r.Context(), p))
}

func TestFilterRewritesEligibleResponse(t *testing.T) {
	f := newTestFilter(t)
	body := `{"date":"2024-01-01","temperatureC":20,"summary":"Mild"}`
	handler := f.Wrap(jsonHandler(http.StatusOK, body))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authenticatedRequest("/weather", domain.Principal{Roles: []string{"web_user"}}))

	want := `{"date":"2024-01-01","summary":"Mild"}`
	if rr.Body.String() != want {
		t.Fatalf("body = %s, want %s", rr.Body.String(), want)
	}
	if got := rr.Header().Get("Content-Length"); got != strconv.Itoa(len(want)) {
		t.Fatalf("Content-Length = %s, want %d", got, len(want))
	}
}

func TestFilterAdminResponseUnchanged(t *testing.T) {
	f := newTestFilter(t)
	body := `{"date":"2024-01-01","temperatureC":20,"summary":"Mild"}`
	handler := f.Wrap(jsonHandler(http.StatusOK, body))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authenticatedRequest("/weather", domain.Principal{Roles: []string{"admin"}}))

	if rr.Body.String() != body {
		t.Fatalf("admin body = %s, want %s", rr.Body.String(), body)
	}
}

func TestFilterSkipsUnauthenticatedRequests(t *testing.T) {
	f := newTestFilter(t)
	body := `{"internalId":"secret"}`
	handler := f.Wrap(jsonHandler(http.StatusOK, body))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/weather", nil))

	// No principal resolved: the interceptor never engages.
	if rr.Body.String() != body {
		t.Fatalf("body = %s, want passthrough %s", rr.Body.String(), body)
	}
}

func TestFilterSkipsExcludedPaths(t *testing.T) {
	f := newTestFilter(t)
	body := `{"internalId":"secret"}`
	handler := f.Wrap(jsonHandler(http.StatusOK, body))

	for _, path := range []string{"/connect/token", "/.well-known/openid-configuration", "/swagger/index.html"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, authenticatedRequest(path, domain.Principal{Roles: []string{"web_user"}}))
		if rr.Body.String() != body {
			t.Fatalf("path %s: body = %s, want passthrough", path, rr.Body.String())
		}
	}
}

func TestFilterPassesThroughNonOKStatus(t *testing.T) {
	f := newTestFilter(t)
	body := `{"internalId":"secret","error":"conflict"}`
	handler := f.Wrap(jsonHandler(http.StatusConflict, body))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authenticatedRequest("/weather", domain.Principal{Roles: []string{"web_user"}}))

	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
	if rr.Body.String() != body {
		t.Fatalf("non-200 body = %s, want unchanged", rr.Body.String())
	}
}

func TestFilterPassesThroughNonJSONContentType(t *testing.T) {
	f := newTestFilter(t)
	body := `{"internalId":"secret"}`
	handler := f.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, body)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authenticatedRequest("/weather", domain.Principal{Roles: []string{"web_user"}}))

	if rr.Body.String() != body {
		t.Fatalf("text/plain body = %s, want unchanged", rr.Body.String())
	}
}

func TestFilterMalformedJSONFailsOpen(t *testing.T) {
	f := newTestFilter(t)
	body := `{not valid json`
	handler := f.Wrap(jsonHandler(http.StatusOK, body))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authenticatedRequest("/weather", domain.Principal{Roles: []string{"web_user"}}))

	if rr.Body.String() != body {
		t.Fatalf("malformed body = %q, want byte-for-byte passthrough %q", rr.Body.String(), body)
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestFilterArrayRoot(t *testing.T) {
	f := newTestFilter(t)
	body := `[{"date":"2024-01-01","temperatureC":20,"summary":"Mild"},{"date":"2024-01-02","temperatureC":-3,"summary":"Freezing"}]`
	handler := f.Wrap(jsonHandler(http.StatusOK, body))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authenticatedRequest("/weather", domain.Principal{Roles: []string{"web_user"}}))

	want := `[{"date":"2024-01-01","summary":"Mild"},{"date":"2024-01-02","summary":"Freezing"}]`
	if rr.Body.String() != want {
		t.Fatalf("array body = %s, want %s", rr.Body.String(), want)
	}
}

func TestFilterContentTypeWithCharset(t *testing.T) {
	f := newTestFilter(t)
	handler := f.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		fmt.Fprint(w, `{"internalId":"x","summary":"ok"}`)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authenticatedRequest("/weather", domain.Principal{Roles: []string{"web_user"}}))

	if want := `{"summary":"ok"}`; rr.Body.String() != want {
		t.Fatalf("body = %s, want %s", rr.Body.String(), want)
	}
}

func TestFilterUpdatePolicies(t *testing.T) {
	f := newTestFilter(t)
	body := `{"summary":"Mild"}`
	handler := f.Wrap(jsonHandler(http.StatusOK, body))

	// Tighten the table: summary becomes admin-only.
	f.UpdatePolicies(policy.NewStore(map[string][]string{"summary": {"admin"}}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authenticatedRequest("/weather", domain.Principal{Roles: []string{"web_user"}}))

	if want := `{}`; rr.Body.String() != want {
		t.Fatalf("body after reload = %s, want %s", rr.Body.String(), want)
	}
}

func TestIsJSONContentType(t *testing.T) {
	cases := []struct {
		contentType string
		want        bool
	}{
		{"application/json", true},
		{"application/json; charset=utf8", true},
		{"application/problem+json", true},
		{"text/html", false},
		{"", false},
		{"application/jsonx", false},
	}
	for _, tc := range cases {
		if got := isJSONContentType(tc.contentType); got != tc.want {
			t.Fatalf("isJSONContentType(%q) = %v, want %v", tc.contentType, got, tc.want)
		}
	}
}

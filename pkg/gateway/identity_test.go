package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilgate/veilgate/pkg/domain"
)

func resolvePrincipal(t *testing.T, set func(*http.Request)) (domain.Principal, bool) {
	t.Helper()

	var got domain.Principal
	var ok bool
	handler := HeaderIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = PrincipalFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/weather", nil)
	set(r)
	handler.ServeHTTP(httptest.NewRecorder(), r)
	return got, ok
}

func TestHeaderIdentityResolvesRolesAndClient(t *testing.T) {
	p, ok := resolvePrincipal(t, func(r *http.Request) {
		r.Header.Set(HeaderAuthRoles, "web_user, service")
		r.Header.Set(HeaderAuthClient, "weather-web")
	})

	require.True(t, ok)
	assert.Equal(t, []string{"web_user", "service"}, p.Roles)
	assert.Equal(t, "weather-web", p.ClientID)
}

func TestHeaderIdentityNoClaimsStaysAnonymous(t *testing.T) {
	_, ok := resolvePrincipal(t, func(r *http.Request) {})
	assert.False(t, ok, "no claim headers must not produce a principal")
}

func TestHeaderIdentityIgnoresEmptyClaimSegments(t *testing.T) {
	p, ok := resolvePrincipal(t, func(r *http.Request) {
		r.Header.Set(HeaderAuthRoles, " , admin,, ")
	})

	require.True(t, ok)
	assert.Equal(t, []string{"admin"}, p.Roles)
}

func TestHeaderIdentityClientOnly(t *testing.T) {
	p, ok := resolvePrincipal(t, func(r *http.Request) {
		r.Header.Set(HeaderAuthClient, "batch-importer")
	})

	require.True(t, ok)
	assert.Empty(t, p.Roles)
	assert.Equal(t, "batch-importer", p.ClientID)
}

func TestCallerIP(t *testing.T) {
	cases := []struct {
		name      string
		forwarded string
		remote    string
		want      string
	}{
		{"forwarded single", "203.0.113.7", "10.0.0.1:4444", "203.0.113.7"},
		{"forwarded chain", "203.0.113.7, 10.0.0.1", "10.0.0.2:4444", "203.0.113.7"},
		{"remote addr", "", "192.0.2.9:51234", "192.0.2.9"},
		{"remote addr without port", "", "192.0.2.9", "192.0.2.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			if tc.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			assert.Equal(t, tc.want, callerIP(r))
		})
	}
}

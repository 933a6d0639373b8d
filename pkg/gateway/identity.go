package gateway

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/veilgate/veilgate/pkg/domain"
)

// Headers by which the upstream authenticator forwards resolved claims.
// veilgate never validates tokens itself; it trusts the collaborator that
// terminated them.
const (
	HeaderAuthRoles  = "X-Auth-Roles"
	HeaderAuthClient = "X-Auth-Client"
)

type principalContextKey struct{}

// WithPrincipal returns a context carrying the resolved principal.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal resolved for this request,
// if any.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(domain.Principal)
	return p, ok
}

// HeaderIdentity resolves a principal from the trusted claim headers and
// stores it on the request context. Requests without any claim headers
// pass through unauthenticated.
func HeaderIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := domain.Principal{
			Roles:    splitClaims(r.Header.Get(HeaderAuthRoles)),
			ClientID: strings.TrimSpace(r.Header.Get(HeaderAuthClient)),
		}
		if !p.Anonymous() {
			r = r.WithContext(WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

func splitClaims(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	claims := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			claims = append(claims, trimmed)
		}
	}
	return claims
}

// callerIP extracts the caller address, preferring the first entry of
// X-Forwarded-For when an edge proxy sits in front.
func callerIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

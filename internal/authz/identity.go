// Package authz resolves the acting user's roles against the period closing
// rule table. Role configuration is injected per call so tests can substitute
// roles without process-wide state.
package authz

import (
	"context"
	"net/http"
	"strings"

	"github.com/batasku/periodlock/internal/platform/httpx"
)

// Identity describes the authenticated actor as forwarded by the UI layer.
type Identity struct {
	User  string
	Roles []string
}

// HasRole reports whether the identity carries the named role.
func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity carries at least one of the roles.
func (id Identity) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if id.HasRole(r) {
			return true
		}
	}
	return false
}

type contextKey struct{}

// ContextWithIdentity stores the identity on the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext returns the identity stored on the context, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// IdentityMiddleware extracts the forwarded identity from the X-User and
// X-Roles headers. Authentication itself happens upstream; this subsystem
// only trusts what the gateway forwards.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get("X-User"))
		if user == "" {
			next.ServeHTTP(w, r)
			return
		}
		var roles []string
		for _, raw := range strings.Split(r.Header.Get("X-Roles"), ",") {
			if role := strings.TrimSpace(raw); role != "" {
				roles = append(roles, role)
			}
		}
		ctx := ContextWithIdentity(r.Context(), Identity{User: user, Roles: roles})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireIdentity rejects requests that carry no forwarded identity.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			httpx.Fail(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

package rbac

import (
	"net/http"

	"github.com/opsdesk/opsdesk/internal/observability"
	"github.com/opsdesk/opsdesk/internal/platform/httpx"
	"github.com/opsdesk/opsdesk/internal/shared"
)

// Require enforces a single permission on the routes it wraps. It runs
// after the session gate: a request without an identity in context has
// bypassed the gate and is rejected outright, never trusted.
func Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				observability.RecordAuthzDecision("permission", "deny")
				httpx.Unauthorized(w)
				return
			}
			if !identity.HasPermission(permission) {
				observability.RecordAuthzDecision("permission", "deny")
				httpx.Forbidden(w)
				return
			}
			observability.RecordAuthzDecision("permission", "allow")
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticated passes any request that carries an identity, without
// checking permissions. Definition listings use it: every logged-in
// user may see the catalog, only grants.edit holders may change it.
func Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.IdentityFromContext(r.Context()); !ok {
			observability.RecordAuthzDecision("permission", "deny")
			httpx.Unauthorized(w)
			return
		}
		observability.RecordAuthzDecision("permission", "allow")
		next.ServeHTTP(w, r)
	})
}

// RequireAny passes when the identity holds at least one of the listed
// permissions.
func RequireAny(permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				observability.RecordAuthzDecision("permission", "deny")
				httpx.Unauthorized(w)
				return
			}
			for _, p := range permissions {
				if identity.HasPermission(p) {
					observability.RecordAuthzDecision("permission", "allow")
					next.ServeHTTP(w, r)
					return
				}
			}
			observability.RecordAuthzDecision("permission", "deny")
			httpx.Forbidden(w)
		})
	}
}

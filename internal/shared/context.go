package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// Identity is the resolved actor attached to a request after it has
// passed the session gate: user id plus the point-in-time permission
// snapshot, so downstream handlers never re-resolve.
type Identity struct {
	UserID      int64
	RoleID      int64
	Role        string
	Permissions []string
}

// HasPermission reports membership in the snapshot's effective set.
func (id Identity) HasPermission(name string) bool {
	for _, p := range id.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// ContextWithIdentity stores the resolved identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity set by the session gate.
// The boolean is false for requests that never passed the gate.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

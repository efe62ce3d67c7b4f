package auth

import (
	"context"
	"net/http"
	"strconv"

	"github.com/opsdesk/opsdesk/internal/observability"
	"github.com/opsdesk/opsdesk/internal/platform/httpx"
	"github.com/opsdesk/opsdesk/internal/shared"
)

// SnapshotResolver supplies permission snapshots and the grants epoch.
// Implemented by the rbac service.
type SnapshotResolver interface {
	ResolveSnapshot(ctx context.Context, userID int64) (shared.Snapshot, error)
	Epoch(ctx context.Context) (int64, error)
}

// Gate is the session gate guarding every protected route. Any state it
// cannot positively validate yields the same fixed 401: a missing
// session, an unparseable user id, a failed lookup and a deactivated
// account are indistinguishable from outside.
type Gate struct {
	users    *Service
	resolver SnapshotResolver
	sessions *shared.SessionManager
}

// NewGate constructs a Gate.
func NewGate(users *Service, resolver SnapshotResolver, sessions *shared.SessionManager) *Gate {
	return &Gate{users: users, resolver: resolver, sessions: sessions}
}

// RequireUser admits only requests carrying a valid authenticated
// session. The account's active flag is read per request, not from the
// session, so deactivation takes effect on the next request. When the
// grants epoch has moved past the session's snapshot the snapshot is
// re-resolved before the request proceeds.
func (g *Gate) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess := shared.SessionFromContext(ctx)
		if sess == nil || sess.User() == "" {
			g.deny(w)
			return
		}
		userID, err := strconv.ParseInt(sess.User(), 10, 64)
		if err != nil || userID <= 0 {
			g.deny(w)
			return
		}
		user, err := g.users.UserByID(ctx, userID)
		if err != nil {
			g.deny(w)
			return
		}
		if !user.IsActive {
			g.sessions.Destroy(sess)
			g.deny(w)
			return
		}

		snap := sess.Snapshot()
		epoch, err := g.resolver.Epoch(ctx)
		if err != nil {
			g.deny(w)
			return
		}
		if snap.Epoch < epoch {
			snap, err = g.resolver.ResolveSnapshot(ctx, userID)
			if err != nil {
				g.deny(w)
				return
			}
			sess.SetSnapshot(snap)
		}

		observability.RecordAuthzDecision("session", "allow")
		identity := shared.Identity{
			UserID:      userID,
			RoleID:      snap.RoleID,
			Role:        snap.Role,
			Permissions: snap.Permissions,
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(ctx, identity)))
	})
}

func (g *Gate) deny(w http.ResponseWriter) {
	observability.RecordAuthzDecision("session", "deny")
	httpx.Unauthorized(w)
}

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/opsdesk/internal/shared"
)

func (f *authFixture) protectedEcho(t *testing.T) http.Handler {
	t.Helper()
	return f.withSession(t, f.gate.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := shared.IdentityFromContext(r.Context())
		require.True(t, ok)
		w.Header().Set("X-Test-Role", identity.Role)
		for _, p := range identity.Permissions {
			w.Header().Add("X-Test-Permission", p)
		}
		w.WriteHeader(http.StatusOK)
	})))
}

func TestGateRejectsWithoutCookie(t *testing.T) {
	f := newAuthFixture(t)
	rec := httptest.NewRecorder()
	f.protectedEcho(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/papers", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateRejectsUnknownSessionID(t *testing.T) {
	f := newAuthFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/papers", nil)
	req.AddCookie(&http.Cookie{Name: "opsdesk_session", Value: "never-issued"})
	rec := httptest.NewRecorder()
	f.protectedEcho(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateRejectsWhenUserVanishes(t *testing.T) {
	f := newAuthFixture(t)
	f.addUser(t, 7, "clerk@example.com", "s3cret", true)
	f.resolver.snaps[7] = shared.Snapshot{RoleID: 2, Role: "clerk"}

	rec := f.login(t, "clerk@example.com", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)

	delete(f.repo.users, 7)

	req := httptest.NewRequest(http.MethodGet, "/papers", nil)
	req.AddCookie(cookie)
	out := httptest.NewRecorder()
	f.protectedEcho(t).ServeHTTP(out, req)
	assert.Equal(t, http.StatusUnauthorized, out.Code)
}

func TestGateDeactivationTakesEffectNextRequest(t *testing.T) {
	f := newAuthFixture(t)
	f.addUser(t, 7, "clerk@example.com", "s3cret", true)
	f.resolver.snaps[7] = shared.Snapshot{RoleID: 2, Role: "clerk", Permissions: []string{"papers.view"}}

	rec := f.login(t, "clerk@example.com", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)

	// session still validates while the account is active
	req := httptest.NewRequest(http.MethodGet, "/papers", nil)
	req.AddCookie(cookie)
	out := httptest.NewRecorder()
	f.protectedEcho(t).ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)

	u := f.repo.users[7]
	u.IsActive = false
	f.repo.users[7] = u

	req = httptest.NewRequest(http.MethodGet, "/papers", nil)
	req.AddCookie(cookie)
	out = httptest.NewRecorder()
	f.protectedEcho(t).ServeHTTP(out, req)
	assert.Equal(t, http.StatusUnauthorized, out.Code)
}

func TestGateRefreshesStaleSnapshot(t *testing.T) {
	f := newAuthFixture(t)
	f.addUser(t, 7, "clerk@example.com", "s3cret", true)
	f.resolver.snaps[7] = shared.Snapshot{RoleID: 2, Role: "clerk", Permissions: []string{"papers.view"}}

	rec := f.login(t, "clerk@example.com", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)

	// a grant mutation lands: epoch moves, effective set grows
	f.resolver.mu.Lock()
	f.resolver.snaps[7] = shared.Snapshot{RoleID: 2, Role: "clerk", Permissions: []string{"papers.edit", "papers.view"}}
	f.resolver.mu.Unlock()
	f.resolver.bump()

	req := httptest.NewRequest(http.MethodGet, "/papers", nil)
	req.AddCookie(cookie)
	out := httptest.NewRecorder()
	f.protectedEcho(t).ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)
	assert.Equal(t, []string{"papers.edit", "papers.view"}, out.Header().Values("X-Test-Permission"))
}

func TestGateUnauthorizedBodyIsConstant(t *testing.T) {
	f := newAuthFixture(t)

	noCookie := httptest.NewRecorder()
	f.protectedEcho(t).ServeHTTP(noCookie, httptest.NewRequest(http.MethodGet, "/papers", nil))

	badCookie := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/papers", nil)
	req.AddCookie(&http.Cookie{Name: "opsdesk_session", Value: "never-issued"})
	f.protectedEcho(t).ServeHTTP(badCookie, req)

	assert.Equal(t, noCookie.Body.String(), badCookie.Body.String())
}

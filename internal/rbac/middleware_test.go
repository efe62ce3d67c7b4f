package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opsdesk/opsdesk/internal/shared"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestWithIdentity(identity shared.Identity) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/papers", nil)
	return r.WithContext(shared.ContextWithIdentity(r.Context(), identity))
}

func TestRequireAllows(t *testing.T) {
	h := Require(PermPapersView)(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestWithIdentity(shared.Identity{
		UserID:      7,
		Role:        "clerk",
		Permissions: []string{PermPapersView},
	}))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireDeniesMissingPermission(t *testing.T) {
	h := Require(PermPapersEdit)(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestWithIdentity(shared.Identity{
		UserID:      7,
		Role:        "clerk",
		Permissions: []string{PermPapersView},
	}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireDeniesWithoutIdentity(t *testing.T) {
	h := Require(PermPapersView)(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/papers", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticated(t *testing.T) {
	h := Authenticated(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestWithIdentity(shared.Identity{UserID: 7, Role: "clerk"}))
	assert.Equal(t, http.StatusOK, rec.Code, "identity alone suffices, no permission needed")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/papers", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAny(t *testing.T) {
	h := RequireAny(PermPapersEdit, PermPapersView)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestWithIdentity(shared.Identity{
		UserID:      7,
		Permissions: []string{PermPapersView},
	}))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, requestWithIdentity(shared.Identity{
		UserID:      7,
		Permissions: []string{PermUsersView},
	}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

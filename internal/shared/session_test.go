package shared

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/opsdesk/internal/secretbox"
)

func newTestManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	codec, err := secretbox.New(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	return NewSessionManager(client, codec, "opsdesk_session", time.Hour, false, http.SameSiteLaxMode), mr
}

func commitAndCookie(t *testing.T, sm *SessionManager, sess *Session) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, sm.Commit(context.Background(), rec, req, sess))
	for _, c := range rec.Result().Cookies() {
		if c.Name == sm.CookieName() {
			return c
		}
	}
	return nil
}

func TestSessionRoundTrip(t *testing.T) {
	sm, _ := newTestManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	sess.SetUser("7")
	sess.SetSnapshot(Snapshot{RoleID: 2, Role: "clerk", Permissions: []string{"papers.view"}, Epoch: 3})
	sess.Set("csrf_token", "tok")

	cookie := commitAndCookie(t, sm, sess)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(cookie)
	loaded, err := sm.Load(context.Background(), req2)
	require.NoError(t, err)
	assert.Equal(t, "7", loaded.User())
	assert.Equal(t, "tok", loaded.Get("csrf_token"))
	snap := loaded.Snapshot()
	assert.Equal(t, "clerk", snap.Role)
	assert.Equal(t, int64(3), snap.Epoch)
	assert.True(t, snap.Has("papers.view"))
	assert.False(t, snap.Has("papers.edit"))
}

func TestStoredPayloadIsSealed(t *testing.T) {
	sm, mr := newTestManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	sess.SetUser("7")
	commitAndCookie(t, sm, sess)

	raw, err := mr.Get("session:" + sess.ID)
	require.NoError(t, err)
	assert.NotContains(t, raw, "user_id")
	assert.NotContains(t, raw, "snapshot")
}

func TestTamperedPayloadYieldsFreshSession(t *testing.T) {
	sm, mr := newTestManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	sess.SetUser("7")
	cookie := commitAndCookie(t, sm, sess)

	require.NoError(t, mr.Set("session:"+sess.ID, "garbage-not-a-ciphertext"))

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(cookie)
	loaded, err := sm.Load(context.Background(), req2)
	require.NoError(t, err)
	assert.Empty(t, loaded.User())
}

func TestRotateInvalidatesOldID(t *testing.T) {
	sm, mr := newTestManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	sess.SetUser("7")
	commitAndCookie(t, sm, sess)
	oldID := sess.ID

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: oldID})
	loaded, err := sm.Load(context.Background(), req2)
	require.NoError(t, err)
	loaded.Rotate()
	commitAndCookie(t, sm, loaded)

	assert.NotEqual(t, oldID, loaded.ID)
	assert.False(t, mr.Exists("session:"+oldID))
	assert.True(t, mr.Exists("session:"+loaded.ID))
}

func TestDestroyRemovesSessionAndClearsCookie(t *testing.T) {
	sm, mr := newTestManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	sess.SetUser("7")
	commitAndCookie(t, sm, sess)
	require.True(t, mr.Exists("session:"+sess.ID))

	sm.Destroy(sess)
	cookie := commitAndCookie(t, sm, sess)
	require.NotNil(t, cookie)
	assert.Less(t, cookie.MaxAge, 0)
	assert.False(t, mr.Exists("session:"+sess.ID))
}

func TestDeleteByID(t *testing.T) {
	sm, mr := newTestManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	sess.SetUser("7")
	commitAndCookie(t, sm, sess)

	require.NoError(t, sm.DeleteByID(context.Background(), sess.ID))
	assert.False(t, mr.Exists("session:"+sess.ID))
	// deleting an absent session is a no-op
	assert.NoError(t, sm.DeleteByID(context.Background(), "missing"))
}

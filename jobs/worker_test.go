package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/opsdesk/internal/auth"
	"github.com/opsdesk/opsdesk/internal/secretbox"
	"github.com/opsdesk/opsdesk/internal/shared"
)

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]auth.SessionRecord
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]auth.SessionRecord)}
}

func (m *memSessionRepo) FindByEmail(context.Context, string) (auth.User, error) {
	return auth.User{}, shared.ErrNotFound
}

func (m *memSessionRepo) FindByID(context.Context, int64) (auth.User, error) {
	return auth.User{}, shared.ErrNotFound
}

func (m *memSessionRepo) RegisterSession(_ context.Context, rec auth.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[rec.ID] = rec
	return nil
}

func (m *memSessionRepo) RemoveSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *memSessionRepo) SessionsForUser(_ context.Context, userID int64) ([]auth.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auth.SessionRecord
	for _, rec := range m.sessions {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memSessionRepo) DeleteExpiredSessions(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.sessions {
		if rec.ExpiresAt.Before(before) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

var _ auth.RepositoryPort = (*memSessionRepo)(nil)

func TestDeactivationSweepRemovesSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	codec, err := secretbox.New(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	sessions := shared.NewSessionManager(client, codec, "opsdesk_session", time.Hour, false, http.SameSiteLaxMode)

	repo := newMemSessionRepo()
	require.NoError(t, repo.RegisterSession(context.Background(), auth.SessionRecord{ID: "sess-a", UserID: 7, ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, repo.RegisterSession(context.Background(), auth.SessionRecord{ID: "sess-b", UserID: 7, ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, repo.RegisterSession(context.Background(), auth.SessionRecord{ID: "sess-other", UserID: 8, ExpiresAt: time.Now().Add(time.Hour)}))

	require.NoError(t, mr.Set("session:sess-a", "sealed"))
	require.NoError(t, mr.Set("session:sess-b", "sealed"))
	require.NoError(t, mr.Set("session:sess-other", "sealed"))

	payload, err := json.Marshal(DeactivationSweepPayload{UserID: 7})
	require.NoError(t, err)
	handler := handleDeactivationSweep(repo, sessions, slog.Default())
	require.NoError(t, handler(context.Background(), asynq.NewTask(TaskTypeDeactivationSweep, payload)))

	assert.False(t, mr.Exists("session:sess-a"))
	assert.False(t, mr.Exists("session:sess-b"))
	assert.True(t, mr.Exists("session:sess-other"))

	left, err := repo.SessionsForUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestDeactivationSweepRejectsBadPayload(t *testing.T) {
	handler := handleDeactivationSweep(newMemSessionRepo(), nil, slog.Default())
	err := handler(context.Background(), asynq.NewTask(TaskTypeDeactivationSweep, []byte("{")))
	assert.Error(t, err)
}

func TestSessionPurgeDropsExpiredRows(t *testing.T) {
	repo := newMemSessionRepo()
	require.NoError(t, repo.RegisterSession(context.Background(), auth.SessionRecord{ID: "old", UserID: 7, ExpiresAt: time.Now().Add(-time.Hour)}))
	require.NoError(t, repo.RegisterSession(context.Background(), auth.SessionRecord{ID: "live", UserID: 7, ExpiresAt: time.Now().Add(time.Hour)}))

	handler := handleSessionPurge(repo, slog.Default())
	require.NoError(t, handler(context.Background(), asynq.NewTask(TaskTypeSessionPurge, nil)))

	recs, err := repo.SessionsForUser(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "live", recs[0].ID)
}

package users

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/opsdesk/opsdesk/internal/platform/httpx"
)

type stubRepo struct {
	nextID int64
	users  map[int64]User
	hashes map[int64]string
}

func newStubRepo() *stubRepo {
	return &stubRepo{nextID: 1, users: make(map[int64]User), hashes: make(map[int64]string)}
}

func (s *stubRepo) List(context.Context) ([]User, error) {
	var out []User
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *stubRepo) Create(_ context.Context, email, fullName, passwordHash string, roleID int64) (User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return User{}, httpx.ErrDuplicate
		}
	}
	u := User{ID: s.nextID, Email: email, FullName: fullName, RoleID: roleID, IsActive: true, CreatedAt: time.Now()}
	s.users[u.ID] = u
	s.hashes[u.ID] = passwordHash
	s.nextID++
	return u, nil
}

func (s *stubRepo) SetActive(_ context.Context, id int64, active bool) error {
	u, ok := s.users[id]
	if !ok {
		return httpx.ErrNotFound
	}
	u.IsActive = active
	s.users[id] = u
	return nil
}

func (s *stubRepo) AssignRole(_ context.Context, id, roleID int64) error {
	u, ok := s.users[id]
	if !ok {
		return httpx.ErrNotFound
	}
	u.RoleID = roleID
	s.users[id] = u
	return nil
}

var _ RepositoryPort = (*stubRepo)(nil)

type recordingSweeper struct {
	swept []int64
}

func (r *recordingSweeper) EnqueueDeactivationSweep(_ context.Context, userID int64) error {
	r.swept = append(r.swept, userID)
	return nil
}

type countingBumper struct {
	n int64
}

func (b *countingBumper) Bump(context.Context) (int64, error) {
	b.n++
	return b.n, nil
}

func TestCreateHashesPasswordAndNormalizesEmail(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil, nil, nil, slog.Default())

	user, err := svc.Create(context.Background(), 1, "  Clerk@Example.COM ", "Test Clerk", "s3cretpass", 2)
	require.NoError(t, err)
	assert.Equal(t, "clerk@example.com", user.Email)

	hash := repo.hashes[user.ID]
	require.NotEmpty(t, hash)
	assert.NotEqual(t, "s3cretpass", hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cretpass")))
}

func TestCreateDuplicateEmail(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil, nil, nil, slog.Default())

	_, err := svc.Create(context.Background(), 1, "clerk@example.com", "A", "s3cretpass", 2)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), 1, "CLERK@example.com", "B", "s3cretpass", 2)
	assert.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestDeactivateEnqueuesSweep(t *testing.T) {
	repo := newStubRepo()
	sweeper := &recordingSweeper{}
	svc := NewService(repo, sweeper, nil, nil, slog.Default())

	user, err := svc.Create(context.Background(), 1, "clerk@example.com", "A", "s3cretpass", 2)
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), 1, user.ID))
	assert.False(t, repo.users[user.ID].IsActive)
	assert.Equal(t, []int64{user.ID}, sweeper.swept)
}

func TestDeactivateUnknownUser(t *testing.T) {
	svc := NewService(newStubRepo(), &recordingSweeper{}, nil, nil, slog.Default())
	err := svc.Deactivate(context.Background(), 1, 999)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestAssignRoleBumpsEpoch(t *testing.T) {
	repo := newStubRepo()
	bumper := &countingBumper{}
	svc := NewService(repo, nil, bumper, nil, slog.Default())

	user, err := svc.Create(context.Background(), 1, "clerk@example.com", "A", "s3cretpass", 2)
	require.NoError(t, err)

	require.NoError(t, svc.AssignRole(context.Background(), 1, user.ID, 3))
	assert.Equal(t, int64(3), repo.users[user.ID].RoleID)
	assert.Equal(t, int64(1), bumper.n)
}

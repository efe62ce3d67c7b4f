package papers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/opsdesk/internal/platform/httpx"
	"github.com/opsdesk/opsdesk/internal/rbac"
	"github.com/opsdesk/opsdesk/internal/shared"
)

type stubRepo struct {
	nextID int64
	items  map[int64]Paper
}

func newStubRepo() *stubRepo {
	return &stubRepo{nextID: 1, items: make(map[int64]Paper)}
}

func (s *stubRepo) List(context.Context) ([]Paper, error) {
	var out []Paper
	for _, p := range s.items {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubRepo) Get(_ context.Context, id int64) (Paper, error) {
	p, ok := s.items[id]
	if !ok {
		return Paper{}, httpx.ErrNotFound
	}
	return p, nil
}

func (s *stubRepo) Create(_ context.Context, p Paper) (Paper, error) {
	p.ID = s.nextID
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	s.items[p.ID] = p
	s.nextID++
	return p, nil
}

func (s *stubRepo) UpdateStatus(_ context.Context, id int64, status string) error {
	p, ok := s.items[id]
	if !ok {
		return httpx.ErrNotFound
	}
	p.Status = status
	s.items[id] = p
	return nil
}

var _ RepositoryPort = (*stubRepo)(nil)

func newTestHandler() (http.Handler, *stubRepo) {
	repo := newStubRepo()
	svc := NewService(repo, slog.Default())
	return NewHandler(svc, validator.New()).Routes(), repo
}

func do(h http.Handler, method, path, body string, identity *shared.Identity) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if identity != nil {
		req = req.WithContext(shared.ContextWithIdentity(req.Context(), *identity))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func viewer() *shared.Identity {
	return &shared.Identity{UserID: 7, Role: "clerk", Permissions: []string{rbac.PermPapersView}}
}

func editor() *shared.Identity {
	return &shared.Identity{UserID: 8, Role: "manager", Permissions: []string{rbac.PermPapersView, rbac.PermPapersEdit}}
}

func TestListRequiresView(t *testing.T) {
	h, _ := newTestHandler()

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/", "", nil).Code)

	noPerms := &shared.Identity{UserID: 9, Role: "guest"}
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodGet, "/", "", noPerms).Code)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/", "", viewer()).Code)
}

func TestCreateRequiresEdit(t *testing.T) {
	h, repo := newTestHandler()
	body := `{"title":"Q3 invoice batch","reference":"INV-2031"}`

	assert.Equal(t, http.StatusForbidden, do(h, http.MethodPost, "/", body, viewer()).Code)
	assert.Empty(t, repo.items)

	rec := do(h, http.MethodPost, "/", body, editor())
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, repo.items, 1)
	assert.Equal(t, int64(8), repo.items[1].OwnerID)
	assert.Equal(t, "draft", repo.items[1].Status)
}

func TestUpdateStatus(t *testing.T) {
	h, repo := newTestHandler()
	repo.items[1] = Paper{ID: 1, Title: "T", Reference: "R", Status: "draft", OwnerID: 8}
	repo.nextID = 2

	rec := do(h, http.MethodPut, "/1/status", `{"status":"submitted"}`, editor())
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "submitted", repo.items[1].Status)

	rec = do(h, http.MethodPut, "/1/status", `{"status":"bogus"}`, editor())
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(h, http.MethodPut, "/99/status", `{"status":"approved"}`, editor())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetUnknownPaper(t *testing.T) {
	h, _ := newTestHandler()
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/42", "", viewer()).Code)
}

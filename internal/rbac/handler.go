package rbac

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opsdesk/opsdesk/internal/platform/httpx"
	"github.com/opsdesk/opsdesk/internal/shared"
)

// Handler exposes grant administration over HTTP.
type Handler struct {
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the rbac endpoints. Read endpoints are open to any
// authenticated user; every mutation sits behind grants.edit.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(Authenticated)
		r.Get("/permissions", h.listPermissions)
		r.Get("/roles", h.listRoles)
		r.Get("/users/{id}/permissions", h.userPermissions)
	})

	r.Group(func(r chi.Router) {
		r.Use(Require(PermGrantsEdit))
		r.Post("/roles/{id}/permissions/{name}", h.grantRole)
		r.Delete("/roles/{id}/permissions/{name}", h.revokeRole)
		r.Post("/users/{id}/permissions/{name}", h.grantUser)
		r.Delete("/users/{id}/permissions/{name}", h.revokeUser)
	})

	return r
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(perms))
	for _, p := range perms {
		out = append(out, map[string]any{"id": p.ID, "name": p.Name, "description": p.Description})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roleList, err := h.service.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(roleList))
	for _, role := range roleList {
		out = append(out, map[string]any{"id": role.ID, "name": role.Name, "description": role.Description})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	perms, err := h.service.EffectivePermissions(r.Context(), userID)
	if err != nil {
		respondGrantError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "permissions": perms})
}

func (h *Handler) grantRole(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(actorID, roleID int64, perm string) error {
		return h.service.GrantRoleLevel(r.Context(), actorID, roleID, perm)
	})
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(actorID, roleID int64, perm string) error {
		return h.service.RevokeRoleLevel(r.Context(), actorID, roleID, perm)
	})
}

func (h *Handler) grantUser(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(actorID, userID int64, perm string) error {
		return h.service.GrantUserLevel(r.Context(), actorID, userID, perm)
	})
}

func (h *Handler) revokeUser(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(actorID, userID int64, perm string) error {
		return h.service.RevokeUserLevel(r.Context(), actorID, userID, perm)
	})
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op func(actorID, subjectID int64, perm string) error) {
	subjectID, ok := pathID(w, r)
	if !ok {
		return
	}
	perm := chi.URLParam(r, "name")
	if perm == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "missing permission name")
		return
	}
	identity, _ := shared.IdentityFromContext(r.Context())
	if err := op(identity.UserID, subjectID, perm); err != nil {
		respondGrantError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return 0, false
	}
	return id, true
}

func respondGrantError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownUser), errors.Is(err, ErrUnknownRole):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrUnknownPermission):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

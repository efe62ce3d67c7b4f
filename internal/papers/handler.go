package papers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/opsdesk/opsdesk/internal/platform/httpx"
	"github.com/opsdesk/opsdesk/internal/rbac"
	"github.com/opsdesk/opsdesk/internal/shared"
)

// Handler exposes paper management over HTTP.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(service *Service, validate *validator.Validate) *Handler {
	return &Handler{service: service, validate: validate}
}

// Routes mounts the paper endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(rbac.Require(rbac.PermPapersView))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(rbac.Require(rbac.PermPapersEdit))
		r.Post("/", h.create)
		r.Put("/{id}/status", h.updateStatus)
	})
	return r
}

type createPaperRequest struct {
	Title     string `json:"title" validate:"required,min=1,max=256"`
	Reference string `json:"reference" validate:"required,min=1,max=64"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft submitted approved archived"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Paper{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"papers": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	paper, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, paper)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPaperRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	identity, _ := shared.IdentityFromContext(r.Context())
	paper, err := h.service.Create(r.Context(), identity.UserID, req.Title, req.Reference)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, paper)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UpdateStatus(r.Context(), id, req.Status); err != nil {
		httpx.RespondError(w, err)
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

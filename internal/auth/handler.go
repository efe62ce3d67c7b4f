package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/opsdesk/opsdesk/internal/platform/httpx"
	"github.com/opsdesk/opsdesk/internal/shared"
)

// Handler exposes login, logout and the identity endpoint.
type Handler struct {
	service  *Service
	resolver SnapshotResolver
	sessions *shared.SessionManager
	csrf     *shared.CSRFManager
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service *Service, resolver SnapshotResolver, sessions *shared.SessionManager, csrf *shared.CSRFManager, validate *validator.Validate, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		resolver: resolver,
		sessions: sessions,
		csrf:     csrf,
		validate: validate,
		logger:   logger,
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login authenticates credentials and upgrades the request session. The
// session id is rotated so an id handed out before authentication never
// names an authenticated session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Unauthorized(w)
			return
		}
		h.logger.Error("authenticate", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	sess.Rotate()
	sess.SetUser(strconv.FormatInt(user.ID, 10))

	snap, err := h.resolver.ResolveSnapshot(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("resolve snapshot", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	sess.SetSnapshot(snap)

	token, err := h.csrf.EnsureToken(r.Context(), sess)
	if err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}

	h.service.RegisterSession(r.Context(), SessionRecord{
		ID:        sess.ID,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(h.sessions.TTL()),
	})

	httpx.JSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":        user.ID,
			"email":     user.Email,
			"full_name": user.FullName,
			"role":      snap.Role,
		},
		"permissions": snap.Permissions,
		"csrf_token":  token,
	})
}

// Logout destroys the session. Always succeeds; logging out an already
// dead session is not an error.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if sess.ID != "" {
			h.service.RemoveSession(r.Context(), sess.ID)
		}
		h.sessions.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated identity and its effective permission
// set. The browser capability guard refreshes itself from this endpoint.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Unauthorized(w)
		return
	}
	resp := map[string]any{
		"user_id":     identity.UserID,
		"role":        identity.Role,
		"permissions": identity.Permissions,
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if token, err := h.csrf.EnsureToken(r.Context(), sess); err == nil {
			resp["csrf_token"] = token
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

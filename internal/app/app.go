package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/unrolled/secure"

	"github.com/opsdesk/opsdesk/internal/auth"
	"github.com/opsdesk/opsdesk/internal/observability"
	"github.com/opsdesk/opsdesk/internal/papers"
	"github.com/opsdesk/opsdesk/internal/platform/httpx"
	"github.com/opsdesk/opsdesk/internal/rbac"
	"github.com/opsdesk/opsdesk/internal/roles"
	"github.com/opsdesk/opsdesk/internal/secretbox"
	"github.com/opsdesk/opsdesk/internal/shared"
	"github.com/opsdesk/opsdesk/internal/users"
)

// App aggregates the wired components of the HTTP process.
type App struct {
	cfg    Config
	logger *slog.Logger

	Sessions *shared.SessionManager
	CSRF     *shared.CSRFManager
	Gate     *auth.Gate

	authHandler   *auth.Handler
	rbacHandler   *rbac.Handler
	usersHandler  *users.Handler
	rolesHandler  *roles.Handler
	papersHandler *papers.Handler
}

// New wires repositories, services and handlers against the shared
// infrastructure. sweeps may be nil; deactivation then relies on the
// gate's per-request check alone.
func New(cfg Config, logger *slog.Logger, pool *pgxpool.Pool, cache *redis.Client, sweeps users.SweepEnqueuer) (*App, error) {
	key, err := secretbox.KeyFromHex(cfg.SecretboxKey)
	if err != nil {
		return nil, err
	}
	codec, err := secretbox.New(key)
	if err != nil {
		return nil, err
	}

	// Production fronts a cross-origin SPA: cookies must travel on
	// cross-site requests, which requires SameSite=None and Secure.
	sameSite := http.SameSiteLaxMode
	if cfg.IsProduction() {
		sameSite = http.SameSiteNoneMode
	}
	sessions := shared.NewSessionManager(cache, codec, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction(), sameSite)
	csrf := shared.NewCSRFManager(cfg.CSRFSecret)
	validate := validator.New()
	audit := shared.NewAuditLogger(pool)

	epochs := rbac.NewEpochCounter(cache)
	rbacService := rbac.NewService(rbac.NewRepository(pool), epochs, audit, logger)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, logger)
	gate := auth.NewGate(authService, rbacService, sessions)

	usersService := users.NewService(users.NewRepository(pool), sweeps, epochs, audit, logger)
	rolesService := roles.NewService(roles.NewRepository(pool), logger)
	papersService := papers.NewService(papers.NewRepository(pool), logger)

	return &App{
		cfg:           cfg,
		logger:        logger,
		Sessions:      sessions,
		CSRF:          csrf,
		Gate:          gate,
		authHandler:   auth.NewHandler(authService, rbacService, sessions, csrf, validate, logger),
		rbacHandler:   rbac.NewHandler(rbacService),
		usersHandler:  users.NewHandler(usersService, validate),
		rolesHandler:  roles.NewHandler(rolesService, validate),
		papersHandler: papers.NewHandler(papersService, validate),
	}, nil
}

// Router assembles the middleware chain and route tree.
func (a *App) Router() http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "same-origin",
		ContentSecurityPolicy: "default-src 'none'",
		IsDevelopment:         !a.cfg.IsProduction(),
	})

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(observability.Middleware)
	r.Use(a.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(a.cfg.RequestTimeout))
	r.Use(secureMiddleware.Handler)
	r.Use(CORSMiddleware(a.cfg.CORSOrigin))
	r.Use(chimiddleware.Compress(5))
	r.Use(httprate.LimitByRealIP(a.cfg.RateLimit, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(a.Sessions, a.logger))
		r.Use(CSRFMiddleware(a.CSRF))

		r.Post("/auth/login", a.authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(a.Gate.RequireUser)
			r.Get("/auth/me", a.authHandler.Me)
			r.Post("/auth/logout", a.authHandler.Logout)
			r.Mount("/rbac", a.rbacHandler.Routes())
			r.Mount("/users", a.usersHandler.Routes())
			r.Mount("/roles", a.rolesHandler.Routes())
			r.Mount("/papers", a.papersHandler.Routes())
		})
	})

	return r
}

func (a *App) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", chimiddleware.GetReqID(r.Context())),
		)
	})
}

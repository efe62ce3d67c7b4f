package app

import (
	"log/slog"
	"net/http"

	"github.com/opsdesk/opsdesk/internal/platform/httpx"
	"github.com/opsdesk/opsdesk/internal/shared"
)

// sessionWriter commits the session right before the first byte of the
// response leaves, so Set-Cookie headers land ahead of the body.
type sessionWriter struct {
	http.ResponseWriter
	r         *http.Request
	manager   *shared.SessionManager
	sess      *shared.Session
	logger    *slog.Logger
	committed bool
}

func (w *sessionWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true
	if err := w.manager.Commit(w.r.Context(), w.ResponseWriter, w.r, w.sess); err != nil {
		w.logger.Error("commit session", slog.Any("error", err))
	}
}

func (w *sessionWriter) WriteHeader(code int) {
	w.commit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}

// SessionMiddleware loads the request session and commits it on the way
// out. A Redis failure during load is a hard 500: serving a protected
// app without its session store is not an option.
func SessionMiddleware(manager *shared.SessionManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := manager.Load(r.Context(), r)
			if err != nil {
				logger.Error("load session", slog.Any("error", err))
				httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "")
				return
			}
			r = r.WithContext(shared.ContextWithSession(r.Context(), sess))
			sw := &sessionWriter{ResponseWriter: w, r: r, manager: manager, sess: sess, logger: logger}
			next.ServeHTTP(sw, r)
			sw.commit()
		})
	}
}

// csrfExempt lists paths that unsafe methods may hit without a token:
// login has no token yet, and the health endpoint takes no state.
var csrfExempt = map[string]struct{}{
	"/auth/login": {},
	"/healthz":    {},
}

// CSRFMiddleware verifies the X-CSRF-Token header on every unsafe
// method. Tokens are bound to the session; the SPA obtains them from
// the login and identity responses.
func CSRFMiddleware(csrf *shared.CSRFManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := csrfExempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			sess := shared.SessionFromContext(r.Context())
			if err := csrf.VerifyToken(r.Context(), sess, r.Header.Get(shared.CSRFHeader)); err != nil {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "csrf verification failed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware allows the configured SPA origin with credentials.
// Exactly one origin is ever allowed; credentialed CORS forbids
// wildcards anyway.
func CORSMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Origin"); got == origin {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
				if r.Method == http.MethodOptions {
					h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE")
					h.Set("Access-Control-Allow-Headers", "Content-Type, "+shared.CSRFHeader)
					h.Set("Access-Control-Max-Age", "600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

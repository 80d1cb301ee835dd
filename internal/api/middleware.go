package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"loyalty-points/internal/auth"
)

// AdminChecker reports whether a user id is a configured administrator.
type AdminChecker func(userID string) bool

// LoggingMiddleware logs every request with its status and latency.
func LoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			ev := log.Debug()
			switch {
			case status >= 500:
				ev = log.Error()
			case status >= 400:
				ev = log.Info()
			}
			ev.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(start)).
				Msg("Handled request")
		})
	}
}

// RecoveryMiddleware turns a handler panic into a 500 response.
func RecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error().
						Interface("panic", rec).
						Str("request_id", middleware.GetReqID(r.Context())).
						Str("path", r.URL.Path).
						Msg("Recovered from panic in handler")
					writeJSONError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func principal(r *http.Request, verifier *auth.Verifier, isAdmin AdminChecker) (*auth.Principal, error) {
	p, err := verifier.Verify(auth.BearerToken(r.Header.Get("Authorization")))
	if err != nil {
		return nil, err
	}
	if isAdmin != nil && isAdmin(p.UserID) {
		p.Role = auth.RoleAdmin
	}
	return p, nil
}

// AuthMiddleware rejects requests without a valid bearer token and stores
// the caller in the request context.
func AuthMiddleware(verifier *auth.Verifier, isAdmin AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := principal(r, verifier, isAdmin)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected unauthenticated request")
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// OptionalAuthMiddleware attaches the caller when a valid token is present
// and lets anonymous requests through.
func OptionalAuthMiddleware(verifier *auth.Verifier, isAdmin AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, err := principal(r, verifier, isAdmin); err == nil {
				r = r.WithContext(auth.WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminMiddleware requires the admin role. It must run after AuthMiddleware.
func AdminMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.FromContext(r.Context())
			if !ok || !p.IsAdmin() {
				userID := ""
				if ok {
					userID = p.UserID
				}
				log.Warn().
					Str("user_id", userID).
					Str("path", r.URL.Path).
					Msg("Non-admin attempted admin route")
				writeJSONError(w, http.StatusForbidden, "admin permission required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
